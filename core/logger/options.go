package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/intakebot/core/config"
)

// options is the logging section resolved against defaults.
type options struct {
	format    logFormat
	keyOrder  []string
	level     slog.Level
	sampleNum int
	sampleDen int
	trace     bool
	profile   string
	filePath  string
}

func resolveOptions(cfg *coreconfig.Config) options {
	opts := options{
		format:    formatJSON,
		keyOrder:  defaultKeyOrder,
		level:     slog.LevelInfo,
		sampleNum: defaultSampleNum,
		sampleDen: defaultSampleDen,
		trace:     envFlag("TRACE") || envFlag("LOG_TRACE"),
		profile:   "prod",
	}
	if cfg == nil {
		return opts
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		opts.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		opts.format = formatKV
	case "json":
	default:
		if opts.profile == "debug" || opts.profile == "dev" {
			opts.format = formatKV
		}
	}
	opts.keyOrder = parseKeyOrder(lc.KeysOrder)
	opts.level = parseLevel(lc.Level)
	opts.sampleNum, opts.sampleDen = parseSampleRatio(lc.DebugSample)

	dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir != "" && file != "" {
		opts.filePath = filepath.Join(dir, file)
	}
	return opts
}

// parseKeyOrder reads a comma separated key list; "" and "default" keep the
// built-in order.
func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			order = append(order, key)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

// parseLevel accepts slog level names ("debug", "WARN", "info+2") and
// "warning". Anything else is INFO.
func parseLevel(raw string) slog.Level {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// openLogFile opens path for appending, creating its directory.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
