package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes flat lines with a fixed key order: JSON objects or
// space separated key=value pairs. Groups become dotted key prefixes and
// durations are written as integer milliseconds under a "_ms" key.
type structuredHandler struct {
	cfg    handlerConfig
	prefix string
	pre    []field
}

type field struct {
	key string
	val any
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled implements slog.Handler.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle implements slog.Handler.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errWriterClosed
	}
	jsonOut := h.cfg.format == formatJSON

	e := make(entry, 16+len(h.pre))
	ts := r.Time.UTC()
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	e["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.pre {
		e[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, e.put)
		return true
	})
	MetaFrom(ctx).fill(e)

	e.compactRID(jsonOut)
	e.setDefault("event", cmp.Or(r.Message, "unknown"))
	e.setDefault("component", "app")
	e.normalizeEnums()
	e.prune()

	keys := e.keys(h.cfg.keyOrder)
	var line []byte
	if jsonOut {
		var err error
		if line, err = encodeJSON(e, keys); err != nil {
			return err
		}
	} else {
		line = encodeKV(e, keys)
	}
	return h.cfg.writer.Write(line)
}

// WithAttrs implements slog.Handler. The attrs are resolved once, under the
// groups opened so far.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.pre = slices.Clone(h.pre)
	for _, a := range attrs {
		flatten(h.prefix, a, func(key string, val any) {
			clone.pre = append(clone.pre, field{key, val})
		})
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// flatten emits a plain key/value for attr and for every member of a group.
func flatten(prefix string, a slog.Attr, emit func(string, any)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := plainValue(key, v); ok {
		emit(k, val)
	}
}

// plainValue converts v to something encoding/json and the kv encoder both
// print predictably. Durations move to a "_ms" key.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case error:
		return key, x.Error(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// msKey appends "_ms" unless key already carries it.
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// entry is one log line before encoding.
type entry map[string]any

func (e entry) put(key string, val any) { e[key] = val }

func (e entry) str(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// setDefault sets key unless it already holds a non-empty value.
func (e entry) setDefault(key string, val any) {
	if e.str(key) == "" {
		e[key] = val
	}
}

// compactRID shortens the rid; JSON lines keep the original as rid_full.
func (e entry) compactRID(keepFull bool) {
	rid := e.str("rid")
	compact := CompactRID(rid)
	if compact == rid {
		return
	}
	if keepFull {
		e.setDefault("rid_full", rid)
	}
	e["rid"] = compact
}

// normalizeEnums maps level, status and outcome onto their canonical values.
// Unknown outcomes are dropped, unknown statuses are kept lowercased.
func (e entry) normalizeEnums() {
	e["level"] = normalizeLevel(e.str("level"))
	if s := e.str("status"); s != "" {
		e["status"], _ = normalizeStatus(s)
	}
	if o := e.str("outcome"); o != "" {
		if v, ok := normalizeOutcome(o); ok {
			e["outcome"] = v
		} else {
			delete(e, "outcome")
		}
	}
}

func (e entry) prune() {
	for k, v := range e {
		switch x := v.(type) {
		case nil:
			delete(e, k)
		case string:
			if x == "" {
				delete(e, k)
			}
		}
	}
}

// keys lists the keys of e: those named in order first, the rest sorted.
func (e entry) keys(order []string) []string {
	keys := make([]string, 0, len(e))
	listed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := e[k]; ok && !listed[k] {
			keys = append(keys, k)
			listed[k] = true
		}
	}
	n := len(keys)
	for k := range e {
		if !listed[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[n:])
	return keys
}

func encodeJSON(e entry, keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(e[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %q: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func encodeKV(e entry, keys []string) []byte {
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(e[k]))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
