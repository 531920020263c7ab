// Package config holds the application configuration of the intake bot.
package config

import (
	"fmt"

	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/bot/metrics"
	coreconfig "github.com/m3rciful/intakebot/core/config"
	coredatabase "github.com/m3rciful/intakebot/core/database"
)

// Config extends the core configuration with the dialogue, journal and metrics sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Intake   intake.Config       `yaml:"intake"`
	Database coredatabase.Config `yaml:"database"`
	Metrics  metrics.Config      `yaml:"metrics"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads path, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Intake.Normalize(); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	c.Metrics.Normalize()
	return nil
}

// Summary lists the effective settings without secrets.
func (c *Config) Summary() []string {
	journal := "disabled"
	if c.Database.Enabled() {
		journal = fmt.Sprintf("postgres %s:%s/%s", c.Database.Host, c.Database.Port, c.Database.Name)
	}
	metricsAddr := "disabled"
	if c.Metrics.Enabled() {
		metricsAddr = c.Metrics.Listen + c.Metrics.Path
	}
	ttl := "disabled"
	if c.Intake.SessionTTL > 0 {
		ttl = fmt.Sprintf("%s (sweep every %s)", c.Intake.SessionTTL, c.Intake.SweepInterval)
	}
	lines := []string{
		"run_mode: " + c.Telegram.RunMode,
		fmt.Sprintf("operator_chat_id: %d", c.Intake.OperatorChatID),
		fmt.Sprintf("categories: %v", c.Intake.Categories),
		fmt.Sprintf("semesters: %v", c.Intake.Semesters),
	}
	for _, category := range c.Intake.Categories {
		lines = append(lines, fmt.Sprintf("  %s: %v", category, c.Intake.Extensions(category)))
	}
	return append(lines,
		"delivery_timeout: "+c.Intake.DeliveryTimeout.String(),
		"session_ttl: "+ttl,
		"journal: "+journal,
		"metrics: "+metricsAddr,
	)
}
