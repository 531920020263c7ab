package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/intakebot/core/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
telegram:
  token: "123:abc"
  admin_id: 42
  run_mode: polling
logging:
  level: debug
  format: kv
intake:
  operator_chat_id: -1009876
  delivery_timeout: 10s
  session_ttl: 1h
  categories: [Notes, Exam Papers, Presentation, Other]
database:
  host: localhost
  name: intake
  user: intake
metrics:
  listen: ":9090"
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, int64(-1009876), cfg.Intake.OperatorChatID)
	assert.Equal(t, 10*time.Second, cfg.Intake.DeliveryTimeout)
	assert.Equal(t, time.Minute, cfg.Intake.SweepInterval)
	assert.Equal(t, []string{"pptx"}, cfg.Intake.Extensions("Presentation"))
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("INTAKE_OPERATOR_CHAT_ID", "-1001")
	t.Setenv("INTAKE_SESSION_TTL", "15m")
	t.Setenv("METRICS_LISTEN", "127.0.0.1:9100")

	cfg, err := Load(writeConfig(t, "telegram:\n  run_mode: longpoll\n"))
	require.NoError(t, err)
	assert.Equal(t, "999:env", cfg.Telegram.Token)
	assert.Equal(t, int64(-1001), cfg.Intake.OperatorChatID)
	assert.Equal(t, 15*time.Minute, cfg.Intake.SessionTTL)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, []string{"1st", "2nd", "3rd", "4th", "5th", "6th"}, cfg.Intake.Semesters)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	cases := map[string]string{
		"no token":    "intake:\n  operator_chat_id: 1\n",
		"no operator": "telegram:\n  token: x\n",
		"bad mode":    "telegram:\n  token: x\n  run_mode: carrier-pigeon\nintake:\n  operator_chat_id: 1\n",
		"db no name":  "telegram:\n  token: x\nintake:\n  operator_chat_id: 1\ndatabase:\n  host: db\n  user: u\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSummaryHasNoSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	cfg.Database.Password = "hunter2"

	lines := cfg.Summary()
	joined := ""
	for _, l := range lines {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "operator_chat_id: -1009876")
	assert.Contains(t, joined, "journal: postgres localhost:5432/intake")
	assert.Contains(t, joined, "metrics: :9090/metrics")
	assert.NotContains(t, joined, "123:abc")
	assert.NotContains(t, joined, "hunter2")
}
