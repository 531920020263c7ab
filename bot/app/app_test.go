package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/bot/config"
	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/core/bootstrap"
	coreconfig "github.com/m3rciful/intakebot/core/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Telegram.Token = "123:test"
	cfg.Telegram.AdminID = 42
	cfg.Intake = intake.Config{Catalog: intake.DefaultCatalog(), OperatorChatID: -1001}
	require.NoError(t, cfg.Normalize())
	return cfg
}

func offlineBot(cfg *coreconfig.Config, onError func(error, tele.Context)) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{Token: cfg.Telegram.Token, Offline: true, OnError: onError})
}

func testOptions() Options {
	return Options{
		Bootstrap: bootstrap.Options{LoggerInit: func(*coreconfig.Config) error { return nil }},
		NewBot:    offlineBot,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewWiresRoutes(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, a.bot, opts.Bot)
	assert.Same(t, a.dispatcher, opts.Dispatcher)
	assert.NotEmpty(t, opts.Middlewares)

	endpoints := make(map[any]bool, len(opts.Routes))
	for _, r := range opts.Routes {
		require.NotNil(t, r.Handler)
		endpoints[r.Endpoint] = true
	}
	for _, ep := range []any{"/start", "/cancel", "/sessions", "/recent", tele.OnCallback, tele.OnText, tele.OnDocument, tele.OnPhoto} {
		assert.True(t, endpoints[ep], "missing route %v", ep)
	}

	visible := a.registry.ListCommands(true)
	names := make([]string, 0, len(visible))
	for _, c := range visible {
		names = append(names, c.Text)
	}
	assert.ElementsMatch(t, []string{"/start", "/cancel"}, names)
}

func TestServicesFollowConfig(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	assert.Empty(t, a.Services())

	cfg := testConfig(t)
	cfg.Intake.SessionTTL = time.Hour
	cfg.Metrics.Listen = "127.0.0.1:0"
	require.NoError(t, cfg.Normalize())
	a = newTestApp(t, cfg)

	var names []string
	for _, svc := range a.Services() {
		names = append(names, svc.Name)
	}
	assert.Equal(t, []string{"sweeper", "metrics"}, names)
}

func TestSweeperServiceStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Intake.SessionTTL = time.Hour
	a, err := New(context.Background(), cfg, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Services()[0].Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	require.NoError(t, a.Close())
}

func TestNotifyExpiredSendsToEveryChat(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	var chats []int64
	a.notify = func(_ context.Context, chatID int64, text string) error {
		assert.Equal(t, intake.MsgExpired, text)
		chats = append(chats, chatID)
		if chatID == 2 {
			return errors.New("blocked by user")
		}
		return nil
	}
	a.notifyExpired(context.Background(), []intake.Identity{
		{UserID: 10, ChatID: 1},
		{UserID: 20, ChatID: 2},
		{UserID: 30, ChatID: 3},
	})
	assert.Equal(t, []int64{1, 2, 3}, chats)
}

func TestNewFailsWhenBotCannotStart(t *testing.T) {
	opts := testOptions()
	opts.NewBot = func(*coreconfig.Config, func(error, tele.Context)) (*tele.Bot, error) {
		return nil, errors.New("unauthorized")
	}
	_, err := New(context.Background(), testConfig(t), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestBootstrapRejectsForeignConfig(t *testing.T) {
	_, err := Bootstrap(context.Background(), foreignConfig{})
	require.Error(t, err)
}

type foreignConfig struct{}

func (foreignConfig) CoreConfig() *coreconfig.Config { return &coreconfig.Config{} }
