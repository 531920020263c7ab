// Package app wires configuration, infrastructure and the intake dialogue into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/bot/config"
	"github.com/m3rciful/intakebot/bot/delivery"
	"github.com/m3rciful/intakebot/bot/handlers"
	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/bot/journal"
	"github.com/m3rciful/intakebot/bot/metrics"
	"github.com/m3rciful/intakebot/core/bootstrap"
	corecmd "github.com/m3rciful/intakebot/core/cmd"
	coreconfig "github.com/m3rciful/intakebot/core/config"
	"github.com/m3rciful/intakebot/core/logger"
	coretelegram "github.com/m3rciful/intakebot/core/telegram"
	"github.com/m3rciful/intakebot/core/telegram/keyboard"
	"github.com/m3rciful/intakebot/core/telegram/router"
	tgsender "github.com/m3rciful/intakebot/core/telegram/sender"
)

// Options let callers replace infrastructure constructors.
type Options struct {
	Bootstrap bootstrap.Options
	// NewBot defaults to coretelegram.NewBot.
	NewBot func(cfg *coreconfig.Config, onError func(error, tele.Context)) (*tele.Bot, error)
}

// App holds every long-lived component of a running bot.
type App struct {
	cfg *config.Config

	infra      *bootstrap.Result
	bot        *tele.Bot
	dispatcher *tgsender.Dispatcher
	registry   *coretelegram.Registry

	engine    *intake.Engine
	transport *handlers.Transport
	metrics   *metrics.Recorder

	notify func(ctx context.Context, chatID int64, text string) error
}

var (
	_ corecmd.TelegramApp     = (*App)(nil)
	_ corecmd.ServiceProvider = (*App)(nil)
)

// Bootstrap adapts New to the runner's bootstrap hook.
func Bootstrap(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	c, ok := cfg.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", cfg)
	}
	return New(ctx, c, Options{})
}

// New initializes logging, the optional journal database, the bot and the
// intake engine. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	bopts := opts.Bootstrap
	bopts.Config = &cfg.Config
	bopts.Database = cfg.Database
	infra, err := bootstrap.Run(ctx, bopts)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, infra, opts)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	logger.Info(ctx, "app", "app.wired",
		slog.Bool("journal", infra.DB != nil),
		slog.Bool("metrics", cfg.Metrics.Enabled()),
		slog.Int64("operator_chat_id", cfg.Intake.OperatorChatID),
	)
	return a, nil
}

func build(cfg *config.Config, infra *bootstrap.Result, opts Options) (*App, error) {
	newBot := opts.NewBot
	if newBot == nil {
		newBot = coretelegram.NewBot
	}
	bot, err := newBot(&cfg.Config, handlers.OnError)
	if err != nil {
		return nil, err
	}

	rec := metrics.NewRecorder()
	engineOpts := []intake.Option{intake.WithObserver(rec)}
	var jr *journal.Journal
	if infra.DB != nil {
		jr = journal.New(infra.DB)
		engineOpts = append(engineOpts, intake.WithRecorder(jr))
	}

	engine, err := intake.NewEngine(cfg.Intake, intake.NewStore(), delivery.New(bot), engineOpts...)
	if err != nil {
		return nil, err
	}

	var lister handlers.RecentLister
	if jr != nil {
		lister = jr
	}
	transport := handlers.New(engine, lister)
	reg := coretelegram.NewRegistry()
	if err := transport.Register(reg); err != nil {
		return nil, err
	}

	dispatcher := tgsender.NewDispatcher(tgsender.Options{MaxRetries: 2})
	rec.GaugeFunc("active_sessions", "Dialogues currently in progress", func() float64 {
		return float64(engine.Active())
	})
	rec.CounterFunc("send_failures_total", "Outbound Telegram calls that failed after retries", func() float64 {
		return float64(dispatcher.ErrorCount())
	})

	a := &App{
		cfg:        cfg,
		infra:      infra,
		bot:        bot,
		dispatcher: dispatcher,
		registry:   reg,
		engine:     engine,
		transport:  transport,
		metrics:    rec,
	}
	a.notify = a.sendText
	return a, nil
}

// TelegramRunOptions describes routes and middlewares for the bot runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.MessageRoutes(a.transport, a.registry)...)

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Bot:         a.bot,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(),
		Routes:      routes,
	}, nil
}

// Services returns the session sweeper and the metrics endpoint when they are configured.
func (a *App) Services() []corecmd.Service {
	var svcs []corecmd.Service
	if a.cfg.Intake.SessionTTL > 0 {
		svcs = append(svcs, corecmd.Service{
			Name: "sweeper",
			Run: func(ctx context.Context) error {
				a.engine.RunSweeper(ctx, func(expired []intake.Identity) {
					a.notifyExpired(ctx, expired)
				})
				return nil
			},
		})
	}
	if a.cfg.Metrics.Enabled() {
		svcs = append(svcs, corecmd.Service{
			Name: "metrics",
			Run: func(ctx context.Context) error {
				return a.metrics.Serve(ctx, a.cfg.Metrics)
			},
		})
	}
	return svcs
}

// Close stops the sender workers and releases the journal database.
func (a *App) Close() error {
	a.dispatcher.Close()
	return a.infra.Close()
}

func (a *App) notifyExpired(ctx context.Context, expired []intake.Identity) {
	for _, id := range expired {
		if err := a.notify(ctx, id.ChatID, intake.MsgExpired); err != nil {
			logger.Warn(ctx, "app", "expired.notify_failed",
				slog.Int64("chat_id", id.ChatID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// sendText queues a message on the chat's sender worker so it stays ordered
// with replies produced by handlers.
func (a *App) sendText(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	run := func() error {
		_, err := a.bot.Send(chat, text, &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()})
		return err
	}
	if err := a.dispatcher.Enqueue(ctx, chatID, "send.expired", "sendMessage", run); err != nil {
		if errors.Is(err, tgsender.ErrQueueClosed) {
			return err
		}
		return run()
	}
	return nil
}
