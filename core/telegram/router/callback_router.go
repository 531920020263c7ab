package router

import (
	"log/slog"

	tg "github.com/m3rciful/intakebot/core/telegram"
	"github.com/m3rciful/intakebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound overrides the registry fallback for unknown buttons.
	NotFound tele.HandlerFunc
}

// CallbackRoute returns the single OnCallback route dispatching inline buttons
// through the registry. Every press is answered so the client stops its spinner.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		_ = c.Respond()

		key := tg.CallbackKey(cb)
		extras := []slog.Attr{slog.String("cb_key", key)}
		run, ok := reg.GetCallback(key)
		if !ok {
			run = opts.NotFound
			if run == nil {
				run = reg.CallbackNotFound()
			}
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return handle(c, "callback."+handlerName(key), func() error {
			if run == nil {
				return nil
			}
			return run(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  wrap(handler),
	}
}

// wrap gives a route the same recovery and update logging as global middlewares,
// for bots started without them.
func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}
