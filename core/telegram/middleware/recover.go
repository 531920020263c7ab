package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/intakebot/core/logger"
	tghelpers "github.com/m3rciful/intakebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicError is returned in place of a handler panic.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }

// Code labels the error in handler summaries.
func (PanicError) Code() string { return "PANIC" }

// RecoverMiddleware turns a handler panic into a PanicError so the bot's
// OnError hook can answer the affected chat. Other chats are untouched.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.Any("err", r),
				slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 4096)),
			)
			err = PanicError{Value: r}
		}()
		return next(c)
	}
}
