// Package delivery relays accepted submissions to the operator chat through the
// Telegram Bot API.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/core/logger"
)

// ErrNoContent is returned when a ContentRef points at neither a message nor a file.
var ErrNoContent = errors.New("delivery: content reference is empty")

// API is the part of *tele.Bot used for delivery.
type API interface {
	Forward(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram implements intake.Deliverer on top of the Bot API.
type Telegram struct {
	api API
}

var _ intake.Deliverer = (*Telegram)(nil)

// New returns a Telegram deliverer using api.
func New(api API) *Telegram {
	return &Telegram{api: api}
}

// ForwardAttachment forwards the submitter's original message to dest. When
// the message id is unknown the file is re-sent by its file id instead.
func (t *Telegram) ForwardAttachment(ctx context.Context, dest intake.Destination, ref intake.ContentRef) error {
	to := &tele.Chat{ID: dest.ChatID}
	switch {
	case ref.MessageID != 0:
		msg := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
		return t.call(ctx, "forwardMessage", dest, func() error {
			_, err := t.api.Forward(to, msg)
			return err
		})
	case ref.FileID != "":
		doc := &tele.Document{File: tele.File{FileID: ref.FileID}}
		return t.call(ctx, "sendDocument", dest, func() error {
			_, err := t.api.Send(to, doc)
			return err
		})
	default:
		return ErrNoContent
	}
}

// SendText sends text to dest without parse mode or link previews.
func (t *Telegram) SendText(ctx context.Context, dest intake.Destination, text string) error {
	to := &tele.Chat{ID: dest.ChatID}
	return t.call(ctx, "sendMessage", dest, func() error {
		_, err := t.api.Send(to, text, &tele.SendOptions{DisableWebPagePreview: true})
		return err
	})
}

// call runs fn and waits for it or for ctx, whichever comes first. telebot
// calls take no context, so an abandoned call may still complete later.
func (t *Telegram) call(ctx context.Context, endpoint string, dest intake.Destination, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	attrs := []slog.Attr{
		slog.String("op", endpoint),
		slog.Int64("to_chat", dest.ChatID),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 200)),
		)
		logger.LogEvent(ctx, logger.Delivery, slog.LevelWarn, "delivery.call", attrs...)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	attrs = append(attrs, slog.String("status", "ok"))
	logger.LogEvent(ctx, logger.Delivery, slog.LevelDebug, "delivery.call", attrs...)
	return nil
}
