// Package handlers connects Telegram updates to the intake engine.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/bot/journal"
	"github.com/m3rciful/intakebot/core/logger"
	tg "github.com/m3rciful/intakebot/core/telegram"
	tghelpers "github.com/m3rciful/intakebot/core/telegram/helpers"
	"github.com/m3rciful/intakebot/core/telegram/keyboard"
	"github.com/m3rciful/intakebot/core/telegram/router"
)

// CancelCallback is the unique id of the inline cancel button.
const CancelCallback = "intake_cancel"

const (
	msgApology     = "⚠️ An error occurred. Please /cancel and try again."
	msgNoJournal   = "ℹ️ The delivery journal is disabled."
	msgCancelOffer = "Changed your mind?"
)

// Engine is the part of *intake.Engine used by the transport.
type Engine interface {
	Handle(ctx context.Context, ev intake.Event) intake.Reply
	Active() int
}

// RecentLister reads the latest journal entries.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Transport turns Telegram updates into intake events and renders the replies.
type Transport struct {
	engine  Engine
	journal RecentLister
}

var _ router.Conversation = (*Transport)(nil)

// New returns a Transport. journal may be nil.
func New(engine Engine, journal RecentLister) *Transport {
	return &Transport{engine: engine, journal: journal}
}

// Register adds the dialogue commands and the cancel callback to reg.
func (t *Transport) Register(reg *tg.Registry) error {
	err := errors.Join(
		reg.RegisterCommand("/start", tg.Command{
			Handler:     t.Start,
			Description: "Share study material",
		}),
		reg.RegisterCommand("/cancel", tg.Command{
			Handler:     t.Cancel,
			Description: "Cancel the current submission",
		}),
		reg.RegisterCommand("/sessions", tg.Command{
			Handler:     t.Sessions,
			Description: "Show open dialogues",
			AdminOnly:   true,
		}),
		reg.RegisterCommand("/recent", tg.Command{
			Handler:     t.Recent,
			Description: "Show latest deliveries",
			AdminOnly:   true,
		}),
		reg.RegisterCallback(CancelCallback, t.CancelButton),
	)
	if err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	reg.SetCallbackNotFound(dropButtons)
	return nil
}

// Start (re)starts the dialogue.
func (t *Transport) Start(c tele.Context) error {
	return t.handle(c, intake.CommandEvent(identity(c), intake.CommandStart))
}

// Cancel drops the dialogue.
func (t *Transport) Cancel(c tele.Context) error {
	return t.handle(c, intake.CommandEvent(identity(c), intake.CommandCancel))
}

// CancelButton handles the inline cancel button and removes it from the prompt.
func (t *Transport) CancelButton(c tele.Context) error {
	_ = dropButtons(c)
	return t.Cancel(c)
}

// dropButtons strips the inline keyboard from the message a callback came
// from. It also handles buttons left over from older deployments.
func dropButtons(c tele.Context) error {
	if cb := c.Callback(); cb != nil && cb.Message != nil {
		return c.Edit(cb.Message.Text)
	}
	return nil
}

// OnText handles plain text and commands nobody else claimed.
func (t *Transport) OnText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		name, _, _ := strings.Cut(strings.Fields(text)[0], "@")
		return t.handle(c, intake.CommandEvent(identity(c), name))
	}
	return t.handle(c, intake.TextEvent(identity(c), text))
}

// OnAttachment handles documents and any other media.
func (t *Transport) OnAttachment(c tele.Context) error {
	return t.handle(c, intake.AttachmentEvent(identity(c), attachmentFrom(c.Message())))
}

// Sessions reports the number of open dialogues.
func (t *Transport) Sessions(c tele.Context) error {
	return tghelpers.SendText(c, fmt.Sprintf("📊 Active sessions: %d", t.engine.Active()))
}

// Recent lists the latest journal entries.
func (t *Transport) Recent(c tele.Context) error {
	if t.journal == nil {
		return tghelpers.SendText(c, msgNoJournal)
	}
	entries, err := t.journal.Recent(tghelpers.BuildContext(c), 5)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return tghelpers.SendText(c, "📭 No deliveries yet.")
	}
	var b strings.Builder
	for _, e := range entries {
		mark := "✅"
		if e.Outcome != journal.OutcomeDelivered {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s · %s · %s · %s\n",
			mark, e.SubmittedAt.UTC().Format("2006-01-02 15:04"), e.Category, e.SubmitterName, e.FileName)
	}
	return tghelpers.SendText(c, strings.TrimRight(b.String(), "\n"))
}

// OnError answers the affected chat with a short apology. It is installed as
// the bot's error hook so a failing update never touches other conversations.
func OnError(err error, c tele.Context) {
	if c == nil {
		logger.Error(context.Background(), "tg", "tg.error", slog.String("err", err.Error()))
		return
	}
	ctx := tghelpers.BuildContext(c)
	logger.Error(ctx, "tg", "tg.error", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	if c.Chat() == nil {
		return
	}
	if sendErr := c.Send(msgApology); sendErr != nil {
		logger.Warn(ctx, "tg", "tg.apology_failed", slog.String("err", sendErr.Error()))
	}
}

func (t *Transport) handle(c tele.Context, ev intake.Event) error {
	if c.Sender() == nil || c.Chat() == nil {
		return nil
	}
	var sendErr error
	send := func(p intake.Prompt) {
		if err := t.render(c, p); err != nil && sendErr == nil {
			sendErr = err
		}
	}
	ctx := intake.WithProgress(tghelpers.BuildContext(c), send)
	reply := t.engine.Handle(ctx, ev)
	for _, p := range reply.Prompts {
		send(p)
	}
	// Delivery failures were already reported to the submitter and logged.
	return sendErr
}

// render sends one prompt. A message carries either a reply or an inline
// keyboard, so a prompt that takes the quick replies down gets its cancel
// button on a second message.
func (t *Transport) render(c tele.Context, p intake.Prompt) error {
	if !p.ClearKeyboard || len(p.Choices) > 0 {
		return tghelpers.SendWithMarkup(c, p.Text, Markup(p))
	}
	if err := tghelpers.SendWithMarkup(c, p.Text, keyboard.RemoveKeyboard()); err != nil || !p.Cancelable {
		return err
	}
	return tghelpers.SendWithMarkup(c, msgCancelOffer, keyboard.SingleCancelMarkup(CancelCallback))
}

// Markup picks the keyboard for a prompt: quick replies for choices, an inline
// cancel button for cancelable free-text prompts, no keyboard otherwise.
func Markup(p intake.Prompt) *tele.ReplyMarkup {
	switch {
	case len(p.Choices) > 0:
		perRow := 3
		if len(p.Choices) <= 4 {
			perRow = 2
		}
		return keyboard.OneTimeChoices(p.Choices, perRow)
	case p.Cancelable:
		return keyboard.SingleCancelMarkup(CancelCallback)
	default:
		return keyboard.RemoveKeyboard()
	}
}

func identity(c tele.Context) intake.Identity {
	var id intake.Identity
	if u := c.Sender(); u != nil {
		id.UserID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		id.ChatID = ch.ID
	}
	return id
}

// attachmentFrom extracts the uploaded document. Other media yield an
// attachment without a file name, which the engine treats as unsupported.
func attachmentFrom(m *tele.Message) *intake.Attachment {
	if m == nil {
		return nil
	}
	ref := intake.ContentRef{MessageID: m.ID}
	if m.Chat != nil {
		ref.ChatID = m.Chat.ID
	}
	if doc := m.Document; doc != nil {
		ref.FileID = doc.FileID
		ref.FileSize = doc.FileSize
		ref.MIME = doc.MIME
		return &intake.Attachment{FileName: doc.FileName, Ref: ref}
	}
	return &intake.Attachment{Ref: ref}
}
