package middleware

import (
	"log/slog"
	"unicode/utf8"

	"github.com/m3rciful/intakebot/core/logger"
	tghelpers "github.com/m3rciful/intakebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// receivedKey marks an update whose receipt was already logged; the middleware
// runs both globally and on every route.
const receivedKey = "intakebot.received"

// LoggerMiddleware prepares the update context and logs one receipt line per update.
// Message text is never logged, only its length: answers carry personal data.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if seen, _ := c.Get(receivedKey).(bool); seen || !logger.ShouldSampleDebug() {
			return next(c)
		}
		c.Set(receivedKey, true)

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("kind", UpdateKind(c.Update())),
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if user := c.Sender(); user != nil && user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
		upd := c.Update()
		switch {
		case upd.Callback != nil:
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(callbackUnique(upd.Callback), 128)))
		case upd.Message != nil && upd.Message.Document != nil:
			doc := upd.Message.Document
			attrs = append(attrs,
				slog.String("file_name", logger.SanitizeLimit(doc.FileName, 128)),
				slog.Int64("file_size", doc.FileSize),
			)
		case upd.Message != nil && upd.Message.Text != "":
			attrs = append(attrs, slog.Int("text_len", utf8.RuneCountInString(upd.Message.Text)))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}

// UpdateKind names the payload of an update for logs.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message == nil:
		return "other"
	case upd.Message.Document != nil:
		return "document"
	case upd.Message.Photo != nil, upd.Message.Video != nil, upd.Message.Audio != nil,
		upd.Message.Voice != nil, upd.Message.Animation != nil, upd.Message.Sticker != nil,
		upd.Message.VideoNote != nil:
		return "media"
	case len(upd.Message.Text) > 0 && upd.Message.Text[0] == '/':
		return "command"
	default:
		return "text"
	}
}

func callbackUnique(cb *tele.Callback) string {
	if cb.Unique != "" {
		return cb.Unique
	}
	// Generic OnCallback routes see "\f<unique>|<payload>".
	data := cb.Data
	if len(data) > 0 && data[0] == '\f' {
		data = data[1:]
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '|' {
			return data[:i]
		}
	}
	return data
}
