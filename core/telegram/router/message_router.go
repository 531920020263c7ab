package router

import (
	"slices"
	"strings"

	tg "github.com/m3rciful/intakebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives every message of a chat that is not a registered command.
type Conversation interface {
	OnText(c tele.Context) error
	OnAttachment(c tele.Context) error
}

// mediaEndpoints are message kinds that carry an attachment but no document file name.
var mediaEndpoints = []string{
	tele.OnPhoto,
	tele.OnVideo,
	tele.OnAudio,
	tele.OnVoice,
	tele.OnAnimation,
	tele.OnSticker,
	tele.OnVideoNote,
}

// MessageRoutes builds handlers for text, document and media messages.
// Text that telebot did not match as a command but still names a public
// command ("/cancel@otherbot", an alias) runs that command; everything else,
// including unknown commands, goes to the conversation.
func MessageRoutes(conv Conversation, reg *tg.Registry) []tg.Route {
	if conv == nil {
		return nil
	}

	text := func(c tele.Context) error {
		if key, cmd, ok := publicCommand(reg, c.Text()); ok {
			return handle(c, handlerName(key), func() error { return cmd.Handler(c) })
		}
		return handle(c, "fsm", func() error { return conv.OnText(c) })
	}
	attachment := func(name string) tele.HandlerFunc {
		return func(c tele.Context) error {
			return handle(c, name, func() error { return conv.OnAttachment(c) })
		}
	}

	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(attachment("fsm_document"))},
	}
	media := wrap(attachment("fsm_media"))
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}

// publicCommand matches slash text or an exact alias against the registry.
// Admin-only commands are reachable through their own routes only.
func publicCommand(reg *tg.Registry, text string) (string, tg.Command, bool) {
	if reg == nil {
		return "", tg.Command{}, false
	}
	text = strings.TrimSpace(text)
	key, cmd, ok := reg.LookupCommand(text)
	if !ok || cmd.AdminOnly {
		return "", tg.Command{}, false
	}
	if !strings.HasPrefix(text, "/") && !slices.Contains(cmd.Aliases, text) {
		return "", tg.Command{}, false
	}
	return key, cmd, true
}
