package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }

	require.NoError(t, reg.RegisterCommand("/start", Command{Handler: noop, Description: "start"}))
	require.NoError(t, reg.RegisterCommand("/cancel", Command{Handler: noop, Description: "cancel", Aliases: []string{"stop"}}))
	require.NoError(t, reg.RegisterCommand("/sessions", Command{Handler: noop, Description: "sessions", AdminOnly: true}))
	assert.Error(t, reg.RegisterCommand("nope", Command{Handler: noop, Description: "missing slash"}))
	assert.Error(t, reg.RegisterCommand("/", Command{Handler: noop, Description: "bare slash"}))
	assert.Error(t, reg.RegisterCommand("/start", Command{Handler: noop, Description: "duplicate"}))
	assert.Error(t, reg.RegisterCommand("/help", Command{Description: "no handler"}))

	assert.Len(t, reg.Commands(), 3)
	assert.Equal(t, "start", reg.Commands()["/start"].Description)

	visible := reg.ListCommands(true)
	require.Len(t, visible, 2)
	assert.Equal(t, "/cancel", visible[0].Text)
	assert.Equal(t, "/start", visible[1].Text)
	assert.Len(t, reg.ListCommands(false), 3)
}

func TestRegistryLookupCommand(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }
	require.NoError(t, reg.RegisterCommand("/cancel", Command{Handler: noop, Description: "cancel", Aliases: []string{"stop"}}))

	for _, in := range []string{"/cancel", "cancel", "/cancel@intake_bot", " /cancel ", "stop", "/stop"} {
		key, _, ok := reg.LookupCommand(in)
		assert.True(t, ok, in)
		assert.Equal(t, "/cancel", key, in)
	}
	for _, in := range []string{"", "@intake_bot", "/unknown"} {
		_, _, ok := reg.LookupCommand(in)
		assert.False(t, ok, in)
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }

	require.NoError(t, reg.RegisterCallback("intake_cancel", noop))
	assert.Error(t, reg.RegisterCallback("intake_cancel", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.GetCallback("intake_cancel")
	assert.True(t, ok)
	assert.Equal(t, []string{"intake_cancel"}, reg.ListCallbacks())

	assert.Nil(t, reg.CallbackNotFound())
	reg.SetCallbackNotFound(noop)
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestCallbackKey(t *testing.T) {
	assert.Equal(t, "", CallbackKey(nil))
	assert.Equal(t, "intake_cancel", CallbackKey(&tele.Callback{Unique: "intake_cancel", Data: "ignored"}))
	assert.Equal(t, "intake_cancel", CallbackKey(&tele.Callback{Data: "\fintake_cancel|42"}))
	assert.Equal(t, "intake_cancel", CallbackKey(&tele.Callback{Data: "\fintake_cancel"}))
}

type fakePublisher struct {
	got []interface{}
	err error
}

func (f *fakePublisher) SetCommands(opts ...interface{}) error {
	f.got = opts
	return f.err
}

func TestPublishCommands(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }

	pub := &fakePublisher{}
	require.NoError(t, PublishCommands(pub, reg))
	assert.Nil(t, pub.got, "empty menu is not published")

	require.NoError(t, reg.RegisterCommand("/start", Command{Handler: noop, Description: "start"}))
	require.NoError(t, reg.RegisterCommand("/recent", Command{Handler: noop, Description: "recent", AdminOnly: true}))
	require.NoError(t, PublishCommands(pub, reg))
	require.Len(t, pub.got, 1)
	assert.Equal(t, []tele.Command{{Text: "start", Description: "start"}}, pub.got[0])

	pub.err = errors.New("flood")
	assert.Error(t, PublishCommands(pub, reg))
}
