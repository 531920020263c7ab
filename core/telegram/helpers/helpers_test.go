package helpers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram/sender"
)

type fakeContext struct {
	tele.Context

	upd   tele.Update
	store map[string]any

	mu   sync.Mutex
	sent []string
	opts [][]interface{}
}

func newFake() *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: 31, Message: &tele.Message{
			Sender: &tele.User{ID: 7},
			Chat:   &tele.Chat{ID: 9},
		}},
		store: make(map[string]any),
	}
}

func (f *fakeContext) Update() tele.Update           { return f.upd }
func (f *fakeContext) Sender() *tele.User            { return f.upd.Message.Sender }
func (f *fakeContext) Chat() *tele.Chat              { return f.upd.Message.Chat }
func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, what.(string))
	f.opts = append(f.opts, opts)
	return nil
}

func TestBuildContextIsCached(t *testing.T) {
	c := newFake()
	ctx := BuildContext(c)
	meta := logger.MetaFrom(ctx)
	assert.Equal(t, 31, meta.UpdateID)
	assert.Equal(t, int64(7), meta.UserID)
	assert.Equal(t, int64(9), meta.ChatID)
	assert.Equal(t, logger.BuildRID(31, 9, 7), meta.RID)

	assert.Equal(t, ctx, BuildContext(c))
}

func TestWithHandlerUpdatesStoredContext(t *testing.T) {
	c := newFake()
	ctx := WithHandler(c, "fsm")
	assert.Equal(t, "fsm", logger.HandlerFrom(ctx))

	stored, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, "fsm", logger.HandlerFrom(stored))
	assert.Equal(t, ctx, WithHandler(c, ""))
}

func TestSendInlineWithoutDispatcher(t *testing.T) {
	SetDispatcher(nil)
	c := newFake()
	require.NoError(t, SendText(c, "hello"))
	require.NoError(t, SendWithMarkup(c, "pick", &tele.ReplyMarkup{}))
	require.NoError(t, SendWithMarkup(c, "plain", nil))

	assert.Equal(t, []string{"hello", "pick", "plain"}, c.sent)
	assert.Empty(t, c.opts[0])
	require.Len(t, c.opts[1], 1)
	assert.IsType(t, &tele.SendOptions{}, c.opts[1][0])
}

func TestSendThroughDispatcherKeepsOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := sender.NewDispatcher(sender.Options{Workers: 2})
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	c := newFake()
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, SendText(c, text))
	}
	d.Close()
	assert.Equal(t, []string{"one", "two", "three"}, c.sent)

	// A closed dispatcher falls back to sending inline.
	require.NoError(t, SendText(c, "four"))
	assert.Equal(t, "four", c.sent[3])
}
