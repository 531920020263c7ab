package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"
)

func TestDispatcherKeepsOrderPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 3, QueueSize: 32})
	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 20; i++ {
		for _, chat := range []int64{-1001, 42, 7} {
			i, chat := i, chat
			require.NoError(t, d.Enqueue(context.Background(), chat, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	d.Close()

	for chat, seq := range got {
		require.Len(t, seq, 20, "chat %d", chat)
		for i, v := range seq {
			assert.Equal(t, i, v, "chat %d out of order", chat)
		}
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		return errors.New("bad request (400)")
	}))
	d.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherGivesUpAtDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Second, MaxDuration: 50 * time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		return timeoutErr{}
	}))
	d.Close()

	assert.Equal(t, 1, calls, "backoff longer than the deadline is not awaited")
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestRetryDelay(t *testing.T) {
	d := &Dispatcher{opts: Options{RetryBackoff: time.Second}.withDefaults()}

	wait, ok := d.retryDelay(tele.FloodError{RetryAfter: 3}, 1)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, wait)

	wait, ok = d.retryDelay(timeoutErr{}, 2)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	_, ok = d.retryDelay(errors.New("bad request (400)"), 1)
	assert.False(t, ok)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "timeout", errorKind(context.DeadlineExceeded))
	assert.Equal(t, "timeout", errorKind(timeoutErr{}))
	assert.Equal(t, "dns", errorKind(&net.DNSError{Err: "no such host", Name: "api.telegram.org"}))
	assert.Equal(t, "dial", errorKind(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "http_4xx", errorKind(&tele.Error{Code: 403, Description: "Forbidden"}))
	assert.Equal(t, "http_5xx", errorKind(errors.New("telegram: internal (502)")))
	assert.Equal(t, "unknown", errorKind(errors.New("boom (x)")))
	assert.Empty(t, errorKind(nil))
}

func TestRedactToken(t *testing.T) {
	msg := redactToken(`Post "https://api.telegram.org/bot123456:ABC-def_1/sendMessage": EOF`)
	assert.NotContains(t, msg, "123456:ABC")
	assert.Contains(t, msg, "bot<redacted>")
}
