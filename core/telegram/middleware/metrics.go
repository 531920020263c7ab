package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

// repliesKey holds the *replyStats of the current update.
const repliesKey = "intakebot.replies"

// replyStats counts what was sent back for one update. Sends may run on the
// sender workers, hence the atomics.
type replyStats struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// countingContext routes outgoing messages through the update's replyStats.
type countingContext struct {
	tele.Context
	stats *replyStats
}

func (c countingContext) count(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	c.stats.messages.Add(1)
	if carriesMarkup(opts) {
		c.stats.keyboard.Store(true)
	}
	return nil
}

// Send proxies tele.Context.Send.
func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Send(what, opts...), opts)
}

// Reply proxies tele.Context.Reply.
func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Reply(what, opts...), opts)
}

// Edit proxies tele.Context.Edit; edits count as replies.
func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Edit(what, opts...), opts)
}

func carriesMarkup(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// MessageMetricsMiddleware counts replies sent for the update so the handler
// summary can report them. Nested applications share one counter.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.(countingContext); ok {
			return next(c)
		}
		stats, ok := c.Get(repliesKey).(*replyStats)
		if !ok {
			stats = &replyStats{}
			c.Set(repliesKey, stats)
		}
		return next(countingContext{Context: c, stats: stats})
	}
}

// Replies reports how many messages were sent for the update so far and
// whether any carried a keyboard.
func Replies(c tele.Context) (messages int, keyboard bool) {
	if stats, ok := c.Get(repliesKey).(*replyStats); ok {
		return int(stats.messages.Load()), stats.keyboard.Load()
	}
	return 0, false
}
