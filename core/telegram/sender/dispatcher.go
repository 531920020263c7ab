// Package sender runs outbound Telegram calls on a small pool of workers.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the worker owning the key has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher; zero values select the defaults.
type Options struct {
	// QueueSize is the capacity of each worker queue (64).
	QueueSize int
	// Workers is the number of shards (4).
	Workers int
	// MaxRetries bounds extra attempts for transient failures (0).
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between tries (2s).
	RetryBackoff time.Duration
	// MaxDuration bounds one job including retries and flood waits (12s).
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously.
// Jobs sharing a key (a chat id) land on the same worker and run in enqueue order.
type Dispatcher struct {
	opts   Options
	queues []chan job
	wg     sync.WaitGroup
	failed atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	d.wg.Add(opts.Workers)
	for i := range d.queues {
		d.queues[i] = make(chan job, opts.QueueSize)
		go d.work(d.queues[i])
	}
	return d
}

// Enqueue schedules run on the worker owning key without blocking. run is
// retried on transient failures, so it must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, key int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queues[d.shard(key)] <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns how many jobs failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) shard(key int64) int {
	return int(uint64(key) % uint64(len(d.queues)))
}

func (d *Dispatcher) work(q <-chan job) {
	defer d.wg.Done()
	for j := range q {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	attempts, err := d.attempt(ctx, j)
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	}
	if err == nil {
		level := slog.LevelDebug
		if attempts > 1 {
			level = slog.LevelInfo
		}
		logger.Event(j.ctx, component, level, "send.done", append(attrs, slog.String("status", "ok"))...)
		return
	}
	d.failed.Add(1)
	logger.Error(j.ctx, component, "send.fail", append(attrs,
		slog.String("status", "fail"),
		slog.String("err", redactToken(err.Error())),
		slog.String("err_code", errorKind(err)),
	)...)
}

// attempt runs j until it succeeds, fails permanently, runs out of retries or
// ctx expires. It returns how many times run was called.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		err := j.run()
		if err == nil {
			return n, nil
		}
		wait, ok := d.retryDelay(err, n)
		if !ok || n >= limit {
			return n, err
		}
		if deadline, has := ctx.Deadline(); has && time.Until(deadline) < wait {
			return n, err
		}
		logger.Debug(j.ctx, component, "send.retry",
			slog.String("action", j.action),
			slog.Int("attempt", n),
			slog.Duration("backoff", wait),
			slog.String("err_code", errorKind(err)),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, err
		case <-timer.C:
		}
	}
}

// retryDelay says whether err is worth another attempt and how long to wait.
// Flood control errors carry their own wait.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(max(flood.RetryAfter, 1)) * time.Second, true
	}
	if netutil.Retryable(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}
