package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPutGetDelete(t *testing.T) {
	s := New[int, string]()

	require.NoError(t, s.Do(1, func(tx *Tx[int, string]) error {
		_, ok := tx.Get()
		assert.False(t, ok)
		tx.Put("a")
		v, ok := tx.Get()
		assert.True(t, ok)
		assert.Equal(t, "a", v)
		return nil
	}))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Do(1, func(tx *Tx[int, string]) error {
		assert.True(t, tx.Delete())
		assert.False(t, tx.Delete())
		return nil
	}))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.locks)
}

func TestResetReplacesValueAndRefreshesIt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New[int, string](WithClock(clock.Now))

	_ = s.Do(7, func(tx *Tx[int, string]) error {
		assert.False(t, tx.Reset("first"))
		return nil
	})
	clock.Advance(time.Minute)
	_ = s.Do(7, func(tx *Tx[int, string]) error {
		assert.True(t, tx.Reset("second"))
		v, _ := tx.Get()
		assert.Equal(t, "second", v)
		return nil
	})
	assert.Equal(t, 1, s.Len())

	clock.Advance(30 * time.Second)
	assert.Empty(t, s.Sweep(45*time.Second))
	clock.Advance(30 * time.Second)
	assert.Equal(t, []int{7}, s.Sweep(45*time.Second))
}

func TestDoSerializesSameKey(t *testing.T) {
	s := New[int, int]()
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(42, func(tx *Tx[int, int]) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				v, _ := tx.Get()
				time.Sleep(100 * time.Microsecond)
				tx.Put(v + 1)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	_ = s.Do(42, func(tx *Tx[int, int]) error {
		v, _ := tx.Get()
		assert.Equal(t, 50, v)
		return nil
	})
	assert.Empty(t, s.locks)
}

func TestDoDoesNotBlockOtherKeys(t *testing.T) {
	s := New[int, int]()
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = s.Do(1, func(tx *Tx[int, int]) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = s.Do(2, func(tx *Tx[int, int]) error {
			tx.Put(1)
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key 2 waited for key 1")
	}
	close(hold)
}

func TestSweepRemovesIdleValues(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := New[string, int](WithClock(clock.Now))

	_ = s.Do("old", func(tx *Tx[string, int]) error { tx.Put(1); return nil })
	clock.Advance(20 * time.Minute)
	_ = s.Do("fresh", func(tx *Tx[string, int]) error { tx.Put(2); return nil })
	clock.Advance(15 * time.Minute)

	assert.Nil(t, s.Sweep(0))
	expired := s.Sweep(30 * time.Minute)
	assert.Equal(t, []string{"old"}, expired)
	assert.Equal(t, 1, s.Len())
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{now: time.Unix(0, 0)}
	s := New[int, int](WithClock(clock.Now))
	_ = s.Do(1, func(tx *Tx[int, int]) error { tx.Put(1); return nil })
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []int, 1)
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Minute, 5*time.Millisecond, func(keys []int) { got <- keys })
		close(done)
	}()

	select {
	case keys := <-got:
		assert.Equal(t, []int{1}, keys)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not expire the idle value")
	}
	cancel()
	<-done
}
