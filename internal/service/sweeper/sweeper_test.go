package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Allow to use a function as expirer
type expirerFunc func(ctx context.Context, before time.Time) (int64, error)

func (f expirerFunc) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return f(ctx, before)
}

type recorder struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (r *recorder) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, before)
	return int64(len(r.calls)), r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSweeper_New(t *testing.T) {
	s := New(Config{}, &recorder{}, &recorder{}, nil)

	assert.Equal(t, 5*time.Minute, s.interval)
	assert.NotNil(t, s.logger)
}

func TestSweeper_SweepOnce(t *testing.T) {
	t.Run("both swept with same moment", func(t *testing.T) {
		now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		tokens, sessions := &recorder{}, &recorder{}
		s := New(Config{}, tokens, sessions, nil)
		s.now = func() time.Time { return now }

		s.SweepOnce(t.Context())

		require.Equal(t, []time.Time{now}, tokens.calls)
		require.Equal(t, []time.Time{now}, sessions.calls)
	})

	t.Run("failure does not stop other sweep", func(t *testing.T) {
		sessions := &recorder{}
		tokens := expirerFunc(func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("db is down")
		})
		s := New(Config{}, tokens, sessions, nil)

		s.SweepOnce(t.Context())

		require.Equal(t, 1, sessions.count())
	})
}

func TestSweeper_Run(t *testing.T) {
	t.Run("sweeps on tick and stops with context", func(t *testing.T) {
		tokens := &recorder{err: errors.New("errors keep loop going")}
		sessions := &recorder{}
		s := New(Config{Interval: 10 * time.Millisecond}, tokens, sessions, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool {
			return tokens.count() >= 3 && sessions.count() >= 3
		}, time.Second, 5*time.Millisecond, "sweeper should tick several times")

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})
}
