package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/observability"
)

// Notifier delivers a notification (email, alert bus, log).
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// SideEffect is deferred work appended after a transaction commits.
// Failures are logged and never reach the caller.
type SideEffect struct {
	Event string
	Run   func(ctx context.Context) error
}

// EffectSink accepts side effects.
type EffectSink interface {
	Enqueue(e SideEffect)
}

// SideEffectQueue drains side effects on background workers.
type SideEffectQueue struct {
	ch      chan SideEffect
	timeout time.Duration

	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewSideEffectQueue starts workers draining a queue of capacity size.
// Each effect gets timeout to finish.
func NewSideEffectQueue(size, workers int, timeout time.Duration) *SideEffectQueue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	q := &SideEffectQueue{ch: make(chan SideEffect, size), timeout: timeout}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue adds e without blocking. Effects are dropped (and logged) when the
// queue is full or closed.
func (q *SideEffectQueue) Enqueue(e SideEffect) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		log.Warn().Str("event", e.Event).Msg("side effect dropped: queue closed")
		observability.NotificationOutcome(e.Event, "dropped")
		return
	}
	select {
	case q.ch <- e:
	default:
		log.Warn().Str("event", e.Event).Msg("side effect dropped: queue full")
		observability.NotificationOutcome(e.Event, "dropped")
	}
}

// Close stops accepting effects and waits for queued ones to finish or ctx
// to expire.
func (q *SideEffectQueue) Close(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SideEffectQueue) worker() {
	defer q.wg.Done()
	for e := range q.ch {
		q.run(e)
	}
}

func (q *SideEffectQueue) run(e SideEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", e.Event).Interface("panic", r).Msg("side effect panicked")
			observability.NotificationOutcome(e.Event, "failed")
		}
	}()
	if err := e.Run(ctx); err != nil {
		log.Error().Err(err).Str("event", e.Event).Msg("side effect failed")
		observability.NotificationOutcome(e.Event, "failed")
		return
	}
	observability.NotificationOutcome(e.Event, "sent")
}
