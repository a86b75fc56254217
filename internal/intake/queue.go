// Package intake buffers payment events from the event source and feeds
// them to the router on a fixed pool of workers.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/metrics"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/router"
)

const (
	DefaultWorkers    = 8
	DefaultQueueDepth = 1000
)

var (
	// ErrQueueFull is returned when the intake queue cannot take more events.
	ErrQueueFull = errors.New("intake queue full")
	// ErrClosed is returned by Submit after Drain.
	ErrClosed = errors.New("intake queue closed")
)

// Router is the part of router.Router the queue drives.
type Router interface {
	Route(ctx context.Context, evt payment.Event, eventType string) (bool, error)
}

// Config sizes the queue.
type Config struct {
	Workers    int
	QueueDepth int
}

type job struct {
	evt       payment.Event
	eventType string
}

// Queue is a bounded, non-blocking event intake.
type Queue struct {
	pool   *workerPool[job]
	router Router
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New starts the workers. They stop when ctx is cancelled or Drain is called.
func New(ctx context.Context, r Router, conf Config, log *slog.Logger) *Queue {
	if conf.Workers <= 0 {
		conf.Workers = DefaultWorkers
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = DefaultQueueDepth
	}
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{router: r, log: log.With("component", "intake")}
	q.pool = newWorkerPool[job](ctx, conf.Workers, conf.QueueDepth, q.process)
	return q
}

// Submit enqueues evt. It never blocks; ErrQueueFull means the event was
// dropped and the caller should retry later.
func (q *Queue) Submit(evt payment.Event, eventType string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	if !q.pool.Submit(job{evt: evt, eventType: eventType}) {
		metrics.EventsDropped.Inc()
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, q.pool.QueueCap())
	}
	metrics.EventsEnqueued.Inc()
	metrics.QueueUtilization.Set(q.Utilization())
	return nil
}

// Utilization returns queue used / capacity (0–1).
func (q *Queue) Utilization() float64 {
	if q.pool.QueueCap() == 0 {
		return 0
	}
	return float64(q.pool.QueueLen()) / float64(q.pool.QueueCap())
}

// Len returns how many events are waiting.
func (q *Queue) Len() int { return q.pool.QueueLen() }

// Drain stops accepting events and waits for queued ones to be routed.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.pool.Drain()
}

func (q *Queue) process(ctx context.Context, j job) {
	defer func() {
		if p := recover(); p != nil {
			q.log.Error("panic while routing queued event", "event_id", j.evt.ID(), "panic", p)
		}
	}()
	metrics.QueueUtilization.Set(q.Utilization())

	ok, err := q.router.Route(ctx, j.evt, j.eventType)
	switch {
	case err == nil:
		q.log.Debug("queued event routed", "event_id", j.evt.ID(), "delivered", ok)
	case errors.Is(err, router.ErrNotRegistered), errors.Is(err, router.ErrInactive):
		// Expected for merchants without notifications; logged by the router.
	case errors.Is(err, delivery.ErrTransient):
		q.log.Info("queued event delivery failed, retry scheduled", "event_id", j.evt.ID(), "err", err)
	default:
		q.log.Warn("queued event not delivered", "event_id", j.evt.ID(), "err", err)
	}
}
