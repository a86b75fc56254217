// Package router decides, for each payment event, whether and how the
// merchant is notified, and records every live attempt in the ledger.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/metrics"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

var (
	// ErrNotRegistered is returned for events addressed to unknown merchants.
	ErrNotRegistered = errors.New("merchant not registered")
	// ErrInactive is returned for merchants that have notifications switched off.
	ErrInactive = errors.New("merchant inactive")
)

const (
	DefaultBatchSize  = 10
	DefaultBatchPause = 500 * time.Millisecond
)

// Config tunes batch routing.
type Config struct {
	BatchSize  int
	BatchPause time.Duration
}

// Result is the per-event outcome of RouteBatch.
type Result struct {
	EventID    string `json:"event_id"`
	MerchantID string `json:"merchant_id"`
	Delivered  bool   `json:"delivered"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// Router routes payment events to merchant transports.
type Router struct {
	store      ledger.Store
	directory  merchant.Directory
	transports *delivery.Registry
	stats      *Stats
	conf       Config
	log        *slog.Logger
}

// New creates a Router. Zero Config fields take the package defaults.
func New(store ledger.Store, dir merchant.Directory, transports *delivery.Registry, conf Config, log *slog.Logger) *Router {
	if conf.BatchSize <= 0 {
		conf.BatchSize = DefaultBatchSize
	}
	if conf.BatchPause < 0 {
		conf.BatchPause = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:      store,
		directory:  dir,
		transports: transports,
		stats:      NewStats(),
		conf:       conf,
		log:        log,
	}
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Snapshot { return r.stats.Snapshot() }

// ResetStats zeroes the routing counters.
func (r *Router) ResetStats() { r.stats.Reset() }

// Route delivers evt to its merchant once. It reports true when the event
// has been delivered, now or previously.
func (r *Router) Route(ctx context.Context, evt payment.Event, eventType string) (bool, error) {
	evt = evt.Normalize()
	if eventType == "" {
		eventType = signing.DefaultEventType
	}
	key := ledger.Key{EventID: evt.ID(), MerchantID: merchant.NormalizeID(evt.MerchantID)}
	log := r.log.With("event_id", key.EventID, "merchant", key.MerchantID)
	r.stats.total.Add(1)

	existing, err := r.store.Get(ctx, key)
	switch {
	case err == nil && existing.Success:
		r.stats.alreadyProcessed.Add(1)
		metrics.EventsRouted.WithLabelValues(metrics.OutcomeAlreadyProcessed).Inc()
		log.Debug("event already delivered")
		return true, nil
	case err == nil && existing.State() == ledger.StateExhausted:
		r.stats.exhausted.Add(1)
		metrics.EventsRouted.WithLabelValues(metrics.OutcomeExhausted).Inc()
		log.Warn("event delivery exhausted, not retrying", "retry_count", existing.RetryCount)
		return false, fmt.Errorf("%w: %s/%s", delivery.ErrExhausted, key.EventID, key.MerchantID)
	case err != nil && !errors.Is(err, ledger.ErrNotFound):
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	pending := err == nil

	m, err := r.directory.Lookup(ctx, key.MerchantID)
	if err != nil {
		if errors.Is(err, merchant.ErrNotFound) {
			r.stats.notRegistered.Add(1)
			metrics.EventsRouted.WithLabelValues(metrics.OutcomeNotRegistered).Inc()
			log.Info("merchant not registered for notifications")
			return false, fmt.Errorf("%w: %s", ErrNotRegistered, key.MerchantID)
		}
		return false, fmt.Errorf("merchant lookup: %w", err)
	}
	if !m.Active {
		r.stats.inactive.Add(1)
		metrics.EventsRouted.WithLabelValues(metrics.OutcomeInactive).Inc()
		log.Info("merchant notifications inactive")
		return false, fmt.Errorf("%w: %s", ErrInactive, key.MerchantID)
	}

	t, err := r.transportFor(m)
	if err != nil {
		return false, r.configError(log, err)
	}

	start := time.Now()
	out := t.Deliver(ctx, m, evt, eventType)
	metrics.DeliveryDuration.WithLabelValues(string(m.Kind)).Observe(float64(time.Since(start).Milliseconds()))
	if errors.Is(out.Err, delivery.ErrConfiguration) {
		return false, r.configError(log, out.Err)
	}

	rec := ledger.Record{
		Key:          key,
		Transport:    m.Kind,
		EventType:    eventType,
		Payload:      out.Payload,
		Success:      out.Success,
		ResponseCode: out.ResponseCode,
		ResponseBody: out.ResponseBody,
		NextRetryAt:  out.NextRetryAt,
	}
	if pending && !out.Success {
		// The scheduler owns the retry clock of an existing record.
		rec.NextRetryAt = existing.NextRetryAt
	}
	if err := r.store.Record(ctx, rec); err != nil {
		log.Error("failed to record delivery attempt", "err", err)
		r.countAttempt(m.Kind, out.Success)
		return out.Success, fmt.Errorf("record delivery: %w", err)
	}
	r.countAttempt(m.Kind, out.Success)
	if pending && !out.Success {
		// A sweep may have exhausted the record during the attempt.
		if cur, err := r.store.Get(ctx, key); err == nil {
			rec.NextRetryAt = cur.NextRetryAt
		}
	}

	if out.Success {
		metrics.EventsRouted.WithLabelValues(metrics.OutcomeDelivered).Inc()
		log.Info("notification delivered", "transport", m.Kind)
		return true, nil
	}

	metrics.EventsRouted.WithLabelValues(metrics.OutcomeFailed).Inc()
	if rec.NextRetryAt == nil {
		r.stats.exhausted.Add(1)
		metrics.DeliveriesExhausted.WithLabelValues(string(m.Kind)).Inc()
		log.Error("notification failed with no retries left", "transport", m.Kind, "err", out.Err)
		return false, fmt.Errorf("%w: %w", delivery.ErrExhausted, out.Err)
	}
	log.Warn("notification failed, retry scheduled", "transport", m.Kind, "next_retry_at", rec.NextRetryAt, "err", out.Err)
	return false, out.Err
}

// transportFor picks the transport for m's kind.
func (r *Router) transportFor(m merchant.Merchant) (delivery.Transport, error) {
	switch m.Kind {
	case merchant.KindWebhook, merchant.KindChat:
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)
		}
		return r.transports.Get(m.Kind)
	default:
		return nil, fmt.Errorf("%w: merchant %s has unknown transport kind %q", delivery.ErrConfiguration, m.ID, m.Kind)
	}
}

func (r *Router) configError(log *slog.Logger, err error) error {
	r.stats.configErrors.Add(1)
	metrics.EventsRouted.WithLabelValues(metrics.OutcomeConfigError).Inc()
	log.Error("merchant notification misconfigured", "err", err)
	return err
}

func (r *Router) countAttempt(k merchant.Kind, ok bool) {
	status := "failed"
	if ok {
		status = "sent"
		r.stats.recordSent(k)
	} else {
		r.stats.recordFailed(k)
	}
	metrics.Deliveries.WithLabelValues(string(k), "live", status).Inc()
}

// RouteBatch routes events in groups of BatchSize, concurrently within a
// group, pausing BatchPause between groups. Results are in input order.
func (r *Router) RouteBatch(ctx context.Context, events []payment.Event, eventType string) []Result {
	results := make([]Result, len(events))
	for start := 0; start < len(events); start += r.conf.BatchSize {
		if start > 0 && r.conf.BatchPause > 0 {
			select {
			case <-time.After(r.conf.BatchPause):
			case <-ctx.Done():
				for i := start; i < len(events); i++ {
					results[i] = newResult(events[i], false, ctx.Err())
				}
				return results
			}
		}
		end := min(start+r.conf.BatchSize, len(events))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := r.safeRoute(ctx, events[i], eventType)
				results[i] = newResult(events[i], ok, err)
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (r *Router) safeRoute(ctx context.Context, evt payment.Event, eventType string) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while routing event", "event_id", evt.ID(), "panic", p)
			ok, err = false, fmt.Errorf("routing panic: %v", p)
		}
	}()
	return r.Route(ctx, evt, eventType)
}

func newResult(evt payment.Event, ok bool, err error) Result {
	evt = evt.Normalize()
	res := Result{
		EventID:    evt.ID(),
		MerchantID: merchant.NormalizeID(evt.MerchantID),
		Delivered:  ok,
		Err:        err,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
