// Package scheduler periodically retries failed deliveries of one transport
// kind until they succeed or their retry policy is exhausted.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/metrics"
)

const (
	DefaultInterval   = time.Minute
	DefaultBatchLimit = 100
)

// Config tunes the sweep loop.
type Config struct {
	Interval   time.Duration
	BatchLimit int
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Due           int `json:"due"`
	Delivered     int `json:"delivered"`
	Failed        int `json:"failed"`
	Exhausted     int `json:"exhausted"`
	Misconfigured int `json:"misconfigured"`
}

// Scheduler retries due ledger records through a single transport.
type Scheduler struct {
	transport delivery.Transport
	store     ledger.Store
	directory merchant.Directory
	conf      Config
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Scheduler for t's kind. Zero Config fields take the package
// defaults.
func New(t delivery.Transport, store ledger.Store, dir merchant.Directory, conf Config, log *slog.Logger) *Scheduler {
	if conf.Interval <= 0 {
		conf.Interval = DefaultInterval
	}
	if conf.BatchLimit <= 0 {
		conf.BatchLimit = DefaultBatchLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		transport: t,
		store:     store,
		directory: dir,
		conf:      conf,
		log:       log.With("component", "scheduler", "transport", t.Kind()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Kind returns the transport kind this scheduler retries.
func (s *Scheduler) Kind() merchant.Kind { return s.transport.Kind() }

// Run sweeps every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("retry scheduler started", "interval", s.conf.Interval)
	ticker := time.NewTicker(s.conf.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("retry scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("retry sweep failed", "err", err)
			}
		}
	}
}

// Sweep retries every record that is due now. Cancelling ctx stops the
// sweep between records; an attempt already in flight completes.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	kind := s.transport.Kind()
	due, err := s.store.Due(ctx, kind, s.now(), s.conf.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("load due deliveries: %w", err)
	}
	res.Due = len(due)
	metrics.RetrySweepDue.WithLabelValues(string(kind)).Set(float64(len(due)))
	if len(due) == 0 {
		return res, nil
	}
	s.log.Debug("retrying due deliveries", "count", len(due))

	work := context.WithoutCancel(ctx)
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.retry(work, rec, &res); err != nil {
			s.log.Error("retry bookkeeping failed", "event_id", rec.EventID, "merchant", rec.MerchantID, "err", err)
		}
	}
	return res, nil
}

func (s *Scheduler) retry(ctx context.Context, rec ledger.Record, res *SweepResult) error {
	// Counting the live attempt, failing here is failure number retries+1.
	retries := rec.RetryCount + 1
	log := s.log.With("event_id", rec.EventID, "merchant", rec.MerchantID, "retry", retries)

	m, err := s.directory.Lookup(ctx, rec.MerchantID)
	if err != nil {
		if !errors.Is(err, merchant.ErrNotFound) {
			// Directory outage: leave the record for the next sweep.
			return fmt.Errorf("merchant lookup: %w", err)
		}
		return s.terminal(ctx, log, rec, res, "Missing merchant configuration: merchant is not registered")
	}
	if m.Kind != rec.Transport {
		return s.terminal(ctx, log, rec, res,
			fmt.Sprintf("Missing %s configuration: merchant now uses %s", rec.Transport, m.Kind))
	}
	if err := m.Validate(); err != nil {
		return s.terminal(ctx, log, rec, res, "Missing "+string(rec.Transport)+" configuration: "+err.Error())
	}

	start := time.Now()
	out := s.transport.Redeliver(ctx, rec, m)
	metrics.DeliveryDuration.WithLabelValues(string(rec.Transport)).Observe(float64(time.Since(start).Milliseconds()))

	if out.Success {
		res.Delivered++
		metrics.Deliveries.WithLabelValues(string(rec.Transport), "retry", "sent").Inc()
		log.Info("retry delivered")
		return s.store.MarkSucceeded(ctx, rec.Key, out.ResponseCode, out.ResponseBody)
	}
	if errors.Is(out.Err, delivery.ErrConfiguration) {
		body := out.ResponseBody
		if body == "" && out.Err != nil {
			body = out.Err.Error()
		}
		return s.terminal(ctx, log, rec, res, body)
	}

	metrics.Deliveries.WithLabelValues(string(rec.Transport), "retry", "failed").Inc()
	next := delivery.NextRetry(s.transport.Policy(), retries+1, s.now())
	if next == nil {
		res.Exhausted++
		metrics.DeliveriesExhausted.WithLabelValues(string(rec.Transport)).Inc()
		log.Error("all retries exhausted", "err", out.Err)
	} else {
		res.Failed++
		log.Warn("retry failed", "next_retry_at", next, "err", out.Err)
	}
	return s.store.MarkFailed(ctx, rec.Key, ledger.Failure{
		RetryCount:   retries,
		NextRetryAt:  next,
		ResponseCode: out.ResponseCode,
		ResponseBody: out.ResponseBody,
	})
}

// terminal ends a record that can never be delivered as configured.
func (s *Scheduler) terminal(ctx context.Context, log *slog.Logger, rec ledger.Record, res *SweepResult, reason string) error {
	res.Misconfigured++
	metrics.DeliveriesExhausted.WithLabelValues(string(rec.Transport)).Inc()
	log.Error("retry abandoned: merchant misconfigured", "reason", reason)
	return s.store.MarkFailed(ctx, rec.Key, ledger.Failure{
		RetryCount:   rec.RetryCount + 1,
		ResponseBody: ledger.TruncateBody(reason, delivery.MaxResponseBody),
	})
}
