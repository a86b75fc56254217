// Package delivery holds the transport contract shared by the webhook and
// chat senders, the retry policies, and the delivery error taxonomy.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
)

var (
	// ErrConfiguration marks a merchant or transport that cannot be used as
	// configured. Never retried, never recorded.
	ErrConfiguration = errors.New("delivery configuration error")
	// ErrTransient marks a failed attempt that may succeed later.
	ErrTransient = errors.New("delivery failed")
	// ErrExhausted marks a delivery that has run out of retries.
	ErrExhausted = errors.New("delivery retries exhausted")
)

// MaxResponseBody bounds the response body kept in the ledger.
const MaxResponseBody = 4 << 10

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Success bool
	// Payload is the serialized message actually sent; it is what a retry
	// resends.
	Payload      string
	ResponseCode *int
	ResponseBody string
	// NextRetryAt is the first retry time after a failed live attempt, or
	// nil when the policy allows no retries.
	NextRetryAt *time.Time
	Err         error
}

// Transport delivers notifications over one channel.
type Transport interface {
	// Kind returns the merchant kind this transport serves.
	Kind() merchant.Kind
	// Deliver performs a live attempt for evt.
	Deliver(ctx context.Context, m merchant.Merchant, evt payment.Event, eventType string) Outcome
	// Redeliver resends a stored record to the merchant's current settings.
	Redeliver(ctx context.Context, rec ledger.Record, m merchant.Merchant) Outcome
	// Policy returns the retry policy for this transport.
	Policy() RetryPolicy
}

// Failed builds a failed Outcome whose next retry follows p after the first
// attempt.
func Failed(p RetryPolicy, now time.Time, payload string, code *int, body string, err error) Outcome {
	return Outcome{
		Payload:      payload,
		ResponseCode: code,
		ResponseBody: ledger.TruncateBody(body, MaxResponseBody),
		NextRetryAt:  NextRetry(p, 1, now),
		Err:          err,
	}
}
