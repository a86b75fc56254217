// Package ledger defines the persisted log of delivery attempts: one record
// per (event id, merchant id), updated in place until it either succeeds or
// runs out of retries.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("delivery record not found")

// Key identifies a delivery record.
type Key struct {
	EventID    string `json:"event_id"`
	MerchantID string `json:"merchant_id"`
}

// State is the lifecycle position of a record derived from its fields.
type State string

const (
	StatePending   State = "pending"
	StateDelivered State = "delivered"
	StateExhausted State = "exhausted"
)

// Record is one delivery ledger row.
type Record struct {
	Key
	ID           string        `json:"id"`
	Transport    merchant.Kind `json:"transport"`
	EventType    string        `json:"event_type"`
	Payload      string        `json:"payload"`
	Success      bool          `json:"success"`
	ResponseCode *int          `json:"response_code,omitempty"`
	ResponseBody string        `json:"response_body,omitempty"`
	RetryCount   int           `json:"retry_count"`
	NextRetryAt  *time.Time    `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// State derives the lifecycle state: delivered once successful, pending while
// a retry is scheduled, exhausted otherwise.
func (r Record) State() State {
	switch {
	case r.Success:
		return StateDelivered
	case r.NextRetryAt != nil:
		return StatePending
	default:
		return StateExhausted
	}
}

// Failure carries the outcome of a failed retry.
type Failure struct {
	RetryCount   int
	NextRetryAt  *time.Time
	ResponseCode *int
	ResponseBody string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	MerchantID string
	Transport  merchant.Kind
	State      State
	Limit      int
}

// Store is the query contract the delivery engine needs from storage.
//
// Every mutation is guarded by success = false, so a record that has been
// marked successful is never changed again.
type Store interface {
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)
	// Record stores the outcome of a live attempt. A new key creates the
	// record; an existing unsuccessful record keeps its id, creation time and
	// retry count and takes the new outcome. A failed outcome leaves an
	// exhausted record untouched.
	Record(ctx context.Context, rec Record) error
	// MarkSucceeded makes the record terminal-successful.
	MarkSucceeded(ctx context.Context, key Key, code *int, body string) error
	// MarkFailed records a failed retry.
	MarkFailed(ctx context.Context, key Key, f Failure) error
	// Due returns unsuccessful records of the given transport whose retry time
	// is at or before now, oldest first.
	Due(ctx context.Context, transport merchant.Kind, now time.Time, limit int) ([]Record, error)
	// List returns records matching f, most recently updated first.
	List(ctx context.Context, f Filter) ([]Record, error)
}

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// TruncateBody bounds stored response bodies.
func TruncateBody(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}
	return body[:max]
}
