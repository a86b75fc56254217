package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Memory is a process-local Store, used with database.driver "memory" and in
// tests.
type Memory struct {
	mu      sync.Mutex
	records map[Key]*Record
	now     func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[Key]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Get(_ context.Context, key Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, key.EventID, key.MerchantID)
	}
	return clone(r), nil
}

func (m *Memory) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	existing, ok := m.records[rec.Key]
	if !ok {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt, rec.UpdatedAt = now, now
		m.records[rec.Key] = &rec
		return nil
	}
	if existing.Success || (!rec.Success && existing.State() == StateExhausted) {
		return nil
	}
	existing.Transport = rec.Transport
	existing.EventType = rec.EventType
	existing.Payload = rec.Payload
	existing.Success = rec.Success
	existing.ResponseCode = copyInt(rec.ResponseCode)
	existing.ResponseBody = rec.ResponseBody
	existing.NextRetryAt = copyTime(rec.NextRetryAt)
	existing.UpdatedAt = now
	return nil
}

func (m *Memory) MarkSucceeded(_ context.Context, key Key, code *int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, key.EventID, key.MerchantID)
	}
	if r.Success {
		return nil
	}
	r.Success = true
	r.NextRetryAt = nil
	r.ResponseCode = copyInt(code)
	r.ResponseBody = body
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, key Key, f Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, key.EventID, key.MerchantID)
	}
	if r.Success {
		return nil
	}
	r.RetryCount = f.RetryCount
	r.NextRetryAt = copyTime(f.NextRetryAt)
	r.ResponseCode = copyInt(f.ResponseCode)
	r.ResponseBody = f.ResponseBody
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Due(_ context.Context, transport merchant.Kind, now time.Time, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Success || r.Transport != transport || r.NextRetryAt == nil || r.NextRetryAt.After(now) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if f.MerchantID != "" && r.MerchantID != f.MerchantID {
			continue
		}
		if f.Transport != "" && r.Transport != f.Transport {
			continue
		}
		if f.State != "" && r.State() != f.State {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(r *Record) Record {
	c := *r
	c.ResponseCode = copyInt(r.ResponseCode)
	c.NextRetryAt = copyTime(r.NextRetryAt)
	return c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := v.UTC()
	return &c
}

var _ Store = (*Memory)(nil)
