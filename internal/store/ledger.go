package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Ledger is the SQL-backed ledger.Store.
type Ledger struct {
	db  *bun.DB
	now func() time.Time
}

// NewLedger returns a Ledger on db. The schema must already exist (see Migrate).
func NewLedger(db *bun.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("store: bun db is required")
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (l *Ledger) Get(ctx context.Context, key ledger.Key) (ledger.Record, error) {
	row := &deliveryRow{}
	err := l.db.NewSelect().
		Model(row).
		Where("?TableAlias.event_id = ?", key.EventID).
		Where("?TableAlias.merchant_id = ?", key.MerchantID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, fmt.Errorf("%w: %s/%s", ledger.ErrNotFound, key.EventID, key.MerchantID)
		}
		return ledger.Record{}, fmt.Errorf("store: get delivery: %w", err)
	}
	return deliveryToDomain(row), nil
}

// Record inserts the attempt outcome, or on key conflict overwrites the
// outcome of an unsuccessful row. retry_count, id and created_at survive.
func (l *Ledger) Record(ctx context.Context, rec ledger.Record) error {
	now := l.now()
	row := deliveryFromDomain(rec)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt, row.UpdatedAt = now, now

	res, err := l.db.NewInsert().
		Model(row).
		On("CONFLICT (event_id, merchant_id) DO NOTHING").
		Exec(ctx)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("store: insert delivery: %w", err)
	}
	if err == nil {
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	q := l.db.NewUpdate().
		Model((*deliveryRow)(nil)).
		Set("transport = ?", row.Transport).
		Set("event_type = ?", row.EventType).
		Set("payload = ?", row.Payload).
		Set("success = ?", row.Success).
		Set("response_code = ?", row.ResponseCode).
		Set("response_body = ?", row.ResponseBody).
		Set("next_retry_at = ?", row.NextRetryAt).
		Set("updated_at = ?", now).
		Where("event_id = ?", row.EventID).
		Where("merchant_id = ?", row.MerchantID).
		Where("success = ?", false)
	if !row.Success {
		// Exhausted rows stay exhausted.
		q = q.Where("next_retry_at IS NOT NULL")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("store: update delivery: %w", err)
	}
	return nil
}

func (l *Ledger) MarkSucceeded(ctx context.Context, key ledger.Key, code *int, body string) error {
	_, err := l.db.NewUpdate().
		Model((*deliveryRow)(nil)).
		Set("success = ?", true).
		Set("next_retry_at = NULL").
		Set("response_code = ?", code).
		Set("response_body = ?", body).
		Set("updated_at = ?", l.now()).
		Where("event_id = ?", key.EventID).
		Where("merchant_id = ?", key.MerchantID).
		Where("success = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: mark succeeded: %w", err)
	}
	return nil
}

func (l *Ledger) MarkFailed(ctx context.Context, key ledger.Key, f ledger.Failure) error {
	var next *time.Time
	if f.NextRetryAt != nil {
		t := f.NextRetryAt.UTC()
		next = &t
	}
	_, err := l.db.NewUpdate().
		Model((*deliveryRow)(nil)).
		Set("retry_count = ?", f.RetryCount).
		Set("next_retry_at = ?", next).
		Set("response_code = ?", f.ResponseCode).
		Set("response_body = ?", f.ResponseBody).
		Set("updated_at = ?", l.now()).
		Where("event_id = ?", key.EventID).
		Where("merchant_id = ?", key.MerchantID).
		Where("success = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return nil
}

func (l *Ledger) Due(ctx context.Context, transport merchant.Kind, now time.Time, limit int) ([]ledger.Record, error) {
	var rows []deliveryRow
	q := l.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.transport = ?", string(transport)).
		Where("?TableAlias.success = ?", false).
		Where("?TableAlias.next_retry_at IS NOT NULL").
		Where("?TableAlias.next_retry_at <= ?", now.UTC()).
		Order("next_retry_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: due deliveries: %w", err)
	}
	return toDomain(rows), nil
}

func (l *Ledger) List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error) {
	var rows []deliveryRow
	q := l.db.NewSelect().Model(&rows)
	if f.MerchantID != "" {
		q = q.Where("?TableAlias.merchant_id = ?", f.MerchantID)
	}
	if f.Transport != "" {
		q = q.Where("?TableAlias.transport = ?", string(f.Transport))
	}
	switch f.State {
	case ledger.StateDelivered:
		q = q.Where("?TableAlias.success = ?", true)
	case ledger.StatePending:
		q = q.Where("?TableAlias.success = ?", false).Where("?TableAlias.next_retry_at IS NOT NULL")
	case ledger.StateExhausted:
		q = q.Where("?TableAlias.success = ?", false).Where("?TableAlias.next_retry_at IS NULL")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	if err := q.Order("updated_at DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: list deliveries: %w", err)
	}
	return toDomain(rows), nil
}

func toDomain(rows []deliveryRow) []ledger.Record {
	out := make([]ledger.Record, 0, len(rows))
	for i := range rows {
		out = append(out, deliveryToDomain(&rows[i]))
	}
	return out
}

var _ ledger.Store = (*Ledger)(nil)
