package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Merchants is a merchant.Directory backed by the merchants table.
type Merchants struct {
	db *bun.DB
}

// NewMerchants returns a directory on db.
func NewMerchants(db *bun.DB) (*Merchants, error) {
	if db == nil {
		return nil, fmt.Errorf("store: bun db is required")
	}
	return &Merchants{db: db}, nil
}

func (s *Merchants) Lookup(ctx context.Context, id string) (merchant.Merchant, error) {
	row := &merchantRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", merchant.NormalizeID(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merchant.Merchant{}, fmt.Errorf("%w: %s", merchant.ErrNotFound, id)
		}
		return merchant.Merchant{}, fmt.Errorf("store: lookup merchant: %w", err)
	}
	return merchantToDomain(row), nil
}

// Upsert inserts m or replaces the stored settings for its id.
func (s *Merchants) Upsert(ctx context.Context, m merchant.Merchant) error {
	now := time.Now().UTC()
	row := &merchantRow{
		ID:            merchant.NormalizeID(m.ID),
		Name:          m.Name,
		Kind:          string(m.Kind),
		WebhookURL:    m.WebhookURL,
		WebhookSecret: m.WebhookSecret,
		ChatID:        m.ChatID,
		Active:        m.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("kind = EXCLUDED.kind").
		Set("webhook_url = EXCLUDED.webhook_url").
		Set("webhook_secret = EXCLUDED.webhook_secret").
		Set("chat_id = EXCLUDED.chat_id").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert merchant: %w", err)
	}
	return nil
}

// List returns all merchants ordered by id.
func (s *Merchants) List(ctx context.Context) ([]merchant.Merchant, error) {
	var rows []merchantRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("store: list merchants: %w", err)
	}
	out := make([]merchant.Merchant, 0, len(rows))
	for i := range rows {
		out = append(out, merchantToDomain(&rows[i]))
	}
	return out, nil
}

var _ merchant.Directory = (*Merchants)(nil)
