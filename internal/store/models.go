package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

type deliveryRow struct {
	bun.BaseModel `bun:"table:notification_deliveries,alias:nd"`

	ID           string     `bun:"id,pk"`
	EventID      string     `bun:"event_id,notnull"`
	MerchantID   string     `bun:"merchant_id,notnull"`
	Transport    string     `bun:"transport,notnull"`
	EventType    string     `bun:"event_type,notnull"`
	Payload      string     `bun:"payload,notnull"`
	Success      bool       `bun:"success,notnull"`
	ResponseCode *int       `bun:"response_code"`
	ResponseBody string     `bun:"response_body"`
	RetryCount   int        `bun:"retry_count,notnull"`
	NextRetryAt  *time.Time `bun:"next_retry_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type merchantRow struct {
	bun.BaseModel `bun:"table:merchants,alias:m"`

	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name"`
	Kind          string    `bun:"kind,notnull"`
	WebhookURL    string    `bun:"webhook_url"`
	WebhookSecret string    `bun:"webhook_secret"`
	ChatID        string    `bun:"chat_id"`
	Active        bool      `bun:"active,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func deliveryToDomain(row *deliveryRow) ledger.Record {
	rec := ledger.Record{
		Key:          ledger.Key{EventID: row.EventID, MerchantID: row.MerchantID},
		ID:           row.ID,
		Transport:    merchant.Kind(row.Transport),
		EventType:    row.EventType,
		Payload:      row.Payload,
		Success:      row.Success,
		ResponseBody: row.ResponseBody,
		RetryCount:   row.RetryCount,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.ResponseCode != nil {
		code := *row.ResponseCode
		rec.ResponseCode = &code
	}
	if row.NextRetryAt != nil {
		next := row.NextRetryAt.UTC()
		rec.NextRetryAt = &next
	}
	return rec
}

func deliveryFromDomain(rec ledger.Record) *deliveryRow {
	row := &deliveryRow{
		ID:           rec.ID,
		EventID:      rec.EventID,
		MerchantID:   rec.MerchantID,
		Transport:    string(rec.Transport),
		EventType:    rec.EventType,
		Payload:      rec.Payload,
		Success:      rec.Success,
		ResponseCode: rec.ResponseCode,
		ResponseBody: rec.ResponseBody,
		RetryCount:   rec.RetryCount,
	}
	if rec.NextRetryAt != nil {
		next := rec.NextRetryAt.UTC()
		row.NextRetryAt = &next
	}
	return row
}

func merchantToDomain(row *merchantRow) merchant.Merchant {
	return merchant.Merchant{
		ID:            row.ID,
		Name:          row.Name,
		Kind:          merchant.Kind(row.Kind),
		WebhookURL:    row.WebhookURL,
		WebhookSecret: row.WebhookSecret,
		ChatID:        row.ChatID,
		Active:        row.Active,
	}
}
