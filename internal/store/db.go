// Package store persists the delivery ledger and the merchant directory in a
// SQL database through bun. SQLite and PostgreSQL are supported.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the database for driver and returns a bun handle.
func Open(driver, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3":
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		// sqlite serialises writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	case DriverPostgres, "postgresql":
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("store: bun db is required")
	}
	models := []any{(*deliveryRow)(nil), (*merchantRow)(nil)}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*deliveryRow)(nil)).
		Index("ux_deliveries_event_merchant").
		Unique().
		Column("event_id", "merchant_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("store: create unique index: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*deliveryRow)(nil)).
		Index("ix_deliveries_due").
		Column("transport", "success", "next_retry_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("store: create due index: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func Ping(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("store: bun db is required")
	}
	return db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
