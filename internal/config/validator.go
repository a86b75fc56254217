package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Validate checks the config for:
//   - Required fields and known enum values
//   - Non-negative retry and rate-limit settings
//   - Duplicate or malformed merchant entries
//
// Incomplete merchant transport settings are not errors; see MerchantWarnings.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: must be text or json, got %q", cfg.Log.Format))
	}

	switch cfg.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if cfg.Database.DSN == "" {
			errs = append(errs, fmt.Sprintf("database.dsn: required for driver %s", cfg.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver: unknown driver %q", cfg.Database.Driver))
	}

	switch cfg.Directory.Source {
	case SourceConfig:
	case SourceDatabase:
		if cfg.Database.Driver == DriverMemory {
			errs = append(errs, "directory.source: database requires a sqlite or postgres database")
		}
	default:
		errs = append(errs, fmt.Sprintf("directory.source: must be config or database, got %q", cfg.Directory.Source))
	}

	if u, err := url.Parse(cfg.Network.ExplorerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("network.explorer_url: invalid url %q", cfg.Network.ExplorerURL))
	}

	for i, d := range cfg.Webhook.RetryDelaysMinutes {
		if d < 0 {
			errs = append(errs, fmt.Sprintf("webhook.retry_delays_minutes[%d]: must not be negative", i))
		}
	}
	if cfg.Webhook.MaxAttempts < 0 {
		errs = append(errs, "webhook.max_attempts: must not be negative")
	}
	if cfg.Chat.MaxRetries < 0 {
		errs = append(errs, "chat.max_retries: must not be negative")
	}
	if cfg.Webhook.TimeoutSeconds < 0 || cfg.Chat.TimeoutSeconds < 0 {
		errs = append(errs, "timeout_seconds: must not be negative")
	}

	if cfg.Chat.Enabled {
		if cfg.Chat.BotToken == "" {
			errs = append(errs, "chat.bot_token: required when chat is enabled")
		}
		if cfg.Chat.RateLimit < 0 || cfg.Chat.RatePeriodMs < 0 {
			errs = append(errs, "chat.rate_limit / rate_period_ms: must not be negative")
		}
	}

	if cfg.Scheduler.IntervalSeconds < 0 || cfg.Scheduler.BatchLimit < 0 {
		errs = append(errs, "scheduler: interval and batch limit must not be negative")
	}
	if cfg.Router.BatchSize < 0 || cfg.Router.BatchPauseMs < 0 {
		errs = append(errs, "router: batch size and pause must not be negative")
	}
	if cfg.Intake.Workers < 0 || cfg.Intake.QueueDepth < 0 {
		errs = append(errs, "intake: workers and queue depth must not be negative")
	}

	for i, tok := range cfg.Tokens {
		if tok.Address == "" || tok.Symbol == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d]: address and symbol are required", i))
		}
		if tok.Decimals < 0 || tok.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("tokens[%d]: decimals out of range", i))
		}
	}

	ids := make(map[string]int)
	for i, m := range cfg.Merchants {
		if strings.TrimSpace(m.ID) == "" {
			errs = append(errs, fmt.Sprintf("merchants[%d]: id is required", i))
			continue
		}
		id := merchant.NormalizeID(m.ID)
		if prev, ok := ids[id]; ok {
			errs = append(errs, fmt.Sprintf("duplicate merchant id %q (merchants[%d] and merchants[%d])", id, prev, i))
		} else {
			ids[id] = i
		}
		if _, err := merchant.ParseKind(m.Kind); err != nil {
			errs = append(errs, fmt.Sprintf("merchants[%d]: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MerchantWarnings reports merchants whose transport settings are incomplete.
// Such merchants load, and their events fail as configuration errors.
func MerchantWarnings(cfg *Config) []string {
	var out []string
	for _, m := range cfg.MerchantList() {
		if err := m.Validate(); err != nil {
			out = append(out, err.Error())
			continue
		}
		if m.Kind == merchant.KindChat && !cfg.Chat.Enabled {
			out = append(out, fmt.Sprintf("merchant %s uses chat but chat is disabled", m.ID))
		}
	}
	return out
}
