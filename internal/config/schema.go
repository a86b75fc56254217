package config

import (
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
)

// Config is the top-level YAML structure.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConf      `yaml:"server"`
	Log       LogConf         `yaml:"log"`
	Database  DatabaseConf    `yaml:"database"`
	Directory DirectoryConf   `yaml:"directory"`
	Network   NetworkConf     `yaml:"network"`
	Webhook   WebhookConf     `yaml:"webhook"`
	Chat      ChatConf        `yaml:"chat"`
	Scheduler SchedulerConf   `yaml:"scheduler"`
	Router    RouterConf      `yaml:"router"`
	Intake    IntakeConf      `yaml:"intake"`
	Tokens    []payment.Token `yaml:"tokens"`
	Merchants []MerchantConf  `yaml:"merchants"`
}

// ServerConf configures the HTTP API.
type ServerConf struct {
	Addr                   string `yaml:"addr"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// LogConf selects the slog handler.
type LogConf struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConf selects the ledger backend.
type DatabaseConf struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Merchant directory sources.
const (
	SourceConfig   = "config"
	SourceDatabase = "database"
)

// DirectoryConf selects where merchants are looked up.
type DirectoryConf struct {
	Source string `yaml:"source"`
	// SeedFromConfig upserts the configured merchants into the database
	// directory at startup.
	SeedFromConfig bool `yaml:"seed_from_config"`
}

// NetworkConf names the chain the payments settle on.
type NetworkConf struct {
	Name        string `yaml:"name"`
	ExplorerURL string `yaml:"explorer_url"`
}

// WebhookConf tunes the webhook transport.
type WebhookConf struct {
	TimeoutSeconds     int   `yaml:"timeout_seconds"`
	RetryDelaysMinutes []int `yaml:"retry_delays_minutes"`
	MaxAttempts        int   `yaml:"max_attempts"`
}

// Timeout returns the per-request timeout.
func (w WebhookConf) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Policy returns the retry schedule.
func (w WebhookConf) Policy() delivery.DelaySchedule {
	delays := make([]time.Duration, 0, len(w.RetryDelaysMinutes))
	for _, m := range w.RetryDelaysMinutes {
		delays = append(delays, time.Duration(m)*time.Minute)
	}
	return delivery.DelaySchedule{Delays: delays, MaxAttempts: w.MaxAttempts}
}

// ChatConf tunes the chat transport.
type ChatConf struct {
	Enabled          bool   `yaml:"enabled"`
	BotToken         string `yaml:"bot_token"`
	APIBaseURL       string `yaml:"api_base_url"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	RateLimit        int    `yaml:"rate_limit"`
	RatePeriodMs     int    `yaml:"rate_period_ms"`
	RetryStepMinutes int    `yaml:"retry_step_minutes"`
	MaxRetries       int    `yaml:"max_retries"`
	VerifyOnStart    bool   `yaml:"verify_on_start"`
}

// Timeout returns the per-request timeout.
func (c ChatConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RatePeriod returns the rate-limit window.
func (c ChatConf) RatePeriod() time.Duration {
	return time.Duration(c.RatePeriodMs) * time.Millisecond
}

// Policy returns the retry backoff.
func (c ChatConf) Policy() delivery.LinearBackoff {
	return delivery.LinearBackoff{Step: time.Duration(c.RetryStepMinutes) * time.Minute, MaxRetries: c.MaxRetries}
}

// SchedulerConf tunes the retry sweeps.
type SchedulerConf struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchLimit      int `yaml:"batch_limit"`
}

// Interval returns the sweep period.
func (s SchedulerConf) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// RouterConf tunes batch routing.
type RouterConf struct {
	BatchSize    int `yaml:"batch_size"`
	BatchPauseMs int `yaml:"batch_pause_ms"`
}

// BatchPause returns the pause between batch groups.
func (r RouterConf) BatchPause() time.Duration {
	return time.Duration(r.BatchPauseMs) * time.Millisecond
}

// IntakeConf sizes the async intake queue.
type IntakeConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// MerchantConf is a merchant entry of the config-sourced directory.
type MerchantConf struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	ChatID        string `yaml:"chat_id"`
	Active        *bool  `yaml:"active"` // omitted = true
}

// Merchant converts the entry. Unknown kinds are kept verbatim so routing
// reports them as configuration errors.
func (m MerchantConf) Merchant() merchant.Merchant {
	kind, err := merchant.ParseKind(m.Kind)
	if err != nil {
		kind = merchant.Kind(m.Kind)
	}
	active := true
	if m.Active != nil {
		active = *m.Active
	}
	return merchant.Merchant{
		ID:            merchant.NormalizeID(m.ID),
		Name:          m.Name,
		Kind:          kind,
		WebhookURL:    m.WebhookURL,
		WebhookSecret: m.WebhookSecret,
		ChatID:        m.ChatID,
		Active:        active,
	}
}

// MerchantList converts every configured merchant.
func (c *Config) MerchantList() []merchant.Merchant {
	out := make([]merchant.Merchant, 0, len(c.Merchants))
	for _, m := range c.Merchants {
		out = append(out, m.Merchant())
	}
	return out
}
