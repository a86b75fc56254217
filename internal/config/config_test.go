package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

const minimal = `version: "1"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != config.DriverMemory || cfg.Directory.Source != config.SourceConfig {
		t.Errorf("database/directory defaults = %q/%q", cfg.Database.Driver, cfg.Directory.Source)
	}

	wp := cfg.Webhook.Policy()
	if wp.MaxAttempts != 4 || len(wp.Delays) != 4 || wp.Delays[0] != time.Minute || wp.Delays[3] != time.Hour {
		t.Errorf("webhook policy = %+v", wp)
	}
	if cfg.Webhook.Timeout() != 30*time.Second {
		t.Errorf("webhook timeout = %v", cfg.Webhook.Timeout())
	}

	cp := cfg.Chat.Policy()
	if cp.Step != 5*time.Minute || cp.MaxRetries != 3 {
		t.Errorf("chat policy = %+v", cp)
	}
	if cfg.Chat.RateLimit != 20 || cfg.Chat.RatePeriod() != time.Second {
		t.Errorf("chat rate = %d per %v", cfg.Chat.RateLimit, cfg.Chat.RatePeriod())
	}
	if cfg.Scheduler.Interval() != time.Minute || cfg.Scheduler.BatchLimit != 100 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Router.BatchSize != 10 || cfg.Router.BatchPause() != 500*time.Millisecond {
		t.Errorf("router = %+v", cfg.Router)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("PAYNOTIFY_TEST_TOKEN", "123:abc")
	src := `version: "1"
chat:
  enabled: true
  bot_token: ${PAYNOTIFY_TEST_TOKEN}
database:
  driver: sqlite
  dsn: "${PAYNOTIFY_TEST_UNSET_DSN:-file::memory:}"
`
	cfg, err := config.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Chat.BotToken != "123:abc" {
		t.Errorf("bot token = %q", cfg.Chat.BotToken)
	}
	if cfg.Database.DSN != "file::memory:" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
}

func TestParse_Merchants(t *testing.T) {
	src := `version: "1"
merchants:
  - id: "0xABCDEF0000000000000000000000000000000001"
    kind: webhook
    webhook_url: https://shop.example/hooks
    webhook_secret: s3cret
  - id: abcdef0000000000000000000000000000000002
    kind: telegram
    chat_id: "-100200"
    active: false
`
	cfg, err := config.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ms := cfg.MerchantList()
	if len(ms) != 2 {
		t.Fatalf("merchants = %d", len(ms))
	}
	if ms[0].ID != "0xabcdef0000000000000000000000000000000001" || ms[0].Kind != merchant.KindWebhook || !ms[0].Active {
		t.Errorf("first merchant = %+v", ms[0])
	}
	if ms[1].ID != "0xabcdef0000000000000000000000000000000002" || ms[1].Kind != merchant.KindChat || ms[1].Active {
		t.Errorf("second merchant = %+v", ms[1])
	}

	warnings := config.MerchantWarnings(cfg)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "chat is disabled") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	src := `version: "1"
database:
  driver: mongo
directory:
  source: database
chat:
  enabled: true
merchants:
  - id: "0x01"
    kind: webhook
  - id: "0X01"
    kind: pigeon
  - kind: webhook
`
	_, err := config.Parse([]byte(src))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"config validation errors",
		`unknown driver "mongo"`,
		"chat.bot_token",
		`duplicate merchant id "0x01"`,
		`unknown transport kind "pigeon"`,
		"merchants[2]: id is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidate_VersionRequired(t *testing.T) {
	if _, err := config.Parse([]byte("server:\n  addr: :9000\n")); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestLoader_ReloadNotifiesAndKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.yaml")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(minimal)

	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	var got *config.Config
	l.OnChange(func(c *config.Config) { got = c })

	write(`version: "2"
server:
  addr: ":9090"
`)
	if _, err := l.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got == nil || got.Version != "2" || l.Config().Server.Addr != ":9090" {
		t.Fatalf("reload not applied: %+v", got)
	}

	write("version: [broken")
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if l.Config().Version != "2" {
		t.Errorf("invalid reload replaced config: %q", l.Config().Version)
	}
}

func TestLoader_ShippedExampleIsValid(t *testing.T) {
	l, err := config.NewLoader(filepath.Join("..", "..", "configs", "notifier.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if n := len(l.Config().MerchantList()); n != 2 {
		t.Errorf("merchants = %d", n)
	}
}
