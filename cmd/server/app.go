package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/delivery/chat"
	"github.com/gyaneshwarpardhi/paynotify/internal/delivery/webhook"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/ratelimit"
	"github.com/gyaneshwarpardhi/paynotify/internal/router"
	"github.com/gyaneshwarpardhi/paynotify/internal/store"
)

// app wires the delivery components from one config.
type app struct {
	cfg *config.Config
	log *slog.Logger

	db         *bun.DB // nil with the memory driver
	ledger     ledger.Store
	directory  merchant.Directory
	registry   *merchant.Registry // set when merchants come from config
	tokens     *payment.Tokens
	webhook    *webhook.Client
	chat       *chat.Client // nil when chat is disabled
	transports *delivery.Registry
	router     *router.Router
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, tokens: payment.NewTokens(cfg.Tokens...)}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Database.Driver == config.DriverMemory {
		a.ledger = ledger.NewMemory()
		log.Warn("using in-memory ledger; delivery history is lost on restart")
	} else {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		l, err := store.NewLedger(db)
		if err != nil {
			a.close()
			return nil, err
		}
		a.ledger = l
	}

	// ── Merchant directory ────────────────────────────────────────────────────
	switch cfg.Directory.Source {
	case config.SourceDatabase:
		ms, err := store.NewMerchants(a.db)
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.Directory.SeedFromConfig {
			for _, m := range cfg.MerchantList() {
				if err := ms.Upsert(ctx, m); err != nil {
					a.close()
					return nil, fmt.Errorf("seed merchant %s: %w", m.ShortID(), err)
				}
			}
			log.Info("merchant directory seeded from config", "merchants", len(cfg.Merchants))
		}
		a.directory = ms
	default:
		a.registry = merchant.NewRegistry(cfg.MerchantList())
		a.directory = a.registry
	}

	// ── Transports ────────────────────────────────────────────────────────────
	a.webhook = webhook.New(webhook.Config{
		Timeout: cfg.Webhook.Timeout(),
		Policy:  cfg.Webhook.Policy(),
	}, a.tokens, log)
	a.transports = delivery.NewRegistry(a.webhook)

	if cfg.Chat.Enabled {
		a.chat = chat.New(chat.Config{
			Token:       cfg.Chat.BotToken,
			APIBase:     cfg.Chat.APIBaseURL,
			ExplorerURL: cfg.Network.ExplorerURL,
			Timeout:     cfg.Chat.Timeout(),
			Policy:      cfg.Chat.Policy(),
		}, a.tokens, ratelimit.New(cfg.Chat.RateLimit, cfg.Chat.RatePeriod()), log)
		a.transports.Register(a.chat)
	}

	a.router = router.New(a.ledger, a.directory, a.transports, router.Config{
		BatchSize:  cfg.Router.BatchSize,
		BatchPause: cfg.Router.BatchPause(),
	}, log.With("component", "router"))
	return a, nil
}

// openDB connects and migrates the SQL database.
func openDB(ctx context.Context, conf config.DatabaseConf) (*bun.DB, error) {
	db, err := store.Open(conf.Driver, conf.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// apply takes the parts of a reloaded config that can change at runtime.
func (a *app) apply(cfg *config.Config) {
	for _, tok := range cfg.Tokens {
		a.tokens.Add(tok)
	}
	if a.registry != nil {
		a.registry.Replace(cfg.MerchantList())
		a.log.Info("merchant directory reloaded", "merchants", a.registry.Len())
	}
	for _, w := range config.MerchantWarnings(cfg) {
		a.log.Warn("merchant config incomplete", "detail", w)
	}
	if cfg.Database != a.cfg.Database || cfg.Chat != a.cfg.Chat || cfg.Server != a.cfg.Server {
		a.log.Warn("database, chat and server settings take effect after restart")
	}
}

func (a *app) ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return store.Ping(ctx, a.db)
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing database", "err", err)
		}
	}
}
