package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/paynotify/internal/api"
	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/intake"
	"github.com/gyaneshwarpardhi/paynotify/internal/scheduler"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification API, intake workers and retry schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	return cmd
}

func runServe(cfgPath, addrOverride string) error {
	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(cfgPath)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	for _, w := range config.MerchantWarnings(cfg) {
		logger.Warn("merchant config incomplete", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Components ───────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	logger.Info("delivery engine ready",
		"database", cfg.Database.Driver,
		"directory", cfg.Directory.Source,
		"transports", a.transports.Kinds(),
		"network", cfg.Network.Name,
	)

	if a.chat != nil && cfg.Chat.VerifyOnStart {
		if name, err := a.chat.Verify(ctx); err != nil {
			logger.Warn("chat bot verification failed", "err", err)
		} else {
			logger.Info("chat bot verified", "bot", name)
		}
	}

	// ── Retry schedulers ─────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range a.transports.Kinds() {
		t, err := a.transports.Get(kind)
		if err != nil {
			return err
		}
		s := scheduler.New(t, a.ledger, a.directory, scheduler.Config{
			Interval:   cfg.Scheduler.Interval(),
			BatchLimit: cfg.Scheduler.BatchLimit,
		}, logger)
		g.Go(func() error {
			s.Run(gctx)
			return nil
		})
	}

	// ── Intake queue ─────────────────────────────────────────────────────────
	queue := intake.New(ctx, a.router, intake.Config{
		Workers:    cfg.Intake.Workers,
		QueueDepth: cfg.Intake.QueueDepth,
	}, logger)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(a.apply)
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	addr := cfg.Server.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	handler := api.New(api.Deps{
		Router:     a.router,
		Queue:      queue,
		Ledger:     a.ledger,
		Directory:  a.directory,
		Transports: a.transports,
		URLChecker: a.webhook,
		Reloader:   loader,
		Ready:      a.ready,
		Log:        logger.With("component", "api"),
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down…")
	case <-gctx.Done():
		logger.Error("server stopped unexpectedly")
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	queue.Drain() // route what is already queued
	cancel()      // stop schedulers
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("goodbye")
	return nil
}
