package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/natsbus"
	"github.com/aviary-ai/aviary/internal/notify"
	"github.com/aviary-ai/aviary/internal/pricing"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/registry"
	"github.com/aviary-ai/aviary/internal/report"
	"github.com/aviary-ai/aviary/internal/scheduler"
	"github.com/aviary-ai/aviary/internal/store"
	"github.com/aviary-ai/aviary/internal/vault"
	"github.com/aviary-ai/aviary/internal/web"
)

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting aviary gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Secret vault
	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
	} else {
		slog.Warn("vault passphrase not set, secret references disabled")
	}

	// Pricing table
	prices, err := pricing.Load(cfg.Pricing.Path)
	if err != nil {
		return fmt.Errorf("load pricing: %w", err)
	}

	// Providers and registry
	providers := provider.NewRegistry(cfg.Providers, slog.Default())
	reg := registry.New(cfg, db, v, providers, slog.Default())
	if err := reg.Sync(); err != nil {
		return fmt.Errorf("sync registry: %w", err)
	}

	// Report engine
	engine := report.NewEngine(db, providers, prices, reg, events, slog.Default())

	// Share completed runs to Telegram when configured
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram, slog.Default())
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		engine.OnComplete(func(snap report.Snapshot) {
			if err := tg.Share(snap); err != nil {
				slog.Error("failed to share report", "run", snap.ID, "error", err)
			}
		})
		slog.Info("telegram sharing enabled", "chat", cfg.Notify.Telegram.ChatID)
	}

	// Scheduler
	sched := scheduler.New(db, engine, reg, events, cfg.Scheduler)
	go sched.Start(ctx)

	// Web UI
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, engine, reg, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
	}

	// SIGHUP reloads the config in place, SIGINT/SIGTERM shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigCh
		if sig != syscall.SIGHUP {
			slog.Info("shutting down", "signal", sig)
			cancel()
			return nil
		}
		reload(cfg, reg, sched)
	}
}

// reload applies config changes that are safe to pick up without a restart.
func reload(cfg *config.Config, reg *registry.Registry, sched *scheduler.Scheduler) {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	diff := config.Diff(cfg, next)
	if !diff.HasChanges() {
		slog.Info("config reload: no changes")
		return
	}
	for _, field := range diff.NonReloadable {
		slog.Warn("config change requires a restart", "field", field)
	}

	*cfg = *next

	if len(diff.AgentsAdded)+len(diff.AgentsRemoved)+len(diff.AgentsChanged) > 0 ||
		diff.FlocksChanged || diff.SwarmsChanged {
		if err := reg.Sync(); err != nil {
			slog.Error("registry resync failed", "error", err)
		}
	}
	if diff.SchedulerChanged {
		sched.UpdateConfig(diff.NewScheduler.PollInterval)
	}

	slog.Info("config reloaded")
}
