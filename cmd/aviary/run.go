package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aviary-ai/aviary/internal/automation"
	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
	"github.com/aviary-ai/aviary/internal/notify"
	"github.com/aviary-ai/aviary/internal/pricing"
	"github.com/aviary-ai/aviary/internal/provider"
	"github.com/aviary-ai/aviary/internal/registry"
	"github.com/aviary-ai/aviary/internal/report"
	"github.com/aviary-ai/aviary/internal/resolve"
	"github.com/aviary-ai/aviary/internal/store"
	"github.com/aviary-ai/aviary/internal/vault"
)

// runOnce resolves a selection, runs the report to the end and fires the
// requested follow-up, without the gateway's NATS, web or scheduler layers.
func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	prompt := fs.String("prompt", "", "prompt to send to every model")
	agents := fs.String("agents", "", "comma-separated agent ids")
	flocks := fs.String("flocks", "", "comma-separated flock ids")
	swarms := fs.String("swarms", "", "comma-separated swarm ids")
	models := fs.String("models", "", "comma-separated provider/model pairs")
	params := fs.String("params", "", "params id applied to every model this run")
	action := fs.String("action", "view", "follow-up when done: view, share, browser, email, none")
	email := fs.String("email", "", "mail the report to this address and exit")
	ret := fs.Bool("return", false, "exit after the follow-up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prompt == "" {
		return fmt.Errorf("-prompt is required")
	}

	sel := model.Selection{
		Agents: splitList(*agents),
		Flocks: splitList(*flocks),
		Swarms: splitList(*swarms),
	}
	for _, pair := range splitList(*models) {
		p, m, ok := strings.Cut(pair, "/")
		if !ok {
			return fmt.Errorf("invalid model pair %q, want provider/model", pair)
		}
		sel.Models = append(sel.Models, model.ModelRef{Provider: p, Model: m})
	}
	if sel.Empty() {
		return fmt.Errorf("nothing selected: pass -agents, -flocks, -swarms or -models")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
	}

	prices, err := pricing.Load(cfg.Pricing.Path)
	if err != nil {
		return fmt.Errorf("load pricing: %w", err)
	}

	providers := provider.NewRegistry(cfg.Providers, slog.Default())
	reg := registry.New(cfg, db, v, providers, slog.Default())
	if err := reg.Sync(); err != nil {
		return fmt.Errorf("sync registry: %w", err)
	}

	worklist, err := resolve.Resolve(reg, sel)
	if err != nil {
		return err
	}
	worklist = resolve.ApplyParams(worklist, *params)

	engine := report.NewEngine(db, providers, prices, reg, nil, slog.Default())
	run, err := engine.Start(*prompt, worklist)
	if err != nil {
		return err
	}

	trigger := automation.New(buildSpec(cfg, *action, *email, *ret), buildDeps(cfg))
	engine.OnComplete(trigger.Fire)

	<-run.Done()

	snap := run.Snapshot()
	if snap.Status != report.StatusCompleted {
		return fmt.Errorf("run ended with status %s", snap.Status)
	}

	// Give the completion listener its turn before returning; the trigger
	// fires at most once so a second call here is harmless.
	trigger.Fire(snap)
	return nil
}

// buildSpec keeps the two email paths apart: -email is the
// request-embedded destination that preempts the action, the configured
// default only serves the email action.
func buildSpec(cfg *config.Config, action, email string, ret bool) automation.Spec {
	return automation.Spec{
		NextAction:   automation.Action(action),
		Email:        email,
		DefaultEmail: cfg.Notify.Email,
		Return:       ret,
	}
}

func buildDeps(cfg *config.Config) automation.Deps {
	local := notify.NewLocal(cfg.Defaults.ExportDir, slog.Default())
	deps := automation.Deps{
		Viewer:  local,
		Browser: local,
		Logger:  slog.Default(),
	}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram, slog.Default())
		if err != nil {
			slog.Warn("telegram unavailable", "error", err)
		} else {
			deps.Sharer = tg
		}
	}
	if cfg.Notify.SMTP.Host != "" {
		deps.Mailer = notify.NewSMTP(cfg.Notify.SMTP)
	}
	return deps
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
