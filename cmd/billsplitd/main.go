package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/export"
	"github.com/ahting/billsplit/internal/inbox"
	"github.com/ahting/billsplit/internal/notify"
	"github.com/ahting/billsplit/internal/runner"
	"github.com/ahting/billsplit/internal/server"
	"github.com/ahting/billsplit/internal/store"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	// Config
	cfg := common.LoadConfig()
	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		if err := cfg.ApplySettingsFile(path); err != nil {
			log.Fatalf("settings file: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	bills, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer bills.Close()
	log.Infow("store ready", "driver", cfg.Store.Driver)

	// Inbox
	in, err := newInbox(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("inbox: %v", err)
	}

	// Notifier
	var n notify.Notifier
	if cfg.Run.TestMode {
		n = notify.NewSimulated(logger)
		log.Infow("test mode active, notifications simulated")
	} else {
		n, err = notify.NewGmailNotifier(ctx, cfg.Gmail.User, cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RefreshToken, logger)
		if err != nil {
			log.Fatalf("notifier: %v", err)
		}
	}

	run := runner.New(cfg, in, bills, n, nil, logger)
	srv := server.New(bills, run, export.NewService(bills, logger), logger)

	// HTTP dashboard
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			log.Fatalf("http serve: %v", err)
		}
	}()

	// Drop-directory trigger: a new file in the watch root kicks off a run
	// without waiting for the next tick.
	var kick <-chan string
	if cfg.Inbox.Driver == "dir" {
		kick, err = inbox.StartWatcher(ctx, inbox.WatchConfig{Root: cfg.Inbox.Dir}, logger)
		if err != nil {
			log.Fatalf("watcher: %v", err)
		}
	}

	opts := runner.Options{TestMode: cfg.Run.TestMode, DaysBack: cfg.Run.DaysBack}
	doRun := func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := run.Run(runCtx, opts); err != nil {
			log.Errorw("run failed", "error", err)
		}
	}

	log.Infow("daemon started", "interval", cfg.Run.Interval.String(), "addr", cfg.Server.Addr)
	doRun()

	ticker := time.NewTicker(cfg.Run.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down...")
			fmt.Println("stopped.")
			return
		case <-ticker.C:
			doRun()
		case path, ok := <-kick:
			if !ok {
				kick = nil
				continue
			}
			log.Infow("inbox drop detected", "path", path)
			doRun()
		}
	}
}

func newInbox(ctx context.Context, cfg *common.Config, logger *zap.Logger) (inbox.Inbox, error) {
	switch cfg.Inbox.Driver {
	case "dir":
		return inbox.NewDirInbox(cfg.Inbox.Dir, logger), nil
	default:
		return inbox.NewGmailInbox(ctx, inbox.GmailCredentials{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
		}, logger)
	}
}
