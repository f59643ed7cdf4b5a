package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahting/billsplit/internal/common"
	"github.com/ahting/billsplit/internal/export"
	"github.com/ahting/billsplit/internal/inbox"
	"github.com/ahting/billsplit/internal/notify"
	"github.com/ahting/billsplit/internal/runner"
	"github.com/ahting/billsplit/internal/server"
	"github.com/ahting/billsplit/internal/store"
)

var (
	settingsPath string
	testMode     bool
	daysBack     int
	exportOut    string
)

func main() {
	root := &cobra.Command{
		Use:   "billsplit",
		Short: "Split utility bills with a roommate automatically",
		Long: `billsplit watches an inbox for utility bill statements, splits each
bill at a fixed ratio, issues a Venmo payment request to the roommate, and
closes the bill when the payment confirmation arrives.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to a JSON settings file overriding the environment")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full lifecycle pass and print the summary",
		RunE:  runOnce,
	}
	runCmd.Flags().BoolVar(&testMode, "test-mode", false, "simulate notifications instead of sending them")
	runCmd.Flags().IntVar(&daysBack, "days-back", 0, "how many days of email history to scan (0 = configured default)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API without the background ticker",
		RunE:  serve,
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the bill history to an XLSX workbook",
		RunE:  exportHistory,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "bills.xlsx", "output file path")

	root.AddCommand(runCmd, serveCmd, exportCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*common.Config, *store.SQLStore, *zap.Logger, error) {
	logger, _ := zap.NewProduction()

	cfg := common.LoadConfig()
	if settingsPath != "" {
		if err := cfg.ApplySettingsFile(settingsPath); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	bills, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, bills, logger, nil
}

func newRunner(ctx context.Context, cfg *common.Config, bills *store.SQLStore, logger *zap.Logger, simulate bool) (*runner.Runner, error) {
	var in inbox.Inbox
	var err error
	if cfg.Inbox.Driver == "dir" {
		in = inbox.NewDirInbox(cfg.Inbox.Dir, logger)
	} else {
		in, err = inbox.NewGmailInbox(ctx, inbox.GmailCredentials{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	var n notify.Notifier
	if simulate {
		n = notify.NewSimulated(logger)
	} else {
		n, err = notify.NewGmailNotifier(ctx, cfg.Gmail.User, cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RefreshToken, logger)
		if err != nil {
			return nil, err
		}
	}
	return runner.New(cfg, in, bills, n, nil, logger), nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, bills, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer bills.Close()
	defer logger.Sync()

	simulate := testMode || cfg.Run.TestMode
	run, err := newRunner(ctx, cfg, bills, logger, simulate)
	if err != nil {
		return err
	}

	sum, err := run.Run(ctx, runner.Options{TestMode: simulate, DaysBack: daysBack})
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(sum, "", "  ")
	fmt.Println(string(out))
	return nil
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, bills, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer bills.Close()
	defer logger.Sync()

	run, err := newRunner(ctx, cfg, bills, logger, cfg.Run.TestMode)
	if err != nil {
		return err
	}
	srv := server.New(bills, run, export.NewService(bills, logger), logger)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func exportHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	_, bills, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer bills.Close()
	defer logger.Sync()

	data, err := export.NewService(bills, logger).ExportBillsXLSX(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", exportOut, len(data))
	return nil
}
