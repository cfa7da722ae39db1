package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/app"
	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/logging"
)

// newCrawlCmd creates the 'crawl' subcommand, which performs one full crawl
// session and prints the completion event as JSON.
func newCrawlCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl session",
		Long: `Scans listing pages from page 1 until the last page, resolves authors,
then writes the quotes and authors datasets to every configured sink.
Exits non-zero if a page no longer matches the expected layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().String("base-url", "", "site root, overrides source.base_url")
	cmd.Flags().Int("max-pages", 0, "stop after this many listing pages (0 = no cap)")
	cmd.Flags().String("output-dir", "", "directory for CSV artifacts with the local storage provider")
	cmd.Flags().StringSlice("sinks", nil, "sinks to write (csv, postgres)")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	event, runErr := a.Run(ctx)
	if event != nil {
		// Data is already written when only the publish step failed.
		if err := writeSummary(cmd.OutOrStdout(), event); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		logger.Error("crawl failed", zap.Error(runErr))
		return runErr
	}
	return nil
}

func writeSummary(w io.Writer, event *app.CompletionEvent) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(event); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
