// Package cmd defines the CLI commands for the quotecrawler executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and attaches subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "quotecrawler",
		Short: "Crawls a paginated quotes site into quote and author datasets.",
		Long: `quotecrawler walks every listing page of a quotes site, resolves each
referenced author exactly once, and writes two datasets (quotes and authors)
to CSV artifacts and/or Postgres tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (YAML, TOML or JSON); QUOTES_* environment variables override it")

	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
