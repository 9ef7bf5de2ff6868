package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for prospectcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prospectcrawl",
		Short: "Crawl company websites and extract prospecting data",
		Long: `prospectcrawl explores a company website within depth, page and time
budgets and extracts structured entities: emails (checked by a quality gate),
people, phone numbers, social profiles, technologies, images and page metadata.

Results are printed as text, JSON or Markdown and stored in a local SQLite
database (or PostgreSQL with --database-url) for later comparison.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
