package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:           "imot-scraper",
	Short:         "imot.bg listing acquisition pipeline",
	Long:          "Crawls imot.bg sale listings for a Sofia district, merges them idempotently into PostgreSQL, and exports filtered CSV reports.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(exportCmd)
}
