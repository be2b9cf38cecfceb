// Package main implements the manifest operator CLI.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// verbose enables debug logging on stderr
	verbose bool
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Operator tooling for the manifest charge classifier",
	Long: `manifest is a command-line interface for operating the charge classifier.
It normalizes and classifies descriptions offline and seeds the category catalog.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(seedCmd)
}

func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
