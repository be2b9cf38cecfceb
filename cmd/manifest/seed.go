package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/pkg/database"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the category catalog and universal rules into the database",
	Long: `Seed the Rule Store with the category catalog and its universal rules.

Database settings are read the same way the server reads them: config.toml,
the MANIFEST_ENV overlay, then MANIFEST_DB_* variables. Existing rules are kept
and category names are refreshed.

Examples:
  manifest seed
  manifest seed --catalog ./catalog.yaml`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return err
	}
	conn := db.Connection()
	defer conn.Close()

	if err := db.Ping(ctx); err != nil {
		return err
	}

	result, err := rules.New(conn, logger, cfg.API.Pagination).Seed(ctx, catalog)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories and %d rules\n", result.Categories, result.Rules)
	return nil
}
