package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/pkg/pagination"
)

var (
	// catalogPath overrides the embedded seed catalog
	catalogPath string
	// transportMode is passed to override rules
	transportMode string
)

func init() {
	classifyCmd.Flags().StringVar(&transportMode, "mode", "", "transport mode (OCEAN, AIR, TRUCK)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "YAML catalog file (default: embedded catalog)")
}

var classifyCmd = &cobra.Command{
	Use:   "classify [description...]",
	Short: "Classify descriptions against the seed catalog without a database",
	Long: `Classify charge descriptions with the rule tiers of the seed catalog.

Runs entirely in memory: no database, OCR service, or LLM is used, so descriptions
that no rule resolves report the best candidate found or UNCLASSIFIED.

Examples:
  manifest classify "THC" "Bunker adjustment factor"
  manifest classify --catalog ./catalog.yaml < descriptions.txt`,
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	store := rules.NewMemory(logger, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	if _, err := store.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	var cfg classifier.Config
	if err := cfg.Finalize(nil); err != nil {
		return err
	}

	c := classifier.New(classifier.NewCache(store, nil, logger), store, nil, cfg, nil, logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return eachDescription(cmd.InOrStdin(), args, func(desc string) error {
		result, err := c.Classify(ctx, classifier.Request{
			Description:   desc,
			TransportMode: transportMode,
		})
		if err != nil {
			return fmt.Errorf("classify %q: %w", desc, err)
		}
		return enc.Encode(result)
	})
}

func loadCatalog() (*rules.Catalog, error) {
	if catalogPath == "" {
		return rules.DefaultCatalog()
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return rules.ParseCatalog(data)
}
