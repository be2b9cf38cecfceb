package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/migrations"
	"github.com/JaimeStill/manifest/pkg/database"
)

const envDSN = "MANIFEST_DB_DSN"

type options struct {
	dsn      string
	up       bool
	down     bool
	steps    int
	version  bool
	force    int
	forceSet bool
}

func main() {
	opts := parseFlags()

	dsn, err := resolveDSN(opts.dsn)
	if err != nil {
		log.Fatalf("resolve dsn: %v", err)
	}

	msg, err := run(dsn, opts)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(msg)
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.dsn, "dsn", "", "Database connection URL (overrides MANIFEST_DB_*)")
	flag.BoolVar(&opts.up, "up", false, "Run all up migrations")
	flag.BoolVar(&opts.down, "down", false, "Run all down migrations")
	flag.IntVar(&opts.steps, "steps", 0, "Number of migrations (positive=up, negative=down)")
	flag.BoolVar(&opts.version, "version", false, "Print current migration version")
	flag.IntVar(&opts.force, "force", -1, "Force set version (use with caution)")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			opts.forceSet = true
		}
	})
	return opts
}

// resolveDSN prefers the -dsn flag, then MANIFEST_DB_DSN, then a URL assembled
// from the same MANIFEST_DB_* variables the server reads.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	if dsn := os.Getenv(envDSN); dsn != "" {
		return dsn, nil
	}

	cfg := database.Config{User: "manifest", Password: "manifest"}
	if err := cfg.Finalize(config.DatabaseEnv); err != nil {
		return "", err
	}
	return cfg.URL(), nil
}

func run(dsn string, opts options) (string, error) {
	if !opts.version && !opts.forceSet && !opts.up && !opts.down && opts.steps == 0 {
		flag.PrintDefaults()
		return "usage: migrate [-dsn <url>] [-up|-down|-steps N|-version|-force N]", nil
	}

	m, err := migrations.New(dsn)
	if err != nil {
		return "", err
	}
	defer m.Close()

	switch {
	case opts.version:
		v, dirty, err := m.Version()
		if err != nil {
			return "", fmt.Errorf("get version: %w", err)
		}
		return fmt.Sprintf("version: %d, dirty: %v", v, dirty), nil
	case opts.forceSet:
		if err := m.Force(opts.force); err != nil {
			return "", fmt.Errorf("force version: %w", err)
		}
		return fmt.Sprintf("forced to version %d", opts.force), nil
	case opts.up:
		if err := migrations.IgnoreNoChange(m.Up()); err != nil {
			return "", fmt.Errorf("up migrations: %w", err)
		}
		return "migrations applied", nil
	case opts.down:
		if err := migrations.IgnoreNoChange(m.Down()); err != nil {
			return "", fmt.Errorf("down migrations: %w", err)
		}
		return "migrations reverted", nil
	default:
		if err := migrations.IgnoreNoChange(m.Steps(opts.steps)); err != nil {
			return "", fmt.Errorf("step migrations: %w", err)
		}
		return fmt.Sprintf("applied %d migration steps", opts.steps), nil
	}
}
