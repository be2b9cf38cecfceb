// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, metrics, database, storage, the shared
// external-call limiter) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/database"
	"github.com/JaimeStill/manifest/pkg/lifecycle"
	"github.com/JaimeStill/manifest/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Limiter is the single token bucket every OCR and LLM call draws from.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	Limiter   *rate.Limiter
	Database  database.System
	Storage   storage.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Metrics:   telemetry.New(nil),
		Limiter:   cfg.Batch.Limiter(),
		Database:  db,
		Storage:   store,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database and storage hooks are registered for startup and shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}
