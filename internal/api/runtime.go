package api

import (
	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/infrastructure"
	"github.com/JaimeStill/manifest/pkg/pagination"
)

// Runtime is the infrastructure as seen by the API module: the same lifecycle,
// metrics, limiter, and stores, with a logger tagged module=api.
type Runtime struct {
	*infrastructure.Infrastructure
	Config     *config.Config
	Pagination pagination.Config
}

// NewRuntime scopes infra to the API module. The shared limiter and metrics
// registry are carried by reference so every system draws from the same bucket.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Config:         cfg,
		Pagination:     cfg.API.Pagination,
	}
}
