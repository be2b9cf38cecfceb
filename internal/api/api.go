// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/infrastructure"
	"github.com/JaimeStill/manifest/pkg/middleware"
	"github.com/JaimeStill/manifest/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware and
// registers the domain's background work with the lifecycle.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, err
	}
	domain.Start(runtime)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger, runtime.Metrics.ObserveRequest))
	m.Use(middleware.Recover(runtime.Logger))

	return m, nil
}
