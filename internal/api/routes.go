package api

import (
	"net/http"

	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/pkg/routes"
)

// groups lists the route groups of every domain system. The documents group
// carries the upload limit because it is the only multipart endpoint.
func (d *Domain) groups(cfg *config.APIConfig) []routes.Group {
	return []routes.Group{
		d.Rules.Handler().Routes(),
		d.Classifier.Handler().Routes(),
		d.Companies.Handler().Routes(),
		d.Documents.Handler(cfg.MaxUploadSizeBytes()).Routes(),
		d.Learning.Handler().Routes(),
		d.Batch.Handler().Routes(),
	}
}

func registerRoutes(mux *http.ServeMux, domain *Domain, cfg *config.Config) {
	routes.Register(mux, domain.groups(&cfg.API)...)
}
