package api

import (
	"errors"

	"github.com/JaimeStill/manifest/internal/batch"
	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/companies"
	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/learning"
	"github.com/JaimeStill/manifest/internal/llm"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/internal/workflow"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Rules      rules.System
	Cache      *classifier.Cache
	Classifier *classifier.Classifier
	Companies  companies.System
	Documents  documents.System
	Learning   *learning.Loop
	Batch      *batch.Coordinator
}

// NewDomain creates all domain systems from the API runtime. The LLM tier is
// omitted when no provider is configured.
func NewDomain(runtime *Runtime) (*Domain, error) {
	cfg := runtime.Config
	db := runtime.Database.Connection()

	ruleStore := rules.New(db, runtime.Logger, runtime.Pagination)
	cache := classifier.NewCache(ruleStore, runtime.Metrics, runtime.Logger)

	var service classifier.LLM
	client, err := llm.New(cfg.LLM, runtime.Limiter, runtime.Metrics, runtime.Logger)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		runtime.Logger.Warn("llm provider not configured, tier disabled")
	case err != nil:
		return nil, err
	default:
		service = client
	}

	cls := classifier.New(cache, ruleStore, service, cfg.Classifier, runtime.Metrics, runtime.Logger)

	companySystem := companies.New(db, cfg.Identification, runtime.Logger, runtime.Pagination)
	docsSystem := documents.New(db, runtime.Storage, runtime.Logger, runtime.Pagination)

	loop := learning.New(
		ruleStore,
		docsSystem,
		cfg.Learning,
		runtime.Metrics,
		runtime.Logger,
		runtime.Pagination,
	)

	rt := &workflow.Runtime{
		Documents:  docsSystem,
		Storage:    runtime.Storage,
		Extractor:  extraction.New(cfg.Extraction, runtime.Limiter, runtime.Metrics, runtime.Logger),
		Companies:  companySystem,
		Classifier: cls,
		Rules:      ruleStore,
		Scorer:     scoring.New(cfg.Scoring),
		Metrics:    runtime.Metrics,
		Logger:     runtime.Logger,
		Retries:    cfg.Classifier.RetryCount(),
	}

	return &Domain{
		Rules:      ruleStore,
		Cache:      cache,
		Classifier: cls,
		Companies:  companySystem,
		Documents:  docsSystem,
		Learning:   loop,
		Batch:      batch.New(rt, cfg.Batch, runtime.Metrics, runtime.Logger),
	}, nil
}

// Start binds the background work of the domain to the lifecycle: periodic rule
// snapshot refresh and batch retention.
func (d *Domain) Start(runtime *Runtime) {
	d.Cache.Start(runtime.Lifecycle, runtime.Config.Classifier.RefreshIntervalDuration())
	d.Batch.Start(runtime.Lifecycle)
}
