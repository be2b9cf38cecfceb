package workflow

import (
	"context"
	"log/slog"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/companies"
	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/storage"
)

// Extractor turns a stored invoice into structured fields and line items.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType, documentID string) (*extraction.Result, error)
}

// Classifier assigns a category to one line description.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (classifier.Result, error)
}

// Runtime bundles the dependencies the pipeline steps require.
// It is constructed by higher-level composition code from Infrastructure and Domain systems.
// Companies may be nil, which skips identification.
type Runtime struct {
	Documents  documents.System
	Storage    storage.System
	Extractor  Extractor
	Companies  companies.System
	Classifier Classifier
	Rules      rules.System
	Scorer     *scoring.Scorer
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger

	// Retries is how many times a retryable classification failure is retried
	// before the line is recorded as unclassified.
	Retries int
}
