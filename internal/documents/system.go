package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
)

// System defines the public contract for document domain operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Document], error)
	Find(ctx context.Context, id uuid.UUID) (*Document, error)
	Create(ctx context.Context, cmd CreateCommand) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Begin moves a document into processing, counting the attempt and clearing
	// any previous failure. Documents already processing are rejected.
	Begin(ctx context.Context, id uuid.UUID) (*Document, error)

	// Fail ends the current attempt in a non-scored status, discarding any score
	// and line results from earlier attempts.
	Fail(ctx context.Context, id uuid.UUID, status Status, failure *Failure) (*Document, error)

	// Save replaces the document's header, score, and line results wholesale.
	Save(ctx context.Context, id uuid.UUID, cmd SaveCommand) (*Result, error)

	Result(ctx context.Context, id uuid.UUID) (*Result, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*Line, error)

	// Correct appends to the corrections log and rewrites the line to the
	// corrected category with method HUMAN, atomically.
	Correct(ctx context.Context, cmd CorrectCommand) (*Correction, error)
	Corrections(ctx context.Context, page pagination.PageRequest, filters CorrectionFilters) (*pagination.PageResult[Correction], error)
}
