package companies

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
)

// System defines the company registry contract.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Company], error)
	Find(ctx context.Context, id uuid.UUID) (*Company, error)
	FindByCode(ctx context.Context, code string) (*Company, error)
	Create(ctx context.Context, cmd CreateCommand) (*Company, error)
	Active(ctx context.Context) ([]Company, error)

	// Identify matches text against every active company's patterns.
	Identify(ctx context.Context, text string) (*Identification, error)
}
