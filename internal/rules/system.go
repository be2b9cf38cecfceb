package rules

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
)

// System defines the Rule Store contract. Reads are safe for unlimited concurrent
// use. Every write that changes the set of active rules advances Version.
type System interface {
	Handler() *Handler

	// Version is a process-local invalidation counter for rule snapshots.
	Version() uint64

	ActiveRules(ctx context.Context) ([]Rule, error)
	Categories(ctx context.Context) ([]Category, error)

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Rule], error)
	Find(ctx context.Context, id uuid.UUID) (*Rule, error)
	Create(ctx context.Context, cmd CreateCommand) (*Rule, error)
	Supersede(ctx context.Context, id uuid.UUID, cmd SupersedeCommand) (*Rule, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Rule, error)
	RecordMatches(ctx context.Context, matches []Match) error

	// FindLearned returns the mapping for a normalized description, preferring the
	// company-scoped mapping over the universal one.
	FindLearned(ctx context.Context, description string, companyID *uuid.UUID) (*LearnedMapping, error)
	ListLearned(ctx context.Context, page pagination.PageRequest, filters LearnedFilters) (*pagination.PageResult[LearnedMapping], error)

	// Learn atomically upserts the learned mapping for a correction and promotes it
	// into an EXACT rule in the same transaction once its streak reaches the threshold.
	Learn(ctx context.Context, cmd LearnCommand) (*LearnResult, error)

	// Seed loads a catalog's categories and universal rules. Existing entries are kept.
	Seed(ctx context.Context, catalog *Catalog) (*SeedResult, error)
}

// SeedResult counts what a Seed call inserted.
type SeedResult struct {
	Categories int `json:"categories"`
	Rules      int `json:"rules"`
}
