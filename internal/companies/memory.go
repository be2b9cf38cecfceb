package companies

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
)

type memory struct {
	mu         sync.RWMutex
	companies  map[uuid.UUID]*Company
	cfg        Config
	logger     *slog.Logger
	pagination pagination.Config
}

// NewMemory creates a process-local company registry.
func NewMemory(cfg Config, logger *slog.Logger, pagination pagination.Config) System {
	return &memory{
		companies:  make(map[uuid.UUID]*Company),
		cfg:        cfg,
		logger:     logger.With("system", "companies"),
		pagination: pagination,
	}
}

func (m *memory) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Company], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var all []Company
	for _, c := range m.companies {
		if !filters.matches(c) {
			continue
		}
		if page.Search != nil && *page.Search != "" &&
			!strings.Contains(strings.ToUpper(c.Code+" "+c.Name), strings.ToUpper(*page.Search)) {
			continue
		}
		all = append(all, *c)
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b Company) int { return strings.Compare(a.Code, b.Code) })

	start := min((page.Page-1)*page.PageSize, len(all))
	end := min(start+page.PageSize, len(all))
	result := pagination.NewPageResult(all[start:end], len(all), page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Find(ctx context.Context, id uuid.UUID) (*Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memory) FindByCode(ctx context.Context, code string) (*Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.companies {
		if c.Code == code {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (*Company, error) {
	if err := cmd.prepare(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.companies {
		if c.Code == cmd.Code {
			return nil, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	c := &Company{
		ID:        uuid.New(),
		Code:      cmd.Code,
		Name:      cmd.Name,
		Names:     slices.Clone(cmd.Names),
		Keywords:  slices.Clone(cmd.Keywords),
		Formats:   slices.Clone(cmd.Formats),
		LogoText:  slices.Clone(cmd.LogoText),
		Priority:  cmd.Priority,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.companies[c.ID] = c

	m.logger.Info("company created", "id", c.ID, "code", c.Code)
	out := *c
	return &out, nil
}

func (m *memory) Active(ctx context.Context) ([]Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Company
	for _, c := range m.companies {
		if c.Active {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Company) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (m *memory) Identify(ctx context.Context, text string) (*Identification, error) {
	cs, err := m.Active(ctx)
	if err != nil {
		return nil, err
	}
	id := NewMatcher(cs, m.cfg).Identify(text)
	return &id, nil
}
