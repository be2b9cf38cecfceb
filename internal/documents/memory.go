package documents

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/storage"
)

type memory struct {
	mu          sync.RWMutex
	docs        map[uuid.UUID]*Document
	lines       map[uuid.UUID][]Line
	corrections []Correction
	storage     storage.System
	logger      *slog.Logger
	pagination  pagination.Config
}

// NewMemory creates a process-local document store backed by store for blobs.
func NewMemory(store storage.System, logger *slog.Logger, pagination pagination.Config) System {
	return &memory{
		docs:       make(map[uuid.UUID]*Document),
		lines:      make(map[uuid.UUID][]Line),
		storage:    store,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
	}
}

func (m *memory) Handler(maxUploadSize int64) *Handler {
	return NewHandler(m, m.logger, m.pagination, maxUploadSize)
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Document], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var all []Document
	for _, d := range m.docs {
		if !filters.matches(d) {
			continue
		}
		if page.Search != nil && !containsFold(d.Filename, *page.Search) &&
			!containsFold(d.Header.VendorName, *page.Search) &&
			!containsFold(d.Header.InvoiceNumber, *page.Search) {
			continue
		}
		all = append(all, *d)
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b Document) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	result := pagination.NewPageResult(pageOf(all, page), len(all), page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (*Document, error) {
	id := uuid.New()
	key := buildStorageKey(id, sanitizeFilename(cmd.Filename))

	if err := m.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	now := time.Now().UTC()
	d := &Document{
		ID:          id,
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		PageCount:   cmd.PageCount,
		StorageKey:  key,
		CompanyID:   cmd.CompanyID,
		Status:      StatusPending,
		UploadedAt:  now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.docs[id] = d
	m.mu.Unlock()

	m.logger.Info("document created", "id", id, "filename", cmd.Filename)
	out := *d
	return &out, nil
}

func (m *memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	d, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.lines, id)
	m.mu.Unlock()

	if err := m.storage.Delete(ctx, d.StorageKey); err != nil {
		m.logger.Warn("blob delete failed after delete", "key", d.StorageKey, "error", err)
	}
	return nil
}

func (m *memory) Begin(ctx context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status == StatusProcessing {
		return nil, fmt.Errorf("%w: document %s is already processing", ErrInvalidStatus, id)
	}

	d.Status = StatusProcessing
	d.Attempts++
	d.Failure = nil
	d.UpdatedAt = time.Now().UTC()

	out := *d
	return &out, nil
}

func (m *memory) Fail(ctx context.Context, id uuid.UUID, status Status, failure *Failure) (*Document, error) {
	if !status.Terminal() || status.Scored() {
		return nil, fmt.Errorf("%w: %s is not a failure status", ErrInvalidStatus, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	d.Status = status
	d.Score = nil
	d.Failure = nil
	if failure != nil {
		f := *failure
		d.Failure = &f
	}
	d.UpdatedAt = time.Now().UTC()
	delete(m.lines, id)

	m.logger.Info("document failed", "id", id, "status", status)
	out := *d
	return &out, nil
}

func (m *memory) Save(ctx context.Context, id uuid.UUID, cmd SaveCommand) (*Result, error) {
	if !cmd.Status.Scored() {
		return nil, fmt.Errorf("%w: %s is not a scored status", ErrInvalidStatus, cmd.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	score := cmd.Score
	score.Flags = slices.Clone(score.Flags)

	d.Status = cmd.Status
	if cmd.CompanyID != nil {
		d.CompanyID = cmd.CompanyID
	}
	d.Header = cmd.Header
	d.Score = &score
	d.Failure = nil
	d.UpdatedAt = now

	lines := make([]Line, len(cmd.Lines))
	for i, l := range cmd.Lines {
		l.ID = uuid.New()
		l.DocumentID = id
		l.UpdatedAt = now
		if l.Alternatives == nil {
			l.Alternatives = []classifier.Candidate{}
		}
		lines[i] = l
	}
	m.lines[id] = lines

	return &Result{Document: *d, Lines: slices.Clone(lines)}, nil
}

func (m *memory) Result(ctx context.Context, id uuid.UUID) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	lines := slices.Clone(m.lines[id])
	if lines == nil {
		lines = []Line{}
	}
	return &Result{Document: *d, Lines: lines}, nil
}

func (m *memory) FindLine(ctx context.Context, lineID uuid.UUID) (*Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, l := m.line(lineID); l != nil {
		out := *l
		return &out, nil
	}
	return nil, ErrLineNotFound
}

func (m *memory) Correct(ctx context.Context, cmd CorrectCommand) (*Correction, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, l := m.line(cmd.LineID)
	if l == nil {
		return nil, ErrLineNotFound
	}
	if cmd.PreviousCategory != "" && cmd.PreviousCategory != l.Category {
		return nil, fmt.Errorf("%w: line is %s, not %s", ErrStaleCorrection, l.Category, cmd.PreviousCategory)
	}

	companyID := d.CompanyID
	if cmd.CompanyID != nil {
		companyID = cmd.CompanyID
	}

	now := time.Now().UTC()
	c := Correction{
		ID:                uuid.New(),
		LineID:            l.ID,
		DocumentID:        d.ID,
		Description:       l.Normalized,
		PreviousCategory:  l.Category,
		CorrectedCategory: cmd.CorrectedCategory,
		CorrectedBy:       cmd.CorrectedBy,
		CompanyID:         companyID,
		CreatedAt:         now,
	}
	m.corrections = append(m.corrections, c)

	l.Category = cmd.CorrectedCategory
	l.Method = classifier.MethodHuman
	l.Confidence = 1
	l.RuleID = nil
	l.Reasoning = ""
	l.Alternatives = []classifier.Candidate{}
	l.UpdatedAt = now

	m.logger.Info("line corrected",
		"line_id", c.LineID,
		"previous", c.PreviousCategory,
		"corrected", c.CorrectedCategory,
		"by", c.CorrectedBy,
	)
	return &c, nil
}

func (m *memory) Corrections(ctx context.Context, page pagination.PageRequest, filters CorrectionFilters) (*pagination.PageResult[Correction], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var all []Correction
	for i := len(m.corrections) - 1; i >= 0; i-- {
		c := m.corrections[i]
		if !filters.matches(&c) {
			continue
		}
		if page.Search != nil && !containsFold(c.Description, *page.Search) {
			continue
		}
		all = append(all, c)
	}
	m.mu.RUnlock()

	result := pagination.NewPageResult(pageOf(all, page), len(all), page.Page, page.PageSize)
	return &result, nil
}

// line returns the owning document and a pointer into the stored line slice.
// Callers must hold m.mu.
func (m *memory) line(id uuid.UUID) (*Document, *Line) {
	for docID, lines := range m.lines {
		for i := range lines {
			if lines[i].ID == id {
				return m.docs[docID], &lines[i]
			}
		}
	}
	return nil, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func pageOf[T any](all []T, page pagination.PageRequest) []T {
	start := min((page.Page-1)*page.PageSize, len(all))
	end := min(start+page.PageSize, len(all))
	return all[start:end]
}
