package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/lifecycle"
)

type matcher struct {
	rule rules.Rule
	re   *regexp.Regexp
}

// Snapshot is an immutable view of the active rules and category catalog at one
// Rule Store version.
type Snapshot struct {
	version    uint64
	builtAt    time.Time
	exact      map[string]map[string]rules.Rule
	company    map[uuid.UUID][]matcher
	universal  []matcher
	categories []rules.Category
	known      map[string]bool
}

// NewSnapshot indexes active rules for lookup. Rules are expected in priority
// order; the first EXACT rule for a pattern and scope wins.
func NewSnapshot(version uint64, active []rules.Rule, categories []rules.Category) (*Snapshot, []error) {
	s := &Snapshot{
		version:    version,
		builtAt:    time.Now(),
		exact:      make(map[string]map[string]rules.Rule),
		company:    make(map[uuid.UUID][]matcher),
		categories: categories,
		known:      make(map[string]bool, len(categories)),
	}
	for _, c := range categories {
		s.known[c.Code] = true
	}

	var errs []error
	for _, r := range active {
		if !r.Active {
			continue
		}

		m := matcher{rule: r}
		switch r.Kind {
		case rules.KindExact:
			key := scope(r.CompanyID)
			if s.exact[key] == nil {
				s.exact[key] = make(map[string]rules.Rule)
			}
			if _, dup := s.exact[key][r.Pattern]; !dup {
				s.exact[key][r.Pattern] = r
			}
			continue
		case rules.KindRegex:
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
				continue
			}
			m.re = re
		case rules.KindFuzzy:
		default:
			errs = append(errs, fmt.Errorf("rule %s: unknown kind %s", r.ID, r.Kind))
			continue
		}

		if r.CompanyID != nil {
			s.company[*r.CompanyID] = append(s.company[*r.CompanyID], m)
		} else {
			s.universal = append(s.universal, m)
		}
	}

	return s, errs
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Categories returns the category catalog the snapshot was built with.
func (s *Snapshot) Categories() []rules.Category {
	return s.categories
}

// Known reports whether code is a catalog category.
func (s *Snapshot) Known(code string) bool {
	return s.known[code]
}

// Exact looks up a normalized description among EXACT rules, checking the
// company's rules before universal ones.
func (s *Snapshot) Exact(normalized string, companyID *uuid.UUID) (rules.Rule, bool) {
	if companyID != nil {
		if r, ok := s.exact[scope(companyID)][normalized]; ok {
			return r, true
		}
	}
	r, ok := s.exact[""][normalized]
	return r, ok
}

// matchers returns the REGEX and FUZZY rules that apply to a company: its own
// rules first, then universal rules, each in priority order.
func (s *Snapshot) matchers(companyID *uuid.UUID) []matcher {
	if companyID == nil {
		return s.universal
	}
	own := s.company[*companyID]
	if len(own) == 0 {
		return s.universal
	}
	out := make([]matcher, 0, len(own)+len(s.universal))
	out = append(out, own...)
	return append(out, s.universal...)
}

func scope(companyID *uuid.UUID) string {
	if companyID == nil {
		return ""
	}
	return companyID.String()
}

// Cache owns the current Snapshot. A snapshot is rebuilt when the Rule Store
// version moves past it, and on a fixed interval to pick up writes made by other
// processes.
type Cache struct {
	store   rules.System
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewCache creates an empty Cache over store.
func NewCache(store rules.System, metrics *telemetry.Metrics, logger *slog.Logger) *Cache {
	return &Cache{
		store:   store,
		metrics: metrics,
		logger:  logger.With("system", "rule-cache"),
	}
}

// Snapshot returns a snapshot at the store's current version, rebuilding it first
// when the store has advanced.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); s != nil && s.version == c.store.Version() {
		return s, nil
	}
	return c.rebuild(ctx, false)
}

// Refresh rebuilds the snapshot unconditionally.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.rebuild(ctx, true)
	return err
}

// Start loads the first snapshot at startup and refreshes it on interval until
// shutdown.
func (c *Cache) Start(lc *lifecycle.Coordinator, interval time.Duration) {
	lc.OnStartup(func() {
		if err := c.Refresh(lc.Context()); err != nil {
			c.logger.Error("initial rule snapshot failed", "error", err)
		}
	})

	lc.Every(interval, func(ctx context.Context) {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("rule snapshot refresh failed", "error", err)
		}
	})
}

func (c *Cache) rebuild(ctx context.Context, force bool) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version := c.store.Version()
	if s := c.current.Load(); !force && s != nil && s.version == version {
		return s, nil
	}

	active, err := c.store.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
	}
	categories, err := c.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
	}

	s, errs := NewSnapshot(version, active, categories)
	for _, err := range errs {
		c.logger.Warn("rule skipped", "error", err)
	}

	c.current.Store(s)
	c.metrics.CacheRebuild()
	c.logger.Debug("rule snapshot rebuilt", "version", version, "rules", len(active))
	return s, nil
}
