// Package classifier assigns a standard charge category to a line-item description
// by trying, in order, exact rules, regex and fuzzy rules, learned mappings, and an
// LLM, stopping at the first tier that is confident enough.
package classifier

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/llm"
	"github.com/JaimeStill/manifest/internal/normalize"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/telemetry"
)

// Method records which strategy produced a classification.
type Method string

const (
	MethodExact   Method = "EXACT"
	MethodFuzzy   Method = "FUZZY"
	MethodRule    Method = "RULE"
	MethodLearned Method = "LEARNED"
	MethodLLM     Method = "LLM"
	MethodRuleLLM Method = "RULE+LLM"
	MethodNone    Method = "NONE"
	MethodHuman   Method = "HUMAN"
)

// Unclassified is the category assigned when nothing could be determined.
const Unclassified = "UNCLASSIFIED"

const maxAlternatives = 3

// Request is a description with the optional invoice context used by the tiers.
type Request struct {
	Description   string     `json:"description"`
	CompanyID     *uuid.UUID `json:"company_id,omitempty"`
	CompanyCode   string     `json:"company_code,omitempty"`
	TransportMode string     `json:"transport_mode,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
}

// Candidate is a category a tier considered, with its score.
type Candidate struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Result is the outcome of classifying one description. Confidence always
// belongs to the method that produced Category.
type Result struct {
	Description  string      `json:"description"`
	Normalized   string      `json:"normalized"`
	Category     string      `json:"category"`
	Confidence   float64     `json:"confidence"`
	Method       Method      `json:"method"`
	RuleID       *uuid.UUID  `json:"rule_id,omitempty"`
	Reasoning    string      `json:"reasoning,omitempty"`
	Alternatives []Candidate `json:"alternatives"`
}

// LLM is the language-model classification service.
type LLM interface {
	Classify(ctx context.Context, req llm.Request) (*llm.Answer, error)
}

// Classifier runs the tier chain against the current rule snapshot.
type Classifier struct {
	cache   *Cache
	tiers   []tier
	cfg     Config
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// New creates a Classifier. A nil service removes the LLM tier; descriptions that
// no rule resolves then return the best candidate found, or UNCLASSIFIED.
func New(
	cache *Cache,
	store rules.System,
	service LLM,
	cfg Config,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Classifier {
	tiers := []tier{
		exactTier{},
		ruleTier{cfg: cfg},
		learnedTier{store: store, cfg: cfg},
	}
	if service != nil {
		tiers = append(tiers, llmTier{service: service, cfg: cfg})
	}

	return &Classifier{
		cache:   cache,
		tiers:   tiers,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("system", "classifier"),
	}
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Handler returns the classify preview handler.
func (c *Classifier) Handler() *Handler {
	return NewHandler(c, c.logger)
}

// Classify assigns a category to req.Description. An empty description returns
// UNCLASSIFIED without consulting any tier. Errors wrap ErrRuleStoreUnavailable,
// ErrLLMUnavailable, or ErrClassificationFailed.
func (c *Classifier) Classify(ctx context.Context, req Request) (Result, error) {
	normalized := normalize.Description(req.Description)
	if normalized == "" {
		return c.finish(&attempt{req: req}, Result{
			Category: Unclassified,
			Method:   MethodNone,
		}), nil
	}

	snap, err := c.cache.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	a := &attempt{
		req:        req,
		normalized: normalized,
		snapshot:   snap,
		best:       make(map[string]Candidate),
	}

	for _, t := range c.tiers {
		res, err := t.tryClassify(ctx, a)
		if err != nil {
			c.logger.WarnContext(ctx, "classification tier failed",
				"tier", t.name(),
				"description", normalized,
				"error", err,
			)
			return Result{}, err
		}
		if res != nil {
			return c.finish(a, *res), nil
		}
	}

	return c.finish(a, a.fallback()), nil
}

func (c *Classifier) finish(a *attempt, res Result) Result {
	res.Description = a.req.Description
	res.Normalized = a.normalized
	res.Alternatives = a.alternatives(res.Category)
	c.metrics.Classification(string(res.Method))
	return res
}

// attempt carries one description through the tier chain.
type attempt struct {
	req        Request
	normalized string
	snapshot   *Snapshot

	// rule is the best regex, fuzzy, or override outcome; the LLM tier compares
	// against it for agreement.
	rule    *Result
	learned *Result
	best    map[string]Candidate
}

func (a *attempt) consider(c Candidate) {
	if cur, ok := a.best[c.Category]; !ok || c.Confidence > cur.Confidence {
		a.best[c.Category] = c
	}
}

func (a *attempt) alternatives(chosen string) []Candidate {
	out := make([]Candidate, 0, len(a.best))
	for _, c := range a.best {
		if c.Category != chosen {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(x, y Candidate) int {
		return cmp.Or(cmp.Compare(y.Confidence, x.Confidence), cmp.Compare(x.Category, y.Category))
	})
	if len(out) > maxAlternatives {
		out = out[:maxAlternatives]
	}
	return out
}

// fallback picks the strongest sub-threshold outcome when no tier stopped the chain.
func (a *attempt) fallback() Result {
	var best *Result
	for _, r := range []*Result{a.rule, a.learned} {
		if r != nil && (best == nil || r.Confidence > best.Confidence) {
			best = r
		}
	}
	if best == nil {
		return Result{Category: Unclassified, Method: MethodNone}
	}
	return *best
}
