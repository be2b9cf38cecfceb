package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/manifest/internal/llm"
	"github.com/JaimeStill/manifest/internal/rules"
)

// tier is one classification strategy. A nil result with a nil error means the
// tier had no confident answer and the chain continues.
type tier interface {
	name() string
	tryClassify(ctx context.Context, a *attempt) (*Result, error)
}

type exactTier struct{}

func (exactTier) name() string { return "exact" }

func (exactTier) tryClassify(_ context.Context, a *attempt) (*Result, error) {
	r, ok := a.snapshot.Exact(a.normalized, a.req.CompanyID)
	if !ok {
		return nil, nil
	}
	id := r.ID
	return &Result{
		Category:   r.Category,
		Confidence: 1.0,
		Method:     MethodExact,
		RuleID:     &id,
	}, nil
}

type ruleTier struct {
	cfg Config
}

func (ruleTier) name() string { return "rule" }

// tryClassify scores every applicable REGEX and FUZZY rule, keeps the highest,
// then lets the business overrides force their category.
func (t ruleTier) tryClassify(_ context.Context, a *attempt) (*Result, error) {
	var best *Result

	for _, m := range a.snapshot.matchers(a.req.CompanyID) {
		var (
			confidence float64
			method     Method
		)

		switch m.rule.Kind {
		case rules.KindRegex:
			if !m.re.MatchString(a.normalized) {
				continue
			}
			confidence, method = t.cfg.RegexConfidence, MethodRule
		case rules.KindFuzzy:
			confidence = Similarity(a.normalized, m.rule.Pattern)
			if confidence < t.cfg.FuzzyThreshold {
				continue
			}
			method = MethodFuzzy
		default:
			continue
		}

		a.consider(Candidate{Category: m.rule.Category, Confidence: confidence, Method: method})
		if best == nil || confidence > best.Confidence {
			id := m.rule.ID
			best = &Result{
				Category:   m.rule.Category,
				Confidence: confidence,
				Method:     method,
				RuleID:     &id,
			}
		}
	}

	if category, ok := applyOverride(a.normalized); ok && a.snapshot.Known(category) {
		forced := &Result{
			Category:   category,
			Confidence: t.cfg.OverrideConfidence,
			Method:     MethodRule,
		}
		if best != nil && best.Category == category {
			forced.Confidence = max(forced.Confidence, best.Confidence)
			forced.RuleID = best.RuleID
		}
		best = forced
		a.consider(Candidate{Category: category, Confidence: forced.Confidence, Method: MethodRule})
	}

	a.rule = best
	if best != nil && best.Confidence >= t.cfg.RuleStop {
		return best, nil
	}
	return nil, nil
}

type learnedTier struct {
	store rules.System
	cfg   Config
}

func (learnedTier) name() string { return "learned" }

func (t learnedTier) tryClassify(ctx context.Context, a *attempt) (*Result, error) {
	lm, err := t.store.FindLearned(ctx, a.normalized, a.req.CompanyID)
	if errors.Is(err, rules.ErrMappingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
	}
	if !a.snapshot.Known(lm.Category) {
		return nil, nil
	}

	a.learned = &Result{
		Category:   lm.Category,
		Confidence: lm.Confidence,
		Method:     MethodLearned,
	}
	a.consider(Candidate{Category: lm.Category, Confidence: lm.Confidence, Method: MethodLearned})

	if lm.Confidence >= t.cfg.LearnedStop {
		return a.learned, nil
	}
	return nil, nil
}

type llmTier struct {
	service LLM
	cfg     Config
}

func (llmTier) name() string { return "llm" }

// tryClassify always answers or fails. When the rule tier's candidate agrees with
// the model, the result is boosted and tagged RULE+LLM.
func (t llmTier) tryClassify(ctx context.Context, a *attempt) (*Result, error) {
	answer, err := t.service.Classify(ctx, llm.Request{
		Description:   a.normalized,
		CompanyCode:   a.req.CompanyCode,
		TransportMode: a.req.TransportMode,
		Amount:        a.req.Amount,
		Currency:      a.req.Currency,
		Categories:    a.snapshot.Categories(),
	})
	if err != nil {
		if errors.Is(err, llm.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	if !a.snapshot.Known(answer.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrClassificationFailed, answer.Category)
	}

	for _, alt := range answer.Alternatives {
		if a.snapshot.Known(alt.Category) {
			a.consider(Candidate{Category: alt.Category, Confidence: alt.Confidence, Method: MethodLLM})
		}
	}

	res := &Result{
		Category:   answer.Category,
		Confidence: answer.Confidence,
		Method:     MethodLLM,
		Reasoning:  answer.Reasoning,
	}
	if a.rule != nil && a.rule.Category == answer.Category {
		res.Confidence = min(t.cfg.AgreementCap, (a.rule.Confidence+answer.Confidence)/2+t.cfg.AgreementBoost)
		res.Method = MethodRuleLLM
		res.RuleID = a.rule.RuleID
	}
	return res, nil
}
