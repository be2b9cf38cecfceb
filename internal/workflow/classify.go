package workflow

import (
	"context"
	"errors"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/normalize"
)

// classify runs every extracted line through the classifier in order. Only a
// rule store outage stops the document; other failures degrade one line.
func classify(ctx context.Context, rt *Runtime, s *state) error {
	s.results = make([]classifier.Result, len(s.extracted.LineItems))

	for i, item := range s.extracted.LineItems {
		req := classifier.Request{
			Description: item.Description,
			CompanyID:   s.companyID,
			CompanyCode: s.companyCode,
			Amount:      item.Amount,
			Currency:    s.extracted.Currency.Value,
		}

		res, err := classifyLine(ctx, rt, req)
		if errors.Is(err, classifier.ErrRuleStoreUnavailable) {
			return abort(ctx, rt, s, StepClassify, err)
		}
		if err != nil {
			s.failures++
			res = unclassified(item, err)
			rt.Logger.WarnContext(ctx, "line classification failed",
				"document_id", s.doc.ID,
				"step", StepClassify,
				"position", i,
				"error", err,
			)
		}
		s.results[i] = res
	}
	return nil
}

// classifyLine retries retryable failures up to rt.Retries times.
func classifyLine(ctx context.Context, rt *Runtime, req classifier.Request) (classifier.Result, error) {
	var (
		res classifier.Result
		err error
	)
	for attempt := 0; attempt <= rt.Retries; attempt++ {
		res, err = rt.Classifier.Classify(ctx, req)
		if err == nil || !classifier.Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return res, err
}

func unclassified(item extraction.LineItem, cause error) classifier.Result {
	return classifier.Result{
		Description:  item.Description,
		Normalized:   normalize.Description(item.Description),
		Category:     classifier.Unclassified,
		Method:       classifier.MethodNone,
		Reasoning:    cause.Error(),
		Alternatives: []classifier.Candidate{},
	}
}
