package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/rules"
)

// finalize scores and routes the document, persists the result, and records
// rule usage.
func finalize(ctx context.Context, rt *Runtime, s *state) (*Result, error) {
	score := rt.Scorer.Score(s.extracted, s.results)
	score = rt.Scorer.Annotate(score, s.flags...)

	status := documents.StatusCompleted
	if s.failures > 0 {
		status = documents.StatusClassificationPartial
	}

	lines := make([]documents.Line, len(s.results))
	for i, r := range s.results {
		lines[i] = documents.LineFromResult(i, s.extracted.LineItems[i].Amount, r)
	}

	x := s.extracted
	header := documents.Header{
		VendorName:    x.VendorName.Value,
		InvoiceNumber: x.InvoiceNumber.Value,
		InvoiceDate:   x.InvoiceDate.Value,
		Currency:      x.Currency.Value,
	}
	if total, ok := x.TotalAmount(); ok {
		header.Total = &total
	}

	saved, err := rt.Documents.Save(ctx, s.doc.ID, documents.SaveCommand{
		Status:    status,
		CompanyID: s.companyID,
		Header:    header,
		Score:     score,
		Lines:     lines,
	})
	if err != nil {
		return nil, stepError(StepPersist, err)
	}

	recordUsage(ctx, rt, s)

	rt.Metrics.Document(string(status))
	rt.Metrics.Lane(string(score.Lane))

	return &Result{
		Result:         *saved,
		Identification: s.ident,
		Failures:       s.failures,
		CompletedAt:    time.Now().UTC(),
	}, nil
}

// recordUsage counts each rule that produced a final answer once per document.
func recordUsage(ctx context.Context, rt *Runtime, s *state) {
	if rt.Rules == nil {
		return
	}

	now := time.Now().UTC()
	seen := make(map[uuid.UUID]bool)
	var matches []rules.Match
	for _, r := range s.results {
		if r.RuleID == nil || seen[*r.RuleID] {
			continue
		}
		seen[*r.RuleID] = true
		matches = append(matches, rules.Match{RuleID: *r.RuleID, MatchedAt: now})
	}
	if len(matches) == 0 {
		return
	}

	if err := rt.Rules.RecordMatches(ctx, matches); err != nil {
		rt.Logger.WarnContext(ctx, "record rule usage", "document_id", s.doc.ID, "error", err)
	}
}
