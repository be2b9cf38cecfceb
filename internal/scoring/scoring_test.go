package scoring_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/scoring"
)

func newScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	var cfg scoring.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return scoring.New(cfg)
}

func amount(v float64) *float64 { return &v }

func field(v string) extraction.Field {
	return extraction.Field{Value: v, Confidence: 1}
}

func invoice(total string, amounts ...float64) *extraction.Result {
	x := &extraction.Result{
		VendorName:    field("ACME Logistics"),
		InvoiceNumber: field("INV-001"),
		InvoiceDate:   field("2024-12-18"),
		Total:         field(total),
		Currency:      field("USD"),
		Confidence:    1,
	}
	for _, a := range amounts {
		x.LineItems = append(x.LineItems, extraction.LineItem{Description: "Ocean Freight", Amount: amount(a)})
	}
	return x
}

func exact(n int) []classifier.Result {
	lines := make([]classifier.Result, n)
	for i := range lines {
		lines[i] = classifier.Result{Category: "OCEAN_FREIGHT", Confidence: 1, Method: classifier.MethodExact}
	}
	return lines
}

func TestCombine(t *testing.T) {
	s := newScorer(t)

	score := s.Combine(90, 90, 90, nil)
	if score.Overall != 90.0 {
		t.Errorf("Overall = %v, want 90.0", score.Overall)
	}
	if score.Lane != scoring.LaneQuickReview {
		t.Errorf("Lane = %s, want QUICK_REVIEW", score.Lane)
	}

	score = s.Combine(100, 90, 50, nil)
	if score.Overall != 86.0 {
		t.Errorf("weighted Overall = %v, want 86.0", score.Overall)
	}
}

func TestScoreClean(t *testing.T) {
	s := newScorer(t)

	score := s.Score(invoice("1,200.00", 1000, 200), exact(2))

	if len(score.Flags) != 0 {
		t.Errorf("Flags = %v, want none", score.Flags)
	}
	if score.Extraction != 100 || score.Classification != 100 || score.Validation != 100 {
		t.Errorf("components = %v/%v/%v", score.Extraction, score.Classification, score.Validation)
	}
	if score.Overall != 100 || score.Lane != scoring.LaneAutoApprove {
		t.Errorf("overall = %v lane = %s", score.Overall, score.Lane)
	}
}

func TestScoreTotalMismatch(t *testing.T) {
	s := newScorer(t)

	t.Run("severe", func(t *testing.T) {
		score := s.Score(invoice("$1000.00", 700, 500), exact(2))
		if !score.Has(scoring.FlagTotalMismatchSevere) {
			t.Fatalf("Flags = %v, want TOTAL_MISMATCH_SEVERE", score.Flags)
		}
		if score.Validation != 60 {
			t.Errorf("Validation = %v, want 60", score.Validation)
		}
		if score.Lane != scoring.LaneFlagged {
			t.Errorf("Lane = %s, want FLAGGED", score.Lane)
		}
	})

	t.Run("moderate", func(t *testing.T) {
		score := s.Score(invoice("1000", 1070), exact(1))
		if !score.Has(scoring.FlagTotalMismatch) || score.Has(scoring.FlagTotalMismatchSevere) {
			t.Fatalf("Flags = %v, want TOTAL_MISMATCH only", score.Flags)
		}
		if score.Validation != 73.3 {
			t.Errorf("Validation = %v, want 73.3", score.Validation)
		}
		if score.Lane == scoring.LaneFlagged {
			t.Error("moderate mismatch must not flag the document")
		}
	})

	t.Run("within tolerance", func(t *testing.T) {
		score := s.Score(invoice("1000", 995), exact(1))
		if score.Has(scoring.FlagTotalMismatch) || score.Validation != 100 {
			t.Errorf("Flags = %v Validation = %v", score.Flags, score.Validation)
		}
	})
}

func TestScoreEmptyExtraction(t *testing.T) {
	s := newScorer(t)

	score := s.Score(&extraction.Result{Confidence: 0.4}, nil)

	want := []scoring.Flag{
		scoring.FlagMissingFields,
		scoring.FlagNoLineItems,
		scoring.FlagTotalUnavailable,
		scoring.FlagInvalidInvoiceNumber,
		scoring.FlagInvalidDate,
		scoring.FlagInvalidCurrency,
	}
	for _, f := range want {
		if !score.Has(f) {
			t.Errorf("missing flag %s in %v", f, score.Flags)
		}
	}
	if score.Extraction != 15 || score.Classification != 0 || score.Validation != 0 {
		t.Errorf("components = %v/%v/%v", score.Extraction, score.Classification, score.Validation)
	}
	if score.Lane != scoring.LaneFlagged {
		t.Errorf("Lane = %s, want FLAGGED", score.Lane)
	}
}

func TestScoreClassificationFailure(t *testing.T) {
	s := newScorer(t)

	lines := []classifier.Result{
		{Category: "OCEAN_FREIGHT", Confidence: 1, Method: classifier.MethodExact},
		{Category: classifier.Unclassified, Confidence: 0, Method: classifier.MethodNone},
	}
	score := s.Score(invoice("1200", 1000, 200), lines)

	if !score.Has(scoring.FlagClassificationFailed) {
		t.Errorf("Flags = %v, want CLASSIFICATION_FAILED", score.Flags)
	}
	if score.Classification != 53.8 {
		t.Errorf("Classification = %v, want 53.8", score.Classification)
	}
}

func TestExactBonusTiers(t *testing.T) {
	s := newScorer(t)

	llm := classifier.Result{Category: "THC", Confidence: 0.8, Method: classifier.MethodLLM}
	ex := classifier.Result{Category: "THC", Confidence: 0.8, Method: classifier.MethodExact}

	tests := []struct {
		name  string
		lines []classifier.Result
		want  float64
	}{
		{"none exact", []classifier.Result{llm, llm, llm, llm}, 50},
		{"quarter exact", []classifier.Result{ex, llm, llm, llm}, 62.5},
		{"half exact", []classifier.Result{ex, ex, llm, llm}, 72.5},
		{"majority exact", []classifier.Result{ex, ex, ex, llm}, 87.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := s.Score(invoice("400", 100, 100, 100, 100), tt.lines)
			if score.Classification != tt.want {
				t.Errorf("Classification = %v, want %v", score.Classification, tt.want)
			}
		})
	}
}

func TestRouteMonotonic(t *testing.T) {
	s := newScorer(t)

	flagSets := [][]scoring.Flag{nil, {scoring.FlagTotalMismatch}, {scoring.FlagNoLineItems}}
	for _, flags := range flagSets {
		prev := scoring.LaneFlagged.Rank() + 1
		for i := 0; i <= 1000; i++ {
			overall := float64(i) / 10
			lane := s.Route(scoring.DocumentScore{Overall: overall, Flags: flags})
			if lane.Rank() > prev {
				t.Fatalf("flags %v: score %.1f routed to %s, stricter than a lower score", flags, overall, lane)
			}
			prev = lane.Rank()
		}
	}
}

func TestRouteThresholds(t *testing.T) {
	s := newScorer(t)

	tests := []struct {
		overall float64
		flags   []scoring.Flag
		want    scoring.Lane
	}{
		{95, nil, scoring.LaneAutoApprove},
		{94.9, nil, scoring.LaneQuickReview},
		{80, nil, scoring.LaneQuickReview},
		{79.9, nil, scoring.LaneFullReview},
		{60, nil, scoring.LaneFullReview},
		{59.9, nil, scoring.LaneManual},
		{99, []scoring.Flag{scoring.FlagTotalMismatchSevere}, scoring.LaneFlagged},
		{99, []scoring.Flag{scoring.FlagMissingFields}, scoring.LaneFlagged},
		{99, []scoring.Flag{scoring.FlagCompanyNeedsReview}, scoring.LaneAutoApprove},
	}

	for _, tt := range tests {
		got := s.Route(scoring.DocumentScore{Overall: tt.overall, Flags: tt.flags})
		if got != tt.want {
			t.Errorf("Route(%.1f, %v) = %s, want %s", tt.overall, tt.flags, got, tt.want)
		}
	}
}

func TestCustomThresholds(t *testing.T) {
	cfg := scoring.Config{Thresholds: scoring.Thresholds{AutoApprove: 90, QuickReview: 75, FullReview: 50}}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	s := scoring.New(cfg)

	if lane := s.Combine(90, 90, 90, nil).Lane; lane != scoring.LaneAutoApprove {
		t.Errorf("Lane = %s, want AUTO_APPROVE", lane)
	}
}

func TestAnnotate(t *testing.T) {
	s := newScorer(t)

	base := s.Combine(98, 98, 98, nil)
	annotated := s.Annotate(base, scoring.FlagCompanyNeedsReview, scoring.FlagNoLineItems)

	if len(base.Flags) != 0 || base.Lane != scoring.LaneAutoApprove {
		t.Errorf("base score mutated: %+v", base)
	}
	if !slices.Equal(annotated.Flags, []scoring.Flag{scoring.FlagCompanyNeedsReview, scoring.FlagNoLineItems}) {
		t.Errorf("Flags = %v", annotated.Flags)
	}
	if annotated.Lane != scoring.LaneFlagged || annotated.Overall != base.Overall {
		t.Errorf("annotated = %+v", annotated)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  scoring.Config
	}{
		{"inverted thresholds", scoring.Config{Thresholds: scoring.Thresholds{AutoApprove: 70, QuickReview: 80, FullReview: 60}}},
		{"weights off", scoring.Config{Weights: scoring.Weights{Extraction: 0.5, Classification: 0.5, Validation: 0.5}}},
		{"inverted bands", scoring.Config{MismatchWarn: 0.2, MismatchSevere: 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
