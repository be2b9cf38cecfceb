package scoring

import (
	"fmt"
	"slices"
)

// Lane is the processing path a document takes after scoring.
type Lane string

const (
	LaneAutoApprove Lane = "AUTO_APPROVE"
	LaneQuickReview Lane = "QUICK_REVIEW"
	LaneFullReview  Lane = "FULL_REVIEW"
	LaneManual      Lane = "MANUAL_PROCESSING"
	LaneFlagged     Lane = "FLAGGED"
)

// Rank orders lanes by how much human attention they require; lower is more permissive.
func (l Lane) Rank() int {
	switch l {
	case LaneAutoApprove:
		return 0
	case LaneQuickReview:
		return 1
	case LaneFullReview:
		return 2
	case LaneManual:
		return 3
	default:
		return 4
	}
}

// Critical flags force a document into the FLAGGED lane.
var Critical = []Flag{FlagMissingFields, FlagNoLineItems, FlagTotalMismatchSevere}

// Thresholds are the minimum overall scores for each lane.
type Thresholds struct {
	AutoApprove float64 `toml:"auto_approve"`
	QuickReview float64 `toml:"quick_review"`
	FullReview  float64 `toml:"full_review"`
}

// Merge overwrites non-zero fields from overlay.
func (t *Thresholds) Merge(overlay *Thresholds) {
	if overlay.AutoApprove != 0 {
		t.AutoApprove = overlay.AutoApprove
	}
	if overlay.QuickReview != 0 {
		t.QuickReview = overlay.QuickReview
	}
	if overlay.FullReview != 0 {
		t.FullReview = overlay.FullReview
	}
}

// Validate ensures 0 < full review < quick review < auto approve <= 100.
func (t *Thresholds) Validate() error {
	if t.FullReview <= 0 || t.QuickReview <= t.FullReview || t.AutoApprove <= t.QuickReview || t.AutoApprove > 100 {
		return fmt.Errorf(
			"thresholds must satisfy 0 < full_review < quick_review < auto_approve <= 100 (got %.1f, %.1f, %.1f)",
			t.FullReview, t.QuickReview, t.AutoApprove,
		)
	}
	return nil
}

func (t *Thresholds) loadDefaults() {
	if t.AutoApprove == 0 {
		t.AutoApprove = 95
	}
	if t.QuickReview == 0 {
		t.QuickReview = 80
	}
	if t.FullReview == 0 {
		t.FullReview = 60
	}
}

// Route maps a score to its lane. Any critical flag wins over the numeric score.
func (t Thresholds) Route(score DocumentScore) Lane {
	if slices.ContainsFunc(score.Flags, func(f Flag) bool { return slices.Contains(Critical, f) }) {
		return LaneFlagged
	}

	switch {
	case score.Overall >= t.AutoApprove:
		return LaneAutoApprove
	case score.Overall >= t.QuickReview:
		return LaneQuickReview
	case score.Overall >= t.FullReview:
		return LaneFullReview
	default:
		return LaneManual
	}
}
