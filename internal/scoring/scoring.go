// Package scoring turns an extraction and its line classifications into a
// document score and routes the document to a review lane.
package scoring

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/currency"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/extraction"
)

// Flag names an anomaly found while scoring.
type Flag string

const (
	FlagMissingFields        Flag = "MISSING_FIELDS"
	FlagNoLineItems          Flag = "NO_LINE_ITEMS_EXTRACTED"
	FlagTotalMismatch        Flag = "TOTAL_MISMATCH"
	FlagTotalMismatchSevere  Flag = "TOTAL_MISMATCH_SEVERE"
	FlagTotalUnavailable     Flag = "TOTAL_UNAVAILABLE"
	FlagInvalidInvoiceNumber Flag = "INVALID_INVOICE_NUMBER"
	FlagInvalidDate          Flag = "INVALID_DATE"
	FlagInvalidCurrency      Flag = "INVALID_CURRENCY"
	FlagClassificationFailed Flag = "CLASSIFICATION_FAILED"
	FlagCompanyNeedsReview   Flag = "COMPANY_NEEDS_REVIEW"
	FlagCompanyUnidentified  Flag = "COMPANY_UNIDENTIFIED"
)

const (
	headerPoints       = 37.5
	ocrPoints          = 37.5
	completenessPoints = 25.0

	meanPoints = 62.5

	agreementPoints    = 50.0
	agreementFloor     = 10.0
	agreementFullBelow = 0.01

	invoiceNumberPoints = 20.0
	datePoints          = 15.0
	currencyPoints      = 15.0
)

// DocumentScore is the scored outcome of one processing attempt. Lane is always
// derived from Overall and Flags.
type DocumentScore struct {
	Extraction     float64 `json:"extraction"`
	Classification float64 `json:"classification"`
	Validation     float64 `json:"validation"`
	Overall        float64 `json:"overall"`
	Flags          []Flag  `json:"flags"`
	Lane           Lane    `json:"lane"`
}

// Has reports whether the score carries flag.
func (s DocumentScore) Has(flag Flag) bool {
	return slices.Contains(s.Flags, flag)
}

// Scorer computes document scores with a fixed configuration.
type Scorer struct {
	cfg Config
}

// New creates a Scorer.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Route maps a score to its lane.
func (s *Scorer) Route(score DocumentScore) Lane {
	return s.cfg.Thresholds.Route(score)
}

// Score grades an extraction and its classifications. lines must be in the same
// order as x.LineItems.
func (s *Scorer) Score(x *extraction.Result, lines []classifier.Result) DocumentScore {
	var flags flagSet

	e := s.extraction(x, &flags)
	c := s.classification(lines, &flags)
	v := s.validation(x, &flags)

	return s.Combine(e, c, v, flags.list())
}

// Combine builds a DocumentScore from component scores and flags, computing the
// weighted overall score and the lane.
func (s *Scorer) Combine(extraction, classification, validation float64, flags []Flag) DocumentScore {
	score := DocumentScore{
		Extraction:     round1(extraction),
		Classification: round1(classification),
		Validation:     round1(validation),
		Flags:          slices.Clone(flags),
	}
	if score.Flags == nil {
		score.Flags = []Flag{}
	}

	w := s.cfg.Weights
	score.Overall = round1(w.Extraction*score.Extraction + w.Classification*score.Classification + w.Validation*score.Validation)
	score.Lane = s.Route(score)
	return score
}

// Annotate returns a copy of score with extra flags appended and the lane recomputed.
func (s *Scorer) Annotate(score DocumentScore, extra ...Flag) DocumentScore {
	var flags flagSet
	for _, f := range score.Flags {
		flags.add(f)
	}
	for _, f := range extra {
		flags.add(f)
	}
	return s.Combine(score.Extraction, score.Classification, score.Validation, flags.list())
}

func (s *Scorer) extraction(x *extraction.Result, flags *flagSet) float64 {
	header := []extraction.Field{x.InvoiceNumber, x.InvoiceDate, x.Total, x.VendorName}
	present := 0
	for _, f := range header {
		if f.Present() {
			present++
		}
	}
	if present < len(header) {
		flags.add(FlagMissingFields)
	}

	score := headerPoints * float64(present) / float64(len(header))
	score += ocrPoints * min(max(x.Confidence, 0), 1)

	if len(x.LineItems) == 0 {
		flags.add(FlagNoLineItems)
		return score
	}

	complete := 0
	for _, li := range x.LineItems {
		if li.Complete() {
			complete++
		}
	}
	return score + completenessPoints*float64(complete)/float64(len(x.LineItems))
}

func (s *Scorer) classification(lines []classifier.Result, flags *flagSet) float64 {
	if len(lines) == 0 {
		return 0
	}

	var sum float64
	exact := 0
	for _, l := range lines {
		sum += l.Confidence
		if l.Method == classifier.MethodExact {
			exact++
		}
		if l.Category == classifier.Unclassified {
			flags.add(FlagClassificationFailed)
		}
	}

	n := float64(len(lines))
	return meanPoints*(sum/n) + exactBonus(float64(exact)/n)
}

// exactBonus rewards documents resolved mostly by exact rules.
func exactBonus(fraction float64) float64 {
	switch {
	case fraction > 0.50:
		return 37.5
	case fraction > 0.25:
		return 22.5
	case fraction > 0:
		return 12.5
	default:
		return 0
	}
}

func (s *Scorer) validation(x *extraction.Result, flags *flagSet) float64 {
	score := s.agreement(x, flags)

	if len(strings.TrimSpace(x.InvoiceNumber.Value)) >= 3 {
		score += invoiceNumberPoints
	} else {
		flags.add(FlagInvalidInvoiceNumber)
	}

	if _, ok := x.Date(); ok {
		score += datePoints
	} else {
		flags.add(FlagInvalidDate)
	}

	if validCurrency(x.Currency.Value) {
		score += currencyPoints
	} else {
		flags.add(FlagInvalidCurrency)
	}

	return score
}

// agreement compares the declared total to the sum of line amounts. Full credit
// up to 1% relative difference, tapering linearly to the floor at the severe band.
func (s *Scorer) agreement(x *extraction.Result, flags *flagSet) float64 {
	total, ok := x.TotalAmount()
	if !ok {
		flags.add(FlagTotalUnavailable)
		return 0
	}

	var sum float64
	for _, li := range x.LineItems {
		if li.Amount != nil {
			sum += *li.Amount
		}
	}

	diff := relativeDiff(total, sum)
	switch {
	case diff > s.cfg.MismatchSevere:
		flags.add(FlagTotalMismatchSevere)
	case diff > s.cfg.MismatchWarn:
		flags.add(FlagTotalMismatch)
	}

	switch {
	case diff <= agreementFullBelow:
		return agreementPoints
	case diff >= s.cfg.MismatchSevere:
		return agreementFloor
	default:
		span := s.cfg.MismatchSevere - agreementFullBelow
		return agreementPoints - (diff-agreementFullBelow)/span*(agreementPoints-agreementFloor)
	}
}

func relativeDiff(total, sum float64) float64 {
	if total == 0 {
		if sum == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(total-sum) / math.Abs(total)
}

func validCurrency(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 3 {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type flagSet struct {
	flags []Flag
}

func (f *flagSet) add(flag Flag) {
	if !slices.Contains(f.flags, flag) {
		f.flags = append(f.flags, flag)
	}
}

func (f *flagSet) list() []Flag {
	return f.flags
}
