package documents

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("storage_key", "StorageKey").
	Project("company_id", "CompanyID").
	Project("status", "Status").
	Project("attempts", "Attempts").
	Project("failure_step", "FailureStep").
	Project("failure_detail", "FailureDetail").
	Project("vendor_name", "VendorName").
	Project("invoice_number", "InvoiceNumber").
	Project("invoice_date", "InvoiceDate").
	Project("total", "Total").
	Project("currency", "Currency").
	Project("extraction_score", "ExtractionScore").
	Project("classification_score", "ClassificationScore").
	Project("validation_score", "ValidationScore").
	Project("overall_score", "OverallScore").
	Project("flags", "Flags").
	Project("lane", "Lane").
	Project("uploaded_at", "UploadedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "UploadedAt",
	Descending: true,
}

const documentColumns = `id, filename, content_type, size_bytes, page_count, storage_key,
	company_id, status, attempts, failure_step, failure_detail,
	vendor_name, invoice_number, invoice_date, total, currency,
	extraction_score, classification_score, validation_score, overall_score, flags, lane,
	uploaded_at, updated_at`

const lineColumns = `id, document_id, position, description, normalized, amount, category,
	confidence, method, rule_id, reasoning, alternatives, updated_at`

var correctionProjection = query.
	NewProjectionMap("public", "corrections", "c").
	Project("id", "ID").
	Project("line_id", "LineID").
	Project("document_id", "DocumentID").
	Project("description", "Description").
	Project("previous_category", "PreviousCategory").
	Project("corrected_category", "CorrectedCategory").
	Project("corrected_by", "CorrectedBy").
	Project("company_id", "CompanyID").
	Project("created_at", "CreatedAt")

var correctionSort = query.SortField{Field: "CreatedAt", Descending: true}

const correctionColumns = `id, line_id, document_id, description, previous_category,
	corrected_category, corrected_by, company_id, created_at`

// Filters contains optional filtering criteria for document queries.
// Nil fields are ignored. Filename uses case-insensitive contains matching.
type Filters struct {
	Status      *Status       `json:"status,omitempty"`
	Lane        *scoring.Lane `json:"lane,omitempty"`
	CompanyID   *uuid.UUID    `json:"company_id,omitempty"`
	Filename    *string       `json:"filename,omitempty"`
	ContentType *string       `json:"content_type,omitempty"`
	MinScore    *float64      `json:"min_score,omitempty"`
	MaxScore    *float64      `json:"max_score,omitempty"`
}

// Apply adds filter conditions to a query builder. MaxScore is exclusive.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Lane", f.Lane).
		WhereEquals("CompanyID", f.CompanyID).
		WhereSearch(f.Filename, "Filename").
		WhereEquals("ContentType", f.ContentType).
		WhereAtLeast("OverallScore", f.MinScore).
		WhereBelow("OverallScore", f.MaxScore)
}

func (f Filters) matches(d *Document) bool {
	switch {
	case f.Status != nil && d.Status != *f.Status:
		return false
	case f.Lane != nil && (d.Score == nil || d.Score.Lane != *f.Lane):
		return false
	case f.CompanyID != nil && (d.CompanyID == nil || *d.CompanyID != *f.CompanyID):
		return false
	case f.Filename != nil && !containsFold(d.Filename, *f.Filename):
		return false
	case f.ContentType != nil && d.ContentType != *f.ContentType:
		return false
	case f.MinScore != nil && (d.Score == nil || d.Score.Overall < *f.MinScore):
		return false
	case f.MaxScore != nil && (d.Score == nil || d.Score.Overall >= *f.MaxScore):
		return false
	}
	return true
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		status := Status(s)
		f.Status = &status
	}
	if l := values.Get("lane"); l != "" {
		lane := scoring.Lane(l)
		f.Lane = &lane
	}
	if id, err := uuid.Parse(values.Get("company_id")); err == nil {
		f.CompanyID = &id
	}
	if fn := values.Get("filename"); fn != "" {
		f.Filename = &fn
	}
	if ct := values.Get("content_type"); ct != "" {
		f.ContentType = &ct
	}
	if v, err := strconv.ParseFloat(values.Get("min_score"), 64); err == nil {
		f.MinScore = &v
	}
	if v, err := strconv.ParseFloat(values.Get("max_score"), 64); err == nil {
		f.MaxScore = &v
	}

	return f
}

// CorrectionFilters narrows correction log listings. Nil fields are ignored.
type CorrectionFilters struct {
	DocumentID  *uuid.UUID `json:"document_id,omitempty"`
	CompanyID   *uuid.UUID `json:"company_id,omitempty"`
	CorrectedBy *string    `json:"corrected_by,omitempty"`
	Category    *string    `json:"category,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f CorrectionFilters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("DocumentID", f.DocumentID).
		WhereEquals("CompanyID", f.CompanyID).
		WhereEquals("CorrectedBy", f.CorrectedBy).
		WhereEquals("CorrectedCategory", f.Category)
}

func (f CorrectionFilters) matches(c *Correction) bool {
	switch {
	case f.DocumentID != nil && c.DocumentID != *f.DocumentID:
		return false
	case f.CompanyID != nil && (c.CompanyID == nil || *c.CompanyID != *f.CompanyID):
		return false
	case f.CorrectedBy != nil && c.CorrectedBy != *f.CorrectedBy:
		return false
	case f.Category != nil && c.CorrectedCategory != *f.Category:
		return false
	}
	return true
}

// CorrectionFiltersFromQuery extracts correction filters from URL query parameters.
func CorrectionFiltersFromQuery(values url.Values) CorrectionFilters {
	var f CorrectionFilters
	if id, err := uuid.Parse(values.Get("document_id")); err == nil {
		f.DocumentID = &id
	}
	if id, err := uuid.Parse(values.Get("company_id")); err == nil {
		f.CompanyID = &id
	}
	if by := values.Get("corrected_by"); by != "" {
		f.CorrectedBy = &by
	}
	if c := values.Get("category"); c != "" {
		f.Category = &c
	}
	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d                                 Document
		failureStep, failureDetail        *string
		vendor, number, date, currency    *string
		extraction, classification, valid *float64
		overall                           *float64
		flagsRaw                          []byte
		lane                              *string
	)

	err := s.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.PageCount,
		&d.StorageKey,
		&d.CompanyID,
		&d.Status,
		&d.Attempts,
		&failureStep,
		&failureDetail,
		&vendor,
		&number,
		&date,
		&d.Header.Total,
		&currency,
		&extraction,
		&classification,
		&valid,
		&overall,
		&flagsRaw,
		&lane,
		&d.UploadedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}

	if failureStep != nil {
		d.Failure = &Failure{Step: *failureStep, Detail: deref(failureDetail)}
	}
	d.Header.VendorName = deref(vendor)
	d.Header.InvoiceNumber = deref(number)
	d.Header.InvoiceDate = deref(date)
	d.Header.Currency = deref(currency)

	if lane != nil && overall != nil {
		score := scoring.DocumentScore{
			Extraction:     derefFloat(extraction),
			Classification: derefFloat(classification),
			Validation:     derefFloat(valid),
			Overall:        *overall,
			Flags:          []scoring.Flag{},
			Lane:           scoring.Lane(*lane),
		}
		if len(flagsRaw) > 0 {
			if err := json.Unmarshal(flagsRaw, &score.Flags); err != nil {
				return d, fmt.Errorf("unmarshal flags: %w", err)
			}
		}
		d.Score = &score
	}

	return d, nil
}

func scanLine(s repository.Scanner) (Line, error) {
	var (
		l       Line
		altsRaw []byte
	)
	err := s.Scan(
		&l.ID,
		&l.DocumentID,
		&l.Position,
		&l.Description,
		&l.Normalized,
		&l.Amount,
		&l.Category,
		&l.Confidence,
		&l.Method,
		&l.RuleID,
		&l.Reasoning,
		&altsRaw,
		&l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}

	if len(altsRaw) > 0 {
		if err := json.Unmarshal(altsRaw, &l.Alternatives); err != nil {
			return l, fmt.Errorf("unmarshal alternatives: %w", err)
		}
	}
	if l.Alternatives == nil {
		l.Alternatives = []classifier.Candidate{}
	}
	return l, nil
}

func scanCorrection(s repository.Scanner) (Correction, error) {
	var c Correction
	err := s.Scan(
		&c.ID,
		&c.LineID,
		&c.DocumentID,
		&c.Description,
		&c.PreviousCategory,
		&c.CorrectedCategory,
		&c.CorrectedBy,
		&c.CompanyID,
		&c.CreatedAt,
	)
	return c, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
