// Package documents registers uploaded invoices, stores their source files, and
// persists each processing attempt's header fields, score, and line results.
package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/scoring"
)

// Status is a document's position in the processing lifecycle.
type Status string

const (
	StatusPending               Status = "pending"
	StatusProcessing            Status = "processing"
	StatusCompleted             Status = "completed"
	StatusFailedExtraction      Status = "failed_extraction"
	StatusClassificationPartial Status = "classification_partial"
	StatusCancelled             Status = "cancelled"
)

// Terminal reports whether a processing attempt has ended in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailedExtraction, StatusClassificationPartial, StatusCancelled:
		return true
	}
	return false
}

// Scored reports whether documents in this status carry a score and lane.
func (s Status) Scored() bool {
	return s == StatusCompleted || s == StatusClassificationPartial
}

// Failure names the pipeline step that stopped a document and why.
type Failure struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Header holds the invoice header fields captured by extraction.
type Header struct {
	VendorName    string   `json:"vendor_name"`
	InvoiceNumber string   `json:"invoice_number"`
	InvoiceDate   string   `json:"invoice_date"`
	Total         *float64 `json:"total"`
	Currency      string   `json:"currency"`
}

// Document is a registered invoice and the outcome of its latest processing attempt.
type Document struct {
	ID          uuid.UUID              `json:"id"`
	Filename    string                 `json:"filename"`
	ContentType string                 `json:"content_type"`
	SizeBytes   int64                  `json:"size_bytes"`
	PageCount   *int                   `json:"page_count"`
	StorageKey  string                 `json:"storage_key"`
	CompanyID   *uuid.UUID             `json:"company_id"`
	Status      Status                 `json:"status"`
	Attempts    int                    `json:"attempts"`
	Failure     *Failure               `json:"failure,omitempty"`
	Header      Header                 `json:"header"`
	Score       *scoring.DocumentScore `json:"score,omitempty"`
	UploadedAt  time.Time              `json:"uploaded_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Line is the persisted classification of one extracted line item.
type Line struct {
	ID           uuid.UUID              `json:"id"`
	DocumentID   uuid.UUID              `json:"document_id"`
	Position     int                    `json:"position"`
	Description  string                 `json:"description"`
	Normalized   string                 `json:"normalized"`
	Amount       *float64               `json:"amount"`
	Category     string                 `json:"category"`
	Confidence   float64                `json:"confidence"`
	Method       classifier.Method      `json:"method"`
	RuleID       *uuid.UUID             `json:"rule_id"`
	Reasoning    string                 `json:"reasoning,omitempty"`
	Alternatives []classifier.Candidate `json:"alternatives"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// LineFromResult builds an unsaved Line from a classification.
func LineFromResult(position int, amount *float64, r classifier.Result) Line {
	alts := r.Alternatives
	if alts == nil {
		alts = []classifier.Candidate{}
	}
	return Line{
		Position:     position,
		Description:  r.Description,
		Normalized:   r.Normalized,
		Amount:       amount,
		Category:     r.Category,
		Confidence:   r.Confidence,
		Method:       r.Method,
		RuleID:       r.RuleID,
		Reasoning:    r.Reasoning,
		Alternatives: alts,
	}
}

// Result is a document with its line results.
type Result struct {
	Document Document `json:"document"`
	Lines    []Line   `json:"lines"`
}

// CreateCommand carries the data needed to upload and register a new document.
// PageCount is optional; nil values are stored as NULL.
type CreateCommand struct {
	Data        []byte
	Filename    string
	ContentType string
	CompanyID   *uuid.UUID
	PageCount   *int
}

// SaveCommand replaces a document's processing outcome. Status must be scored.
type SaveCommand struct {
	Status Status
	// CompanyID replaces the document's company when non-nil; nil keeps the
	// company recorded at upload.
	CompanyID *uuid.UUID
	Header    Header
	Score     scoring.DocumentScore
	Lines     []Line
}

// Correction is one entry in the append-only corrections log.
type Correction struct {
	ID                uuid.UUID  `json:"id"`
	LineID            uuid.UUID  `json:"line_id"`
	DocumentID        uuid.UUID  `json:"document_id"`
	Description       string     `json:"description"`
	PreviousCategory  string     `json:"previous_category"`
	CorrectedCategory string     `json:"corrected_category"`
	CorrectedBy       string     `json:"corrected_by"`
	CompanyID         *uuid.UUID `json:"company_id"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CorrectCommand is a reviewer's correction of one line. When PreviousCategory is
// set it must match the line's current category. A nil CompanyID falls back to
// the document's company.
type CorrectCommand struct {
	LineID            uuid.UUID  `json:"line_id"`
	PreviousCategory  string     `json:"previous_category"`
	CorrectedCategory string     `json:"corrected_category"`
	CorrectedBy       string     `json:"corrected_by"`
	CompanyID         *uuid.UUID `json:"company_id"`
}
