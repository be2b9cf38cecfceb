// Package companies is the registry of invoice-issuing companies and the
// pattern matcher that identifies which company issued a document from its
// OCR text.
package companies

import (
	"time"

	"github.com/google/uuid"
)

// Company is an invoice issuer together with the patterns that identify it.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Names     []string  `json:"names"`
	Keywords  []string  `json:"keywords"`
	Formats   []string  `json:"formats"`
	LogoText  []string  `json:"logo_text"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCommand carries the fields of a new company.
type CreateCommand struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Names    []string `json:"names"`
	Keywords []string `json:"keywords"`
	Formats  []string `json:"formats"`
	LogoText []string `json:"logo_text"`
	Priority int      `json:"priority"`
}

// IdentifyRequest is the text to identify a company from.
type IdentifyRequest struct {
	Text string `json:"text"`
}
