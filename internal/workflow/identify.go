package workflow

import (
	"context"
	"strings"

	"github.com/JaimeStill/manifest/internal/scoring"
)

// identify resolves the issuing company. A document uploaded with a company
// keeps it; otherwise the vendor name and OCR text are matched against the
// registry. Identification never fails the document.
func identify(ctx context.Context, rt *Runtime, s *state) {
	if rt.Companies == nil {
		return
	}

	if s.companyID != nil {
		if c, err := rt.Companies.Find(ctx, *s.companyID); err == nil {
			s.companyCode = c.Code
		}
		return
	}

	text := strings.TrimSpace(s.extracted.VendorName.Value + "\n" + s.extracted.Text)
	id, err := rt.Companies.Identify(ctx, text)
	if err != nil {
		rt.Logger.WarnContext(ctx, "company identification failed",
			"document_id", s.doc.ID,
			"step", StepIdentify,
			"error", err,
		)
		s.flags = append(s.flags, scoring.FlagCompanyUnidentified)
		return
	}

	s.ident = id
	if id.CompanyID != nil {
		s.companyID = id.CompanyID
		s.companyCode = id.Code
	}
	if f := id.Flag(); f != "" {
		s.flags = append(s.flags, f)
	}

	rt.Logger.InfoContext(ctx, "company identification",
		"document_id", s.doc.ID,
		"outcome", id.Outcome,
		"code", id.Code,
		"confidence", id.Confidence,
	)
}
