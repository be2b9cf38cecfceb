package companies

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/scoring"
)

const (
	scoreName     = 40.0
	scoreKeyword  = 15.0
	keywordMax    = 30.0
	scoreFormat   = 20.0
	scoreLogoText = 10.0
	scoreBonus    = 5.0
)

// Outcome classifies an identification by its confidence.
type Outcome string

const (
	OutcomeIdentified   Outcome = "IDENTIFIED"
	OutcomeNeedsReview  Outcome = "NEEDS_REVIEW"
	OutcomeUnidentified Outcome = "UNIDENTIFIED"
)

// Identification is the best company match for a document's text.
// CompanyID is set only when the outcome is IDENTIFIED; a NEEDS_REVIEW match
// reports the candidate through Code and Name.
type Identification struct {
	CompanyID  *uuid.UUID `json:"company_id,omitempty"`
	Code       string     `json:"code,omitempty"`
	Name       string     `json:"name,omitempty"`
	Confidence float64    `json:"confidence"`
	Method     string     `json:"method"`
	Matched    []string   `json:"matched"`
	Outcome    Outcome    `json:"outcome"`
}

// Flag returns the scoring flag the outcome raises, or "" when identified.
func (i Identification) Flag() scoring.Flag {
	switch i.Outcome {
	case OutcomeIdentified:
		return ""
	case OutcomeNeedsReview:
		return scoring.FlagCompanyNeedsReview
	default:
		return scoring.FlagCompanyUnidentified
	}
}

type pattern struct {
	company  Company
	names    []string
	keywords []string
	formats  []*regexp.Regexp
	logoText []string
}

// Matcher scores text against the identification patterns of a set of companies.
type Matcher struct {
	patterns []pattern
	cfg      Config
}

// NewMatcher compiles the patterns of the active companies. Companies are tried
// in descending priority; ties keep the earlier company.
func NewMatcher(companies []Company, cfg Config) *Matcher {
	m := &Matcher{cfg: cfg}
	for _, c := range companies {
		if !c.Active {
			continue
		}
		p := pattern{
			company:  c,
			names:    lowerAll(c.Names),
			keywords: lowerAll(c.Keywords),
			logoText: lowerAll(c.LogoText),
		}
		for _, f := range c.Formats {
			if re, err := regexp.Compile("(?i)" + f); err == nil {
				p.formats = append(p.formats, re)
			}
		}
		m.patterns = append(m.patterns, p)
	}
	slices.SortStableFunc(m.patterns, func(a, b pattern) int {
		return cmp.Compare(b.company.Priority, a.company.Priority)
	})
	return m
}

// Identify returns the highest-scoring company for text.
func (m *Matcher) Identify(text string) Identification {
	unidentified := Identification{Method: "none", Matched: []string{}, Outcome: OutcomeUnidentified}

	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return unidentified
	}

	var best *Identification
	for _, p := range m.patterns {
		id := p.match(normalized, text)
		if best == nil || id.Confidence > best.Confidence {
			best = &id
		}
	}

	if best == nil || best.Confidence < m.cfg.NeedsReview {
		return unidentified
	}
	if best.Confidence >= m.cfg.AutoIdentify {
		best.Outcome = OutcomeIdentified
	} else {
		best.Outcome = OutcomeNeedsReview
		best.CompanyID = nil
	}
	return *best
}

func (p pattern) match(normalized, original string) Identification {
	var score float64
	method := "none"
	matched := []string{}

	use := func(m string) {
		if method == "none" {
			method = m
		}
	}

	names := 0
	for i, n := range p.names {
		if n == "" || !strings.Contains(normalized, n) {
			continue
		}
		if names == 0 {
			score += scoreName
		} else {
			score += scoreBonus
		}
		names++
		use("name")
		matched = append(matched, "name:"+p.company.Names[i])
	}

	var keywords float64
	for i, k := range p.keywords {
		if k == "" || !strings.Contains(normalized, k) {
			continue
		}
		add := min(scoreKeyword, keywordMax-keywords)
		if add > 0 {
			keywords += add
			score += add
			use("keyword")
		}
		matched = append(matched, "keyword:"+p.company.Keywords[i])
	}

	for _, re := range p.formats {
		if v := re.FindString(original); v != "" {
			score += scoreFormat
			use("format")
			matched = append(matched, fmt.Sprintf("format:%s", v))
			break
		}
	}

	for i, l := range p.logoText {
		if l != "" && strings.Contains(normalized, l) {
			score += scoreLogoText
			use("logo_text")
			matched = append(matched, "logo:"+p.company.LogoText[i])
			break
		}
	}

	id := p.company.ID
	return Identification{
		CompanyID:  &id,
		Code:       p.company.Code,
		Name:       p.company.Name,
		Confidence: min(score, 100),
		Method:     method,
		Matched:    matched,
	}
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return out
}
