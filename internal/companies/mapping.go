package companies

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "companies", "c").
	Project("id", "ID").
	Project("code", "Code").
	Project("name", "Name").
	Project("names", "Names").
	Project("keywords", "Keywords").
	Project("formats", "Formats").
	Project("logo_text", "LogoText").
	Project("priority", "Priority").
	Project("active", "Active").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "Code"}

const columns = `id, code, name, names, keywords, formats, logo_text, priority,
	active, created_at, updated_at`

// Filters narrows company listings. Nil fields are ignored.
type Filters struct {
	Code   *string `json:"code,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Code", f.Code).
		WhereEquals("Active", f.Active)
}

func (f Filters) matches(c *Company) bool {
	switch {
	case f.Code != nil && c.Code != *f.Code:
		return false
	case f.Active != nil && c.Active != *f.Active:
		return false
	}
	return true
}

// FiltersFromQuery extracts company filters from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("code"); c != "" {
		code := strings.ToUpper(c)
		f.Code = &code
	}
	if a, err := strconv.ParseBool(values.Get("active")); err == nil {
		f.Active = &a
	}

	return f
}

func scanCompany(s repository.Scanner) (Company, error) {
	var (
		c                                  Company
		names, keywords, formats, logoText []byte
	)
	err := s.Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&names,
		&keywords,
		&formats,
		&logoText,
		&c.Priority,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}

	for _, field := range []struct {
		raw []byte
		dst *[]string
	}{
		{names, &c.Names},
		{keywords, &c.Keywords},
		{formats, &c.Formats},
		{logoText, &c.LogoText},
	} {
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return c, err
		}
	}
	return c, nil
}
