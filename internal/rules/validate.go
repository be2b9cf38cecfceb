package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JaimeStill/manifest/internal/normalize"
)

// DefaultPriority is used when a command leaves Priority unset.
const DefaultPriority = 100

// prepare validates a create command and canonicalizes its pattern.
// EXACT and FUZZY patterns are normalized; REGEX patterns must compile.
func (c *CreateCommand) prepare(categories map[string]Category) error {
	switch c.Scope {
	case ScopeUniversal:
		if c.CompanyID != nil {
			return ErrInvalidScope
		}
	case ScopeCompany:
		if c.CompanyID == nil {
			return ErrInvalidScope
		}
	default:
		return fmt.Errorf("%w: scope %q", ErrInvalidRule, c.Scope)
	}

	c.Pattern = strings.TrimSpace(c.Pattern)
	switch c.Kind {
	case KindExact, KindFuzzy:
		c.Pattern = normalize.Description(c.Pattern)
	case KindRegex:
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidRule, c.Kind)
	}
	if c.Pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}

	if _, ok := categories[c.Category]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, c.Category)
	}

	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.Source == "" {
		c.Source = SourceManual
	}
	return nil
}

func (c *LearnCommand) prepare(categories map[string]Category) error {
	c.Description = normalize.Description(c.Description)
	if c.Description == "" {
		return fmt.Errorf("%w: empty description", ErrInvalidRule)
	}
	if _, ok := categories[c.Category]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, c.Category)
	}
	if c.Policy.Threshold < 1 {
		return fmt.Errorf("%w: promotion threshold must be positive", ErrInvalidRule)
	}
	return nil
}

func (c *LearnCommand) scope() Scope {
	if c.CompanyID != nil {
		return ScopeCompany
	}
	return ScopeUniversal
}

func (c SupersedeCommand) apply(current Rule) CreateCommand {
	next := CreateCommand{
		Scope:     current.Scope,
		CompanyID: current.CompanyID,
		Kind:      current.Kind,
		Pattern:   current.Pattern,
		Category:  current.Category,
		Priority:  current.Priority,
		Source:    SourceManual,
	}
	if c.Pattern != "" {
		next.Pattern = c.Pattern
	}
	if c.Category != "" {
		next.Category = c.Category
	}
	if c.Priority != 0 {
		next.Priority = c.Priority
	}
	return next
}
