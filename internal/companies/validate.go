package companies

import (
	"fmt"
	"regexp"
	"strings"
)

func (c *CreateCommand) prepare() error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)

	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCompany)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCompany)
	}
	if len(c.Names) == 0 {
		c.Names = []string{c.Name}
	}
	for _, f := range c.Formats {
		if _, err := regexp.Compile(f); err != nil {
			return fmt.Errorf("%w: format %q: %v", ErrInvalidCompany, f, err)
		}
	}

	c.Names = orEmpty(c.Names)
	c.Keywords = orEmpty(c.Keywords)
	c.Formats = orEmpty(c.Formats)
	c.LogoText = orEmpty(c.LogoText)
	return nil
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
