// Package normalize reduces free-text charge descriptions to the canonical form
// used as the key for exact rules and learned mappings.
package normalize

import (
	"regexp"
	"strings"
)

const currencies = `USD|HKD|EUR|CNY|RMB|GBP|JPY|SGD|TWD|US\$|HK\$|S\$|NT\$|\$|€|£|¥`

const number = `-?\d[\d,]*(?:\.\d+)?`

var (
	currencyBefore = regexp.MustCompile(`(?:` + currencies + `)\s*` + number)
	currencyAfter  = regexp.MustCompile(number + `\s*(?:` + currencies + `)\b`)
	trailingAmount = regexp.MustCompile(`\s` + `-?\d{1,3}(?:,\d{3})*\.\d{2}$`)
	parenthetical  = regexp.MustCompile(`\([^()]*\d[^()]*\)`)
	whitespace     = regexp.MustCompile(`\s+`)
)

const edgePunctuation = " -:;,./*#"

// Description uppercases s, strips currency amounts and parenthetical quantities,
// collapses whitespace, and trims edge punctuation. The result is a fixpoint:
// Description(Description(s)) == Description(s).
func Description(s string) string {
	for {
		next := pass(s)
		if next == s {
			return next
		}
		s = next
	}
}

func pass(s string) string {
	s = strings.ToUpper(s)
	s = currencyBefore.ReplaceAllString(s, " ")
	s = currencyAfter.ReplaceAllString(s, " ")
	s = parenthetical.ReplaceAllString(s, " ")
	s = trailingAmount.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, edgePunctuation)
}
