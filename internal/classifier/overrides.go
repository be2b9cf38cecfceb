package classifier

import "regexp"

// override forces a category whenever its pattern appears in a normalized
// description, regardless of what the raw rule match produced.
type override struct {
	pattern  *regexp.Regexp
	category string
}

var overrides = []override{
	{regexp.MustCompile(`TERMINAL HANDLING`), "THC"},
	{regexp.MustCompile(`CLEANING`), "CLEANING_AT_ORIGIN"},
	{regexp.MustCompile(`(?:^|[^A-Z])D/O(?:[^A-Z]|$)|DELIVERY ORDER`), "DELIVERY"},
}

func applyOverride(normalized string) (string, bool) {
	for _, o := range overrides {
		if o.pattern.MatchString(normalized) {
			return o.category, true
		}
	}
	return "", false
}
