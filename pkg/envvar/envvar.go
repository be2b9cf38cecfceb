// Package envvar applies environment variable overrides onto configuration fields.
// Every helper is a no-op when the variable name is empty, the variable is unset,
// or its value cannot be parsed into the destination type.
package envvar

import (
	"os"
	"strconv"
	"strings"
)

// String overwrites dst with the value of the named variable.
func String(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// Int overwrites dst with the integer value of the named variable.
func Int(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Float overwrites dst with the floating point value of the named variable.
func Float(dst *float64, name string) {
	if v, ok := lookup(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Bool overwrites dst with the boolean value of the named variable.
func Bool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// List overwrites dst with the comma-separated values of the named variable.
func List(dst *[]string, name string) {
	v, ok := lookup(name)
	if !ok {
		return
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v := os.Getenv(name)
	if v == "" {
		return "", false
	}
	return v, true
}
