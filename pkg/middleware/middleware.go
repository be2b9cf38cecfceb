// Package middleware provides an ordered HTTP middleware stack and the
// request logging and panic recovery middleware used by every module.
package middleware

import "net/http"

// Func wraps an http.Handler with additional behavior.
type Func func(http.Handler) http.Handler

// System manages an ordered stack of HTTP middleware.
type System interface {
	Use(mw Func)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	fns []Func
}

// New creates a middleware System. The first middleware added is the outermost.
func New(fns ...Func) System {
	return &stack{fns: fns}
}

func (s *stack) Use(fn Func) {
	s.fns = append(s.fns, fn)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.fns) - 1; i >= 0; i-- {
		handler = s.fns[i](handler)
	}
	return handler
}
