// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"strings"
	"time"

	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/transient"
)

// A Decider reports whether the attempt described by e should be
// retried. It must be safe for concurrent use.
//
// Deciders are usually built by combining the DeciderFunc values
// returned by Times, Before, StatusCode, Methods and ErrorCategory with
// TransientErr, using And and Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// DeciderFunc adapts an ordinary function to the Decider interface and
// adds logical composition.
type DeciderFunc func(e *request.Execution) bool

// TransientErr retries when the attempt's error is in a transient
// category (see transient.Categorize). It never retries an attempt that
// produced no error.
var TransientErr DeciderFunc = transientErr

// Decide calls f(e).
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And returns a decider that is true when both f and g are. g is not
// called if f is false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or returns a decider that is true when f or g is. g is not called if
// f is true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times allows n retries: it is true while e.Attempt < n.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before allows retries while the request has been running for less
// than d.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode allows retries when the attempt's status code is one of
// codes. A status code carried by a validation error takes precedence
// over the response's.
func StatusCode(codes ...int) DeciderFunc {
	set := toSet(codes)
	return func(e *request.Execution) bool {
		_, ok := set[statusCode(e)]
		return ok
	}
}

// Methods allows retries of requests whose method is one of methods.
// Methods are case-sensitive and an empty plan method counts as GET.
func Methods(methods ...string) DeciderFunc {
	set := toSet(methods)
	return func(e *request.Execution) bool {
		_, ok := set[method(e)]
		return ok
	}
}

// ErrorCategory allows retries when the attempt failed with an error in
// one of categories.
func ErrorCategory(categories ...transient.Category) DeciderFunc {
	set := toSet(categories)
	return func(e *request.Execution) bool {
		if e.Err == nil {
			return false
		}
		_, ok := set[transient.Categorize(e.Err)]
		return ok
	}
}

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func transientErr(e *request.Execution) bool {
	return transient.Categorize(e.Err).Transient()
}

func statusCode(e *request.Execution) int {
	if s := reqerr.StatusCodeOf(e.Err); s != 0 {
		return s
	}
	return e.StatusCode()
}

func method(e *request.Execution) string {
	var m string
	if e.Plan != nil {
		m = e.Plan.Method
	} else if e.Request != nil {
		m = e.Request.Method
	}
	if m == "" {
		return http.MethodGet
	}
	return strings.TrimSpace(m)
}
