// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/transient"
)

const (
	// DefaultLimit is the number of retries DefaultPolicy allows.
	DefaultLimit = 2
	// DefaultBase is the exponential base of DefaultPolicy's backoff.
	DefaultBase = 2.0
	// DefaultScale is the delay before DefaultPolicy's first retry.
	DefaultScale = 500 * time.Millisecond
)

// DefaultMethods are the idempotent HTTP methods eligible for retry.
var DefaultMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
}

// DefaultStatusCodes are the HTTP status codes eligible for retry.
var DefaultStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultConfig is the configuration of DefaultPolicy. Its Categories
// are every transient category known to package transient.
var DefaultConfig = Config{
	Limit:       DefaultLimit,
	Base:        DefaultBase,
	Scale:       DefaultScale,
	Methods:     DefaultMethods,
	StatusCodes: DefaultStatusCodes,
	Categories:  transient.TransientCategories(),
}

// ConnectionLostConfig is DefaultConfig restricted to retrying lost
// connections.
var ConnectionLostConfig = Config{
	Limit:       DefaultLimit,
	Base:        DefaultBase,
	Scale:       DefaultScale,
	Methods:     DefaultMethods,
	StatusCodes: DefaultStatusCodes,
	Categories:  []transient.Category{transient.ConnReset},
}

// Config describes a deterministic retry policy driven by the attempt
// count, the request method, the status code carried by the error and
// the transport category of the error.
//
// A request is eligible for retry when, in this order:
//
//  1. its zero-based attempt number is less than Limit;
//  2. its method is one of Methods;
//  3. the status code carried by the error is one of StatusCodes, or,
//     failing that, the transport category of the error is one of
//     Categories.
//
// The delay before the retry following attempt n is Scale * Base**n.
//
// A Config is a value; the Policy built from it copies the slices and
// holds no other state, so two evaluations of the same execution always
// produce the same result.
type Config struct {
	Limit       int
	Base        float64
	Scale       time.Duration
	Methods     []string
	StatusCodes []int
	Categories  []transient.Category
}

// Policy builds the retry policy described by c.
//
// Policy panics if Base is less than 1 or not finite, or Scale is
// negative.
func (c Config) Policy() Policy {
	if c.Scale < 0 {
		panic("reqx/retry: scale must be non-negative")
	}
	if c.Base < 1 || math.IsNaN(c.Base) || math.IsInf(c.Base, 0) {
		panic("reqx/retry: base must be at least 1")
	}
	return configPolicy{
		limit:    c.Limit,
		base:     c.Base,
		scale:    c.Scale,
		methods:  Methods(c.Methods...),
		status:   StatusCode(c.StatusCodes...),
		category: ErrorCategory(c.Categories...),
	}
}

type configPolicy struct {
	limit    int
	base     float64
	scale    time.Duration
	methods  DeciderFunc
	status   DeciderFunc
	category DeciderFunc
}

func (p configPolicy) Retry(_ context.Context, e *request.Execution) (Result, error) {
	if e.Attempt >= p.limit {
		return DoNotRetry, nil
	}
	if !p.methods(e) {
		return DoNotRetry, nil
	}
	if !p.status(e) && !p.category(e) {
		return DoNotRetry, nil
	}
	return RetryAfter(scaledDelay(p.scale, p.base, e.Attempt)), nil
}
