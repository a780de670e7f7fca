// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"context"
	"time"

	"github.com/gogama/reqx/request"
)

// A Result is the outcome of a retry evaluation. The zero value,
// DoNotRetry, means give up.
type Result struct {
	// Retry is true if the request should be attempted again.
	Retry bool
	// Delay is how long to wait before the next attempt. It is only
	// meaningful when Retry is true.
	Delay time.Duration
}

// DoNotRetry is the Result that ends the request with its current
// error.
var DoNotRetry = Result{}

// RetryAfter returns a Result requesting a retry after delay d.
func RetryAfter(d time.Duration) Result {
	return Result{Retry: true, Delay: d}
}

// A Policy controls if and how retries are done in an HTTP request
// plan execution. After every failed attempt, the request consults its
// Policy, which decides whether a retry should be done and, if so, how
// long the delay before retrying should be.
//
// The request only consults the Policy when e.Err is non-nil. Retry is
// called from the request's own goroutine, so a Policy may block, for
// example to consult an external service, and should honor ctx, which
// is cancelled if the request is cancelled. A non-nil error means the
// policy itself failed; the request then ends with a
// reqerr.RequestRetryFailed error that carries both the policy error and
// the original request error.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	Retry(ctx context.Context, e *request.Execution) (Result, error)
}

// The PolicyFunc type is an adapter to allow the use of ordinary
// functions as retry policies.
type PolicyFunc func(ctx context.Context, e *request.Execution) (Result, error)

// Retry calls f(ctx, e).
func (f PolicyFunc) Retry(ctx context.Context, e *request.Execution) (Result, error) {
	return f(ctx, e)
}

// DefaultPolicy is a general-purpose retry policy suitable for common
// use cases. It is DefaultConfig.Policy().
var DefaultPolicy = DefaultConfig.Policy()

// ConnectionLostPolicy retries only when the connection was lost
// mid-request (transient.ConnReset). Otherwise it behaves like
// DefaultPolicy.
var ConnectionLostPolicy = ConnectionLostConfig.Policy()

// Never is a policy that never retries. It is useful if you want to use
// the other features of reqx.Session but do not want retries.
var Never Policy = PolicyFunc(func(_ context.Context, _ *request.Execution) (Result, error) {
	return DoNotRetry, nil
})

type policy struct {
	decider Decider
	waiter  Waiter
}

// NewPolicy composes a Decider and a Waiter into a retry Policy. The
// returned policy never fails: it retries after w.Wait(e) whenever
// d.Decide(e) is true.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil {
		panic("reqx/retry: nil decider")
	}
	if w == nil {
		panic("reqx/retry: nil waiter")
	}
	return policy{decider: d, waiter: w}
}

func (p policy) Retry(_ context.Context, e *request.Execution) (Result, error) {
	if !p.decider.Decide(e) {
		return DoNotRetry, nil
	}
	return RetryAfter(p.waiter.Wait(e)), nil
}
