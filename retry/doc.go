// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies for retrying failed attempts during an
// HTTP request plan execution, and how long to wait before retrying.
//
// The interface Policy defines a retry Policy. The simplest way to get
// one is from a Config, which expresses the common rule "retry
// idempotent requests that failed with a retryable status code or a
// transient transport error, with exponential backoff":
//
//	policy := retry.Config{
//		Limit:       4,
//		Base:        2,
//		Scale:       500 * time.Millisecond,
//		Methods:     retry.DefaultMethods,
//		StatusCodes: retry.DefaultStatusCodes,
//		Categories:  transient.TransientCategories(),
//	}.Policy()
//
// Finer control is available by composing a decision-maker, Decider,
// with a wait time calculator, Waiter, using NewPolicy:
//
//	decider := retry.Times(3).
//		And(retry.Before(5 * time.Second)).
//		And(retry.StatusCode(500).Or(retry.TransientErr))
//	waiter := retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, time.Now())
//	policy := retry.NewPolicy(decider, waiter)
//
// To let throttling servers set the pace, wrap the waiter with
// NewHeaderWaiter, which obeys a Retry-After header on 429 and 503
// responses.
//
// If the built-in functionality is insufficient, fully custom retry
// policies can be written with PolicyFunc.
package retry
