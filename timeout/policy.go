// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"time"

	"github.com/gogama/reqx/request"
)

// A Policy gives the deadline of each attempt a reqx.Request makes,
// the first attempt and every retry alike.
//
// The deadline covers the whole attempt: connecting, sending, and
// receiving headers and body. Time spent suspended counts towards it.
// Policies must be safe for concurrent use.
type Policy interface {
	// Timeout returns the deadline for the attempt about to start. The
	// execution still describes the previous attempt, if any.
	Timeout(e *request.Execution) time.Duration
}

// PolicyFunc adapts an ordinary function to the Policy interface.
type PolicyFunc func(e *request.Execution) time.Duration

// Timeout calls f(e).
func (f PolicyFunc) Timeout(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultPolicy gives every attempt 60 seconds.
var DefaultPolicy Policy = Fixed(60 * time.Second)

// Infinite never times out. It suits large downloads whose duration
// cannot be bounded in advance.
var Infinite Policy = Fixed(math.MaxInt64)

// Fixed gives every attempt the timeout d.
func Fixed(d time.Duration) Policy {
	return adaptive{d}
}

// Adaptive lengthens the timeout after attempts that timed out.
//
// An attempt whose predecessor did not time out gets usual. After the
// k-th timeout of the request (counting from one), the next attempt
// gets after[k-1], or the last element of after once k exceeds its
// length. So with
//
//	p := Adaptive(200*time.Millisecond, time.Second, 10*time.Second)
//
// the first timeout is followed by a 1s attempt and any later timeout
// by a 10s attempt, while other retries go back to 200ms.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make(adaptive, 0, 1+len(after))
	return append(append(p, usual), after...)
}

type adaptive []time.Duration

func (p adaptive) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}
	return p[clamp(e.AttemptTimeouts, len(p))]
}

// PerAttempt indexes timeouts by attempt number, whatever ended the
// earlier attempts. Attempt n gets ds[n], and attempts past the end of
// ds get its last element.
//
// PerAttempt panics if ds is empty.
func PerAttempt(ds ...time.Duration) Policy {
	if len(ds) == 0 {
		panic("reqx/timeout: no durations")
	}
	return append(perAttempt(nil), ds...)
}

type perAttempt []time.Duration

func (p perAttempt) Timeout(e *request.Execution) time.Duration {
	return p[clamp(e.Attempt, len(p))]
}

func clamp(i, n int) int {
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	default:
		return i
	}
}
