// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math"
	"math/bits"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gogama/reqx/request"
)

// A Waiter decides how long to wait before the retry that follows the
// attempt described by e. Policies built with NewPolicy only call it
// once their Decider has agreed to retry.
//
// Implementations must be safe for concurrent use.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// WaiterFunc adapts an ordinary function to the Waiter interface.
type WaiterFunc func(e *request.Execution) time.Duration

// Wait calls f(e).
func (f WaiterFunc) Wait(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultWaiter waits DefaultScale * DefaultBase**attempt without
// jitter: 0.5s, 1s, 2s and so on.
var DefaultWaiter = NewScaledWaiter(DefaultScale, DefaultBase)

// NewFixedWaiter returns a Waiter that always waits d.
func NewFixedWaiter(d time.Duration) Waiter {
	return WaiterFunc(func(*request.Execution) time.Duration {
		return d
	})
}

// NewScaledWaiter returns a deterministic exponential Waiter. After
// attempt n (zero-based) it waits
//
//	scale * base**n
//
// clamped to the largest time.Duration. Scale must be non-negative and
// base a finite number of at least 1.
func NewScaledWaiter(scale time.Duration, base float64) Waiter {
	if scale < 0 {
		panic("reqx/retry: scale must be non-negative")
	}
	if base < 1 || math.IsNaN(base) || math.IsInf(base, 0) {
		panic("reqx/retry: base must be at least 1")
	}
	return WaiterFunc(func(e *request.Execution) time.Duration {
		return scaledDelay(scale, base, e.Attempt)
	})
}

func scaledDelay(scale time.Duration, base float64, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(scale) * math.Pow(base, float64(attempt))
	if d >= math.MaxInt64 || math.IsInf(d, 0) {
		return math.MaxInt64
	}
	return time.Duration(d)
}

// NewExpWaiter returns a "full jitter" exponential Waiter. After attempt
// n it computes
//
//	ceil := min(base * 2**n, max)
//
// and waits a random duration in [0, ceil). Base must be positive and
// max at least base.
//
// With a nil jitter the waiter does not randomize and waits ceil.
// Otherwise jitter seeds the random source: a time.Time, int or int64
// seed, a rand.Source, or a *rand.Rand.
func NewExpWaiter(base, max time.Duration, jitter interface{}) Waiter {
	if base <= 0 {
		panic("reqx/retry: base must be positive")
	}
	if max < base {
		panic("reqx/retry: max must be at least base")
	}
	return &expWaiter{base: base, max: max, rand: jitterRand(jitter)}
}

type expWaiter struct {
	base time.Duration
	max  time.Duration
	mu   sync.Mutex
	rand *rand.Rand
}

func (w *expWaiter) Wait(e *request.Execution) time.Duration {
	ceil := w.ceil(e.Attempt)
	if w.rand == nil || ceil <= 0 {
		return ceil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.rand.Int63n(int64(ceil)))
}

func (w *expWaiter) ceil(attempt int) time.Duration {
	if attempt <= 0 {
		return w.base
	}
	// Shifting past the leading zeros of base overflows.
	if attempt >= bits.LeadingZeros64(uint64(w.base)) {
		return w.max
	}
	if d := w.base << uint(attempt); d < w.max {
		return d
	}
	return w.max
}

func jitterRand(jitter interface{}) *rand.Rand {
	switch j := jitter.(type) {
	case nil:
		return nil
	case time.Time:
		return rand.New(rand.NewSource(j.UnixNano()))
	case int:
		return rand.New(rand.NewSource(int64(j)))
	case int64:
		return rand.New(rand.NewSource(j))
	case *rand.Rand:
		if j == nil {
			panic("reqx/retry: jitter may not be a typed nil")
		}
		return j
	case rand.Source:
		return rand.New(j)
	default:
		panic("reqx/retry: invalid jitter type")
	}
}

// NewHeaderWaiter returns a Waiter that obeys the Retry-After header of
// a 429 or 503 response, capped at max, and otherwise defers to
// fallback. Retry-After may give a number of seconds or an HTTP date.
func NewHeaderWaiter(fallback Waiter, max time.Duration) Waiter {
	if fallback == nil {
		panic("reqx/retry: nil fallback waiter")
	}
	return WaiterFunc(func(e *request.Execution) time.Duration {
		if d, ok := retryAfter(e, time.Now()); ok {
			if d > max {
				return max
			}
			return d
		}
		return fallback.Wait(e)
	})
}

func retryAfter(e *request.Execution, now time.Time) (time.Duration, bool) {
	switch e.StatusCode() {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return 0, false
	}
	v := strings.TrimSpace(e.Header().Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > int64(math.MaxInt64/time.Second) {
			return math.MaxInt64, true
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
