// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/transient"
)

// An Execution is the observable state of one request: its plan, the
// attempt in flight or last made, and what came back.
//
// The request updates its Execution as it moves through attempts and
// hands copies to event handlers, policies and response handlers.
// Those readers must not modify the exported fields, with two
// exceptions: a BeforeAttempt handler may adjust Request (to sign it,
// say) and an AfterAttempt handler may rewrite Body (to decompress it).
// Per-execution data belongs in SetValue.
type Execution struct {
	// Plan is the request plan being executed. It is never nil.
	Plan *Plan

	// Start is when the request began running. It is zero until the
	// request is first resumed.
	Start time.Time

	// End is when the request finished. It is zero until then.
	End time.Time

	// Attempt is the zero-based number of the current or last attempt.
	// A request that finishes after two retries has Attempt 2.
	Attempt int

	// AttemptTimeouts counts the attempts that ended because the
	// timeout policy's deadline passed. Plan timeouts are not counted.
	AttemptTimeouts int

	// Request is the HTTP request of the current or last attempt.
	Request *http.Request

	// Response is the HTTP response of the last attempt, or nil if that
	// attempt failed before headers arrived or an attempt is underway.
	Response *http.Response

	// Err is the error of the last attempt, nil if it succeeded. It is
	// either a *url.Error wrapping a transport failure or an error
	// whose chain holds a *reqerr.Error naming the failed stage. Once
	// the request has finished, Err is the error response handlers
	// receive.
	Err error

	// Body is the response body of the last attempt. Both Body and Err
	// may be set when a body read failed part way. Downloads leave Body
	// nil and stream to DownloadPath instead.
	Body []byte

	// State is the request's lifecycle state when the execution was
	// observed. Response handlers always see Finished.
	State State

	// BytesReceived counts the response body bytes received in the last
	// attempt. For a resumed download it includes the bytes received
	// before the interruption.
	BytesReceived int64

	// DownloadPath is the file holding the response body of a download.
	// After a successful download it is the destination path.
	DownloadPath string

	data context.Context
}

// StatusCode returns the status code of the last response, or 0 if
// there is none.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Header returns the header of the last response. It is nil, and safe
// to read, if there is no response.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		return nil
	}
	return e.Response.Header
}

// ContentLength returns the total size of the entity being received,
// or -1 if it is unknown. For a 206 response the size comes from the
// Content-Range header, so a resumed download reports the size of the
// whole file.
func (e *Execution) ContentLength() int64 {
	if e.Response == nil {
		return -1
	}
	if e.Response.StatusCode == http.StatusPartialContent {
		cr := e.Response.Header.Get("Content-Range")
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil && n >= 0 {
				return n
			}
		}
		return -1
	}
	return e.Response.ContentLength
}

// Progress returns the fraction of the response body received so far,
// between 0 and 1, or -1 if the total size is unknown.
func (e *Execution) Progress() float64 {
	n := e.ContentLength()
	switch {
	case n < 0:
		return -1
	case n == 0 || e.BytesReceived >= n:
		return 1
	default:
		return float64(e.BytesReceived) / float64(n)
	}
}

// Duration returns how long the request has been running: zero before
// Start, End minus Start once ended, and the time since Start otherwise.
func (e *Execution) Duration() time.Duration {
	switch {
	case !e.Started():
		return 0
	case !e.Ended():
		return time.Since(e.Start)
	default:
		return e.End.Sub(e.Start)
	}
}

// Started reports whether Start is set.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended reports whether End is set. An ended execution does not change.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// Timeout reports whether Err is a timeout, whether from an attempt
// deadline, the plan deadline or the network.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// Cancelled reports whether Err says the request was cancelled, either
// explicitly or because its session was invalidated.
func (e *Execution) Cancelled() bool {
	return reqerr.Is(e.Err, reqerr.ExplicitlyCancelled) || reqerr.Is(e.Err, reqerr.SessionInvalidated)
}

// SetValue stores value under key. Keys follow the context.WithValue
// rules: comparable, non-nil, and preferably of an unexported type.
//
// Values form an immutable chain, so copies of an Execution taken
// before SetValue do not see the new value.
func (e *Execution) SetValue(key, value interface{}) {
	parent := e.data
	if parent == nil {
		parent = context.Background()
	}
	e.data = context.WithValue(parent, key, value)
}

// Value returns the value stored under key, or nil.
func (e *Execution) Value(key interface{}) interface{} {
	if e.data == nil {
		return nil
	}
	return e.data.Value(key)
}
