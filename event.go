// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import "strconv"

// An Event names a point in a request's life at which the handlers of
// its session's HandlerGroup run. Handlers run on the request's own
// goroutine with no lock held, and receive the live Execution.
//
// Events fire in declaration order: BeforeExecutionStart once, then
// for each attempt BeforeAttempt, BeforeReadBody (only when a response
// arrived), AfterAttemptTimeout (only on a timeout) and AfterAttempt,
// then AfterPlanTimeout if the plan's deadline passed, and finally
// AfterExecutionEnd once.
type Event int

const (
	// BeforeExecutionStart fires when the request first runs. Only the
	// execution's Plan is set.
	BeforeExecutionStart Event = iota

	// BeforeAttempt fires once the attempt's http.Request is built and
	// before it is sent. Handlers may change the request, cloning its
	// URL and Header first since they are shared with the plan. For a
	// resumed download the Range headers are already present.
	BeforeAttempt

	// BeforeReadBody fires when a response arrives, whatever its
	// status, and before its body is read into memory or a download
	// file.
	BeforeReadBody

	// AfterAttemptTimeout fires when an attempt ended in a timeout,
	// after AttemptTimeouts has been incremented.
	AfterAttemptTimeout

	// AfterAttempt fires at the end of every attempt, after the
	// validators ran and before the retry policy is consulted. At least
	// one of Response and Err is set.
	AfterAttempt

	// AfterPlanTimeout fires when the deadline of the plan's context
	// passed, whether during an attempt or a retry wait. It follows the
	// last AfterAttempt.
	AfterPlanTimeout

	// AfterExecutionEnd fires exactly once, when End is set and Err is
	// final, before any response handler runs.
	AfterExecutionEnd

	eventSentinel

	numEvents = int(eventSentinel)
)

var eventNames = [numEvents]string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"BeforeReadBody",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns every event in firing order.
func Events() []Event {
	events := make([]Event, numEvents)
	for i := range events {
		events[i] = Event(i)
	}
	return events
}

// Name returns the event's name, or "Event(n)" for a value that is not
// an event.
func (evt Event) Name() string {
	if evt < 0 || evt >= eventSentinel {
		return "Event(" + strconv.Itoa(int(evt)) + ")"
	}
	return eventNames[evt]
}

func (evt Event) String() string {
	return evt.Name()
}
