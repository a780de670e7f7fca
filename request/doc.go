// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request defines what a request is made of before, during and
after it runs.

A Plan is the immutable description of one logical request: method, URL,
headers and a body that can be replayed on every attempt. The body comes
from exactly one source, a []byte (Body), a file (BodyFile) or an opener
(BodyStream):

	p, err := request.NewPlan("PUT", "https://example.com/items/1", item)
	if err != nil {
		return err
	}
	r := session.Request(p).Resume()

NewPlan accepts nil, a string, a []byte or an io.Reader as body. A
reader is drained at construction and closed if it is an io.Closer.

The context given to NewPlanWithContext bounds the whole request,
retries and waits included. That is distinct from the per-attempt
deadline chosen by the session's timeout.Policy: an attempt that hits
its own deadline may be retried, but once the plan's context is done the
request finishes.

An Execution is the running state of a plan: the current attempt, the
last response and error, byte counts and lifecycle State. Sessions create
executions and pass copies to timeout policies, retry policies, event
handlers and response handlers, so callers rarely build one themselves.
*/
package request
