// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"github.com/gogama/reqx/request"
)

// A Handler observes, and may adjust, a request at one of its Events.
type Handler interface {
	Handle(Event, *request.Execution)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}

// A HandlerGroup holds one handler chain per Event. The zero value is
// an empty group ready to use.
//
// Finish adding handlers before any session uses the group. After that
// the group is read-only and may be shared by any number of sessions.
type HandlerGroup struct {
	chains [numEvents][]Handler
}

// PushBack appends h to the chain for evt, so it runs after the
// handlers already there.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	checkHandler(evt, h)
	g.chains[evt] = append(g.chains[evt], h)
}

// PushFront prepends h to the chain for evt, so it runs before the
// handlers already there.
func (g *HandlerGroup) PushFront(evt Event, h Handler) {
	checkHandler(evt, h)
	chain := make([]Handler, 0, len(g.chains[evt])+1)
	g.chains[evt] = append(append(chain, h), g.chains[evt]...)
}

// Len returns the number of handlers in the chain for evt.
func (g *HandlerGroup) Len(evt Event) int {
	if g == nil || evt < 0 || evt >= eventSentinel {
		return 0
	}
	return len(g.chains[evt])
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	if g == nil {
		return
	}
	for _, h := range g.chains[evt] {
		h.Handle(evt, e)
	}
}

func checkHandler(evt Event, h Handler) {
	if evt < 0 || evt >= eventSentinel {
		panic("reqx: invalid event")
	}
	if h == nil {
		panic("reqx: nil handler")
	}
}
