// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// A State is a step in the user-visible lifecycle of a request.
//
//	Initialized → Resumed ↔ Suspended → Cancelled → Finished
//
// Cancelled and Finished are terminal from the caller's point of view:
// once a request reaches either, no further resume or suspend has any
// effect. A cancelled request still moves to Finished when its
// completion handlers have run.
type State int

const (
	// Initialized is the state of a newly created request.
	Initialized State = iota
	// Resumed means the request is running or ready to run.
	Resumed
	// Suspended means the request is paused. An in-flight response body
	// stops being read until the request is resumed.
	Suspended
	// Cancelled means the request was cancelled and is finishing.
	Cancelled
	// Finished means the request is complete and its completion handlers
	// have been run.
	Finished
)

var stateNames = [...]string{
	Initialized: "initialized",
	Resumed:     "resumed",
	Suspended:   "suspended",
	Cancelled:   "cancelled",
	Finished:    "finished",
}

func (s State) String() string {
	if s < Initialized || s > Finished {
		return "unknown"
	}
	return stateNames[s]
}

// CanTransitionTo reports whether a request in state s may move to
// state to. Callers that attempt any other transition are ignored.
func (s State) CanTransitionTo(to State) bool {
	if s == to {
		return false
	}
	switch s {
	case Initialized:
		return to >= Resumed && to <= Finished
	case Resumed:
		return to == Suspended || to == Cancelled || to == Finished
	case Suspended:
		return to == Resumed || to == Cancelled || to == Finished
	case Cancelled:
		return to == Finished
	default:
		return false
	}
}

// Terminal reports whether s is Cancelled or Finished.
func (s State) Terminal() bool {
	return s == Cancelled || s == Finished
}
