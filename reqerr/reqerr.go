// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package reqerr defines the closed set of error kinds reported by the
// reqx packages, and the Error type that carries them.
//
// Every error produced by reqx for a failed request, encoding, trust
// evaluation or serialization is an *Error (possibly wrapped in a
// *url.Error). The Kind says which stage failed, the Reason says why, and
// the wrapped Err (and, for retry failures, Original) keep the root cause
// reachable through errors.Is and errors.As.
package reqerr

import (
	"errors"
	"fmt"
)

// A Kind identifies the stage of request processing that failed.
type Kind string

const (
	// InvalidURL indicates a request URL could not be parsed.
	InvalidURL Kind = "invalidURL"
	// ParameterEncodingFailed indicates form or JSON parameter encoding
	// failed.
	ParameterEncodingFailed Kind = "parameterEncodingFailed"
	// MultipartEncodingFailed indicates multipart form encoding failed.
	MultipartEncodingFailed Kind = "multipartEncodingFailed"
	// ResponseValidationFailed indicates a validator rejected the
	// response.
	ResponseValidationFailed Kind = "responseValidationFailed"
	// ResponseSerializationFailed indicates a response serializer could
	// not produce a value.
	ResponseSerializationFailed Kind = "responseSerializationFailed"
	// ServerTrustEvaluationFailed indicates the server certificate chain
	// was rejected.
	ServerTrustEvaluationFailed Kind = "serverTrustEvaluationFailed"
	// RequestRetryFailed indicates the retry policy itself failed. Both
	// the policy error and the original request error are retained.
	RequestRetryFailed Kind = "requestRetryFailed"
	// ExplicitlyCancelled indicates the request was cancelled by the
	// caller.
	ExplicitlyCancelled Kind = "explicitlyCancelled"
	// SessionInvalidated indicates the owning session was invalidated.
	SessionInvalidated Kind = "sessionInvalidated"
	// URLRequestValidationFailed indicates the request itself was
	// malformed, for example a GET with a body.
	URLRequestValidationFailed Kind = "urlRequestValidationFailed"
)

// A Reason is a kind-specific detail code. Each reqx package declares
// the reasons it reports.
type Reason string

// Error is the error type of the reqx packages.
type Error struct {
	// Kind is the failed stage. It is never empty.
	Kind Kind
	// Reason is the kind-specific detail code. It may be empty.
	Reason Reason
	// Message is a human readable detail message. It may be empty.
	Message string
	// StatusCode is the HTTP status code the error relates to, or zero.
	StatusCode int
	// Err is the underlying cause, if any. For RequestRetryFailed it is
	// the error returned by the retry policy.
	Err error
	// Original is the request error that triggered a failed retry
	// evaluation. It is only set for RequestRetryFailed.
	Original error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	s := string(e.Kind)
	if e.Reason != "" {
		s += "(" + string(e.Reason) + ")"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.Original != nil {
		s += " (original error: " + e.Original.Error() + ")"
	}
	return s
}

// Unwrap returns the underlying causes so that errors.Is and errors.As
// search both the policy error and the original error of a
// RequestRetryFailed.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}

	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Original != nil {
		errs = append(errs, e.Original)
	}
	return errs
}

// New creates an error of the given kind and reason with an optional
// formatted message.
func New(kind Kind, reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message(format, args)}
}

// Wrap annotates err with a kind and reason. It returns nil when err is
// nil.
func Wrap(kind Kind, reason Reason, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Reason: reason, Message: message(format, args), Err: err}
}

// RetryFailed builds the RequestRetryFailed error that surfaces both the
// retry policy's error and the request error it was evaluating.
func RetryFailed(retryErr, original error) *Error {
	return &Error{Kind: RequestRetryFailed, Err: retryErr, Original: original}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or the
// empty Kind if there is none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain, or the
// empty Reason if there is none.
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// StatusCodeOf returns the HTTP status code carried by the first *Error
// in err's chain, or zero.
func StatusCodeOf(err error) int {
	if e, ok := As(err); ok {
		return e.StatusCode
	}
	return 0
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}

	var found bool
	walk(err, func(e *Error) bool {
		found = e.Kind == kind
		return found
	})
	return found
}

func walk(err error, visit func(*Error) bool) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && e != nil && visit(e) {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if walk(inner, visit) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return walk(x.Unwrap(), visit)
	}
	return false
}

func message(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
