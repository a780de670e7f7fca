// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"mime"
	"strconv"
	"strings"

	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
)

// Reasons reported by validators with kind
// reqerr.ResponseValidationFailed.
const (
	// ReasonUnacceptableStatusCode means the response status code was
	// not acceptable. The error carries the status code.
	ReasonUnacceptableStatusCode reqerr.Reason = "unacceptableStatusCode"
	// ReasonUnacceptableContentType means the response media type was
	// not acceptable.
	ReasonUnacceptableContentType reqerr.Reason = "unacceptableContentType"
	// ReasonMissingContentType means a non-empty response had no
	// Content-Type header.
	ReasonMissingContentType reqerr.Reason = "missingContentType"
	// ReasonCustomValidationFailed means a validator returned an error
	// which was not already a *reqerr.Error.
	ReasonCustomValidationFailed reqerr.Reason = "customValidationFailed"
)

// A Validator checks a received response before the request decides
// whether to retry. It is called on the request's goroutine after the
// body has been read, and only for attempts that received a response
// without error.
//
// A non-nil error fails the attempt. Errors which are not a
// *reqerr.Error are wrapped with kind reqerr.ResponseValidationFailed.
type Validator interface {
	Validate(e *request.Execution) error
}

// The ValidatorFunc type is an adapter to allow the use of ordinary
// functions as validators.
type ValidatorFunc func(e *request.Execution) error

// Validate calls f(e).
func (f ValidatorFunc) Validate(e *request.Execution) error {
	return f(e)
}

var defaultValidators = []Validator{
	AcceptableStatusRange(200, 299),
	ValidatorFunc(acceptHeader),
}

// AcceptableStatusCodes constructs a validator that accepts only the
// listed status codes.
func AcceptableStatusCodes(codes ...int) Validator {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return ValidatorFunc(func(e *request.Execution) error {
		if code := e.StatusCode(); !set[code] {
			return unacceptableStatus(code)
		}
		return nil
	})
}

// AcceptableStatusRange constructs a validator that accepts status codes
// from lo to hi inclusive.
func AcceptableStatusRange(lo, hi int) Validator {
	if lo > hi {
		panic("reqx: invalid status range")
	}
	return ValidatorFunc(func(e *request.Execution) error {
		if code := e.StatusCode(); code < lo || code > hi {
			return unacceptableStatus(code)
		}
		return nil
	})
}

// AcceptableContentTypes constructs a validator that accepts responses
// whose media type matches one of types. Each type may be a full media
// type ("application/json"), a wildcard subtype ("text/*") or "*/*".
// Parameters are ignored.
//
// A response with an empty body is always acceptable.
func AcceptableContentTypes(types ...string) Validator {
	acceptable := make([]string, 0, len(types))
	for _, t := range types {
		if mt := mediaType(t); mt != "" {
			acceptable = append(acceptable, mt)
		}
	}
	return ValidatorFunc(func(e *request.Execution) error {
		return validateContentType(e, acceptable)
	})
}

func acceptHeader(e *request.Execution) error {
	accept := "*/*"
	if e.Request != nil {
		if h := e.Request.Header.Values("Accept"); len(h) > 0 {
			accept = strings.Join(h, ",")
		}
	}
	var acceptable []string
	for _, t := range strings.Split(accept, ",") {
		if mt := mediaType(t); mt != "" {
			acceptable = append(acceptable, mt)
		}
	}
	return validateContentType(e, acceptable)
}

func validateContentType(e *request.Execution, acceptable []string) error {
	if len(e.Body) == 0 && e.BytesReceived == 0 {
		return nil
	}
	for _, a := range acceptable {
		if a == "*/*" {
			return nil
		}
	}

	ct := e.Header().Get("Content-Type")
	if ct == "" {
		return reqerr.New(reqerr.ResponseValidationFailed, ReasonMissingContentType,
			"acceptable: %s", strings.Join(acceptable, ", "))
	}
	mt := mediaType(ct)
	for _, a := range acceptable {
		if matchMediaType(a, mt) {
			return nil
		}
	}
	return reqerr.New(reqerr.ResponseValidationFailed, ReasonUnacceptableContentType,
		"%q not in [%s]", mt, strings.Join(acceptable, ", "))
}

func unacceptableStatus(code int) error {
	return &reqerr.Error{
		Kind:       reqerr.ResponseValidationFailed,
		Reason:     ReasonUnacceptableStatusCode,
		Message:    strconv.Itoa(code),
		StatusCode: code,
	}
}

// mediaType returns the lower-case type/subtype of s, without
// parameters, or "" if s is not a media type.
func mediaType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			s = s[:i]
		}
		mt = strings.ToLower(strings.TrimSpace(s))
	}
	if strings.Count(mt, "/") != 1 {
		return ""
	}
	return mt
}

func matchMediaType(pattern, mt string) bool {
	if pattern == mt {
		return true
	}
	pt, ps, _ := strings.Cut(pattern, "/")
	mtt, _, _ := strings.Cut(mt, "/")
	return ps == "*" && pt == mtt
}
