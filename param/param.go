// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package param applies request parameters to a request.Plan, either as
// a URL-encoded form or as a JSON document.
package param

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gogama/reqx/form"
	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
)

// Reasons reported with kind reqerr.ParameterEncodingFailed, in addition
// to the reasons of package form.
const (
	// ReasonMissingURL means the plan has no URL to add a query to.
	ReasonMissingURL reqerr.Reason = "missingURL"
	// ReasonJSONEncodingFailed means the parameters could not be
	// marshalled as JSON.
	ReasonJSONEncodingFailed reqerr.Reason = "jsonEncodingFailed"
)

const (
	// FormContentType is set on plans whose body is a URL-encoded form.
	FormContentType = "application/x-www-form-urlencoded; charset=utf-8"
	// JSONContentType is set on plans whose body is a JSON document.
	JSONContentType = "application/json"
)

// An Encoder applies parameters to a plan.
type Encoder interface {
	Encode(p *request.Plan, params interface{}) error
}

// Destination selects where URLEncoded puts the encoded form.
type Destination int

const (
	// MethodDependent puts the form in the query string for GET, HEAD
	// and DELETE requests and in the body otherwise.
	MethodDependent Destination = iota
	// QueryString always puts the form in the query string.
	QueryString
	// HTTPBody always puts the form in the body.
	HTTPBody
)

// URLEncoded encodes parameters with a form.Encoder. The zero value uses
// MethodDependent and the default form encoding.
type URLEncoded struct {
	Destination Destination
	Form        form.Encoder
}

// Encode applies params to p. A nil params leaves p unchanged. In the
// query string the form is appended to any existing query with '&'. In
// the body it replaces the body, and the Content-Type is set to
// FormContentType unless the plan already has one.
func (u URLEncoded) Encode(p *request.Plan, params interface{}) error {
	if params == nil {
		return nil
	}

	s, err := u.Form.EncodeToString(params)
	if err != nil {
		return err
	}

	if u.inQuery(p.Method) {
		if p.URL == nil {
			return reqerr.New(reqerr.ParameterEncodingFailed, ReasonMissingURL, "")
		}
		if s == "" {
			return nil
		}
		if p.URL.RawQuery != "" {
			p.URL.RawQuery += "&" + s
		} else {
			p.URL.RawQuery = s
		}
		return nil
	}

	setContentType(p, FormContentType)
	p.Body = []byte(s)
	return nil
}

func (u URLEncoded) inQuery(method string) bool {
	switch u.Destination {
	case QueryString:
		return true
	case HTTPBody:
		return false
	}
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}

// JSON encodes parameters as a JSON body. The Content-Type is set to
// JSONContentType unless the plan already has one.
type JSON struct {
	// Indent, if not empty, pretty-prints the document using Indent for
	// each level.
	Indent string
}

// Encode marshals params into the body of p. A nil params leaves p
// unchanged.
func (j JSON) Encode(p *request.Plan, params interface{}) error {
	if params == nil {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if j.Indent != "" {
		enc.SetIndent("", j.Indent)
	}
	if err := enc.Encode(params); err != nil {
		return reqerr.Wrap(reqerr.ParameterEncodingFailed, ReasonJSONEncodingFailed, err, "")
	}

	setContentType(p, JSONContentType)
	p.Body = bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return nil
}

func setContentType(p *request.Plan, ct string) {
	if p.Header == nil {
		p.Header = make(http.Header)
	}
	if p.Header.Get("Content-Type") == "" {
		p.Header.Set("Content-Type", ct)
	}
}
