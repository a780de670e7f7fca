// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"os"
	"strings"

	"github.com/gogama/reqx/reqerr"
	"golang.org/x/net/http/httpguts"
)

var (
	template, _ = http.NewRequest("GET", "", nil)
)

const (
	nilCtxMsg = "reqx/request: nil context"
)

// Reasons reported by Plan validation with kind
// reqerr.URLRequestValidationFailed.
const (
	// ReasonBodyDataInGETRequest means a GET plan carries a body.
	ReasonBodyDataInGETRequest reqerr.Reason = "bodyDataInGETRequest"
	// ReasonInvalidHeader means a header name or value contains bytes
	// that cannot be sent on the wire.
	ReasonInvalidHeader reqerr.Reason = "invalidHeader"
	// ReasonMissingURL means the plan has no URL.
	ReasonMissingURL reqerr.Reason = "missingURL"
	// ReasonMultipleBodySources means more than one of Body, BodyFile and
	// BodyStream is set.
	ReasonMultipleBodySources reqerr.Reason = "multipleBodySources"
	// ReasonBodyFileUnreadable means the BodyFile could not be opened.
	ReasonBodyFileUnreadable reqerr.Reason = "bodyFileUnreadable"
)

// A Plan describes the HTTP request a reqx.Request sends on each of its
// attempts.
//
// Its fields follow http.Request minus the server-side ones. The body
// comes from at most one of three sources that can be replayed from the
// start on every attempt: the buffered Body, a BodyFile on disk, or a
// BodyStream opener.
//
// The plan's context bounds the whole request, attempts, retry waits
// and handlers included. Change it only through WithContext.
type Plan struct {
	// Method is the HTTP method. Empty means GET.
	Method string

	// URL is the target. Its Host is the server dialled; the Host field
	// may override the Host header sent.
	URL *urlpkg.URL

	// Header holds the request header fields.
	Header http.Header

	// Body is a buffered request body. Nil or empty means none.
	Body []byte

	// BodyFile names a file streamed as the body. It is reopened on
	// every attempt.
	BodyFile string

	// BodyStream opens a fresh body stream and is called once per
	// attempt.
	BodyStream func() (io.ReadCloser, error)

	// BodyLength is the length of the BodyStream body, or -1 for
	// chunked transfer encoding. Other body sources ignore it.
	BodyLength int64

	// TransferEncoding lists transfer encodings, outermost first.
	TransferEncoding []string

	// Close asks for the connection to be closed after each attempt.
	Close bool

	// Host overrides the Host header. Empty means URL.Host.
	Host string

	ctx context.Context
}

// NewPlan is NewPlanWithContext with the background context.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a plan for method and url. An empty method
// means GET. The body is converted with BodyBytes, so a reader is read
// to the end here and not on each attempt.
//
// An unparseable URL fails with kind reqerr.InvalidURL.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("reqx/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, reqerr.Wrap(reqerr.InvalidURL, "", err, "%q", url)
	}
	u.Host = removeEmptyPort(u.Host)
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the plan's context, or the background context if
// none was set.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p using ctx, which must not be
// nil. Header and URL are shared with p.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// HasBody reports whether any body source is set.
func (p *Plan) HasBody() bool {
	return len(p.Body) > 0 || p.BodyFile != "" || p.BodyStream != nil
}

// Validate checks the plan is sendable. Failures have kind
// reqerr.URLRequestValidationFailed, and a GET plan with a body is
// rejected with reason ReasonBodyDataInGETRequest.
func (p *Plan) Validate() error {
	if p.URL == nil {
		return reqerr.New(reqerr.URLRequestValidationFailed, ReasonMissingURL, "")
	}
	sources := 0
	if len(p.Body) > 0 {
		sources++
	}
	if p.BodyFile != "" {
		sources++
	}
	if p.BodyStream != nil {
		sources++
	}
	if sources > 1 {
		return reqerr.New(reqerr.URLRequestValidationFailed, ReasonMultipleBodySources, "")
	}
	if (p.Method == "" || p.Method == http.MethodGet) && sources > 0 {
		return reqerr.New(reqerr.URLRequestValidationFailed, ReasonBodyDataInGETRequest, "")
	}
	for name, values := range p.Header {
		if !httpguts.ValidHeaderFieldName(name) {
			return reqerr.New(reqerr.URLRequestValidationFailed, ReasonInvalidHeader, "invalid header name %q", name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return reqerr.New(reqerr.URLRequestValidationFailed, ReasonInvalidHeader, "invalid value for header %q", name)
			}
		}
	}
	return nil
}

// AddCookie adds a cookie to the request. Per RFC 6265 section 5.4,
// AddCookie does not attach more than one Cookie header field. That
// means all cookies, if any, are written into the same line,
// separated by semicolons.
func (p *Plan) AddCookie(c *http.Cookie) {
	c2 := &http.Cookie{Name: c.Name, Value: c.Value}
	s := c2.String()
	if h := p.Header.Get("Cookie"); h != "" {
		p.Header.Set("Cookie", h+"; "+s)
	} else {
		p.Header.Set("Cookie", s)
	}
}

// SetBasicAuth sets the request plan's Authorization header to use HTTP
// Basic Authentication with the provided username and password.
//
// With HTTP Basic Authentication the provided username and password
// are not encrypted.
func (p *Plan) SetBasicAuth(username, password string) {
	p.Header.Set("Authorization", "Basic "+basicAuth(username, password))
}

// ToRequest creates an HTTP request corresponding to the given request
// plan. The context of the new request is set to ctx, which may not be
// nil.
//
// A BodyFile is opened, and a BodyStream called, once for the returned
// request and again by its GetBody function on redirects.
func (p *Plan) ToRequest(ctx context.Context) (*http.Request, error) {
	r := template.WithContext(ctx)
	r.Method = p.Method
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.URL = p.URL
	r.Header = p.Header
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	switch {
	case len(p.Body) > 0:
		r.Body = io.NopCloser(bytes.NewReader(p.Body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(p.Body)), nil
		}
		r.ContentLength = int64(len(p.Body))
	case p.BodyFile != "":
		f, err := os.Open(p.BodyFile)
		if err != nil {
			return nil, reqerr.Wrap(reqerr.URLRequestValidationFailed, ReasonBodyFileUnreadable, err, "")
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, reqerr.Wrap(reqerr.URLRequestValidationFailed, ReasonBodyFileUnreadable, err, "")
		}
		path := p.BodyFile
		r.Body = f
		r.GetBody = func() (io.ReadCloser, error) {
			return os.Open(path)
		}
		r.ContentLength = fi.Size()
	case p.BodyStream != nil:
		rc, err := p.BodyStream()
		if err != nil {
			return nil, err
		}
		r.Body = rc
		r.GetBody = p.BodyStream
		r.ContentLength = p.BodyLength
	}
	r.TransferEncoding = p.TransferEncoding
	r.Close = p.Close
	r.Host = p.Host
	return r, nil
}

// basicAuth is lifted verbatim from net/http/client.go.
//
// See 2 (end of page 4) https://www.ietf.org/rfc/rfc2617.txt
// "To receive authorization, the client sends the userid and password,
// separated by a single colon (":") character, within a base64
// encoded string in the credentials."
// It is not meant to be urlencoded.
func basicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

// validMethod reports whether method is an RFC 7230 token. The empty
// string never reaches here because it is interpreted as "GET".
func validMethod(method string) bool {
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
