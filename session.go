// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"net/http"
	"sync"

	"github.com/gogama/reqx/multipart"
	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/resume"
	"github.com/gogama/reqx/retry"
	"github.com/gogama/reqx/timeout"
	"github.com/gogama/reqx/trust"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	//
	// The Do method must follow the contract documented on the GoLang
	// standard library http.Client from the net/http package.
	Do(r *http.Request) (*http.Response, error)
}

// An IdleCloser can close idle connections. The http.Client type
// implements IdleCloser.
type IdleCloser interface {
	CloseIdleConnections()
}

var emptyHandlers = HandlerGroup{}

// A Session creates and tracks requests. Its zero value is a valid
// configuration.
//
// The zero value session uses http.DefaultClient (from net/http) as the
// HTTPDoer, timeout.DefaultPolicy as the timeout policy,
// retry.DefaultPolicy as the retry policy, an empty handler group (no
// event handlers/plug-ins) and a no-op logger.
//
// A Session is higher-level than an HTTPDoer. The HTTPDoer is
// responsible for all details of sending the HTTP request and receiving
// the response, while Session builds on top of the HTTPDoer's feature
// set. On top of those features, every Request a Session creates:
//
// • runs asynchronously on its own goroutine and can be resumed,
// suspended and cancelled at any time;
//
// • retries failed attempts using a customizable retry policy, and sets
// individual attempt timeouts using a customizable timeout policy;
//
// • validates responses and delivers them, fully buffered or streamed
// to disk, to any number of response handlers; and
//
// • invokes user-provided handler functions at designated plug-in
// points within the attempt/retry loop.
//
// Configure a Session before its first request and do not change or
// copy it afterwards. Session is safe for concurrent use by multiple
// goroutines.
type Session struct {
	// HTTPDoer specifies the mechanics of sending HTTP requests and
	// receiving responses.
	//
	// If HTTPDoer is nil and Trust is nil, http.DefaultClient from the
	// standard net/http package is used. If HTTPDoer is nil and Trust is
	// set, the session builds an http.Client whose transport evaluates
	// server trust with Trust.
	HTTPDoer HTTPDoer
	// RetryPolicy decides whether to retry failed attempts and how long
	// to sleep after a failed attempt before retrying.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// TimeoutPolicy specifies how to set timeouts on individual request
	// attempts.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request plan.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Trust evaluates server certificates for the session's default
	// HTTPDoer. It is ignored when HTTPDoer is set.
	Trust *trust.Manager
	// Logger receives the session's debug and warning messages. If
	// Logger is nil, nothing is logged.
	Logger *zerolog.Logger
	// StartImmediately makes every new request resume as soon as it is
	// created.
	StartImmediately bool

	once sync.Once
	doer HTTPDoer

	mu          sync.Mutex
	invalidated bool
	active      map[uuid.UUID]*Request
}

// Request creates a request to execute plan p. Unless StartImmediately
// is set, the request stays Initialized until it is resumed.
func (s *Session) Request(p *request.Plan) *Request {
	r := s.newRequest(p)
	s.start(r)
	return r
}

// Upload creates a request that sends the multipart form fd as the body
// of plan p. The plan is copied and its Content-Type header set to the
// form's content type.
//
// A form whose encoded length exceeds multipart.EncodingMemoryThreshold
// is encoded to a temporary file, which is removed when the request
// finishes. A form that carries an error fails the request with that
// error.
func (s *Session) Upload(p *request.Plan, fd *multipart.FormData) *Request {
	if fd == nil {
		panic("reqx: nil form data")
	}
	r := s.newRequest(uploadPlan(p, fd))
	if err := r.prepareUpload(fd); err != nil && r.createErr == nil {
		r.createErr = err
	}
	s.start(r)
	return r
}

// Download creates a request that streams the response body of plan p
// into a temporary file and moves it to dest when the request succeeds.
// The executions delivered to response handlers have a nil Body and
// carry the final path in DownloadPath.
//
// Cancelling a download with CancelProducingResumeData after at least
// one byte was received yields a resume.State that DownloadResuming can
// continue from.
func (s *Session) Download(p *request.Plan, dest Destination) *Request {
	r := s.newRequest(p)
	r.download = &downloadTarget{dest: dest}
	s.start(r)
	return r
}

// DownloadResuming creates a download request that continues the
// interrupted download described by state, sending a range request to
// the state's current URL.
//
// If the server ignores the range and answers with the whole entity,
// the download starts again from zero.
func (s *Session) DownloadResuming(state *resume.State, dest Destination) *Request {
	if state == nil {
		panic("reqx: nil resume state")
	}
	p, err := resumePlan(state)
	r := s.newRequest(p)
	r.download = resumeTarget(state, dest)
	if err != nil && r.createErr == nil {
		r.createErr = err
	}
	s.start(r)
	return r
}

// Invalidate cancels every active request with a
// reqerr.SessionInvalidated error, and makes every request created
// afterwards fail with the same error. It then closes idle connections
// on the HTTPDoer.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.invalidated = true
	active := make([]*Request, 0, len(s.active))
	for _, r := range s.active {
		active = append(active, r)
	}
	s.mu.Unlock()

	s.logger().Debug().Int("active", len(active)).Msg("session invalidated")
	for _, r := range active {
		r.cancel(reqerr.SessionInvalidated, nil)
	}
	s.CloseIdleConnections()
}

// CloseIdleConnections invokes the same method on the session's
// underlying HTTPDoer.
//
// If the HTTPDoer has no CloseIdleConnections method, this method does
// nothing.
func (s *Session) CloseIdleConnections() {
	if ic, ok := s.httpDoer().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

// Active returns the number of requests created by the session that
// have not finished.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Session) newRequest(p *request.Plan) *Request {
	if p == nil {
		panic("reqx: nil plan")
	}

	ctx, cancel := context.WithCancel(p.Context())
	r := &Request{
		ID:            uuid.New(),
		session:       s,
		plan:          p,
		doer:          s.httpDoer(),
		retryPolicy:   s.RetryPolicy,
		timeoutPolicy: s.TimeoutPolicy,
		handlers:      s.Handlers,
		ctx:           ctx,
		cancelCtx:     cancel,
		gate:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if r.retryPolicy == nil {
		r.retryPolicy = retry.DefaultPolicy
	}
	if r.timeoutPolicy == nil {
		r.timeoutPolicy = timeout.DefaultPolicy
	}
	if r.handlers == nil {
		r.handlers = &emptyHandlers
	}
	r.log = s.logger().With().
		Str("id", r.ID.String()).
		Str("method", method(p)).
		Str("url", urlString(p)).
		Logger()
	r.snap.Plan = p

	s.mu.Lock()
	if s.invalidated {
		r.createErr = reqerr.New(reqerr.SessionInvalidated, "", "")
	} else {
		if s.active == nil {
			s.active = make(map[uuid.UUID]*Request)
		}
		s.active[r.ID] = r
	}
	s.mu.Unlock()

	r.log.Debug().Msg("request created")
	return r
}

func (s *Session) start(r *Request) {
	if s.StartImmediately {
		r.Resume()
	}
}

func (s *Session) forget(r *Request) {
	s.mu.Lock()
	delete(s.active, r.ID)
	s.mu.Unlock()
}

func (s *Session) httpDoer() HTTPDoer {
	s.once.Do(func() {
		switch {
		case s.HTTPDoer != nil:
			s.doer = s.HTTPDoer
		case s.Trust != nil:
			s.doer = &http.Client{
				Transport: &http.Transport{
					Proxy:             http.ProxyFromEnvironment,
					DialTLSContext:    s.Trust.DialTLSContext(nil),
					ForceAttemptHTTP2: true,
				},
			}
		default:
			s.doer = http.DefaultClient
		}
	})
	return s.doer
}

var nopLogger = zerolog.Nop()

func (s *Session) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}

func method(p *request.Plan) string {
	if p.Method == "" {
		return http.MethodGet
	}
	return p.Method
}

func urlString(p *request.Plan) string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}
