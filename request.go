// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/resume"
	"github.com/gogama/reqx/retry"
	"github.com/gogama/reqx/timeout"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	phaseRunning int32 = iota
	phaseValidating
	phaseSerializing
	phaseDone
)

// A Request is one logical HTTP exchange created by a Session. It runs
// its plan on its own goroutine once resumed, retrying failed attempts
// as the session's retry policy dictates, and delivers the final
// execution to its response handlers.
//
// A Request moves through the states of request.State. Calls that ask
// for a transition the current state does not allow are ignored. All
// methods are safe for concurrent use.
type Request struct {
	// ID uniquely identifies the request within the process. It is
	// attached to every log message about the request.
	ID uuid.UUID

	session       *Session
	plan          *request.Plan
	doer          HTTPDoer
	retryPolicy   retry.Policy
	timeoutPolicy timeout.Policy
	handlers      *HandlerGroup
	log           zerolog.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu           sync.Mutex
	state        request.State
	snap         request.Execution
	gate         chan struct{}
	started      bool
	cancelKind   reqerr.Kind
	resumeFns    []func(*resume.State, error)
	resumeClosed bool
	validators   []Validator
	queue        []func(*request.Execution)
	draining     bool
	final        *request.Execution

	phase    int32
	done     chan struct{}
	received int64

	createErr error
	download  *downloadTarget
	cleanups  []func()
}

// Plan returns the plan the request executes.
func (r *Request) Plan() *request.Plan {
	return r.plan
}

// State returns the current lifecycle state of the request.
func (r *Request) State() request.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Execution returns a snapshot of the request's execution as of the end
// of the most recent attempt. Once the request is Finished the snapshot
// is the final execution delivered to response handlers.
func (r *Request) Execution() *request.Execution {
	r.mu.Lock()
	e := r.snap
	e.State = r.state
	r.mu.Unlock()
	if e.State != request.Finished {
		e.BytesReceived = atomic.LoadInt64(&r.received)
	}
	return &e
}

// Resume starts or continues the request. Resuming an Initialized
// request starts its first attempt; resuming a Suspended request lets a
// paused body read continue.
func (r *Request) Resume() *Request {
	r.mu.Lock()
	if !r.state.CanTransitionTo(request.Resumed) {
		r.mu.Unlock()
		return r
	}
	r.state = request.Resumed
	close(r.gate)
	start := !r.started
	r.started = true
	r.mu.Unlock()

	r.log.Debug().Msg("request resumed")
	if start {
		go r.run()
	}
	return r
}

// Suspend pauses the request. An attempt in flight stops reading its
// response body, and no new attempt starts, until the request is
// resumed. Time spent suspended counts towards the attempt timeout.
func (r *Request) Suspend() *Request {
	r.mu.Lock()
	if !r.state.CanTransitionTo(request.Suspended) {
		r.mu.Unlock()
		return r
	}
	if r.state == request.Resumed {
		r.gate = make(chan struct{})
	}
	r.state = request.Suspended
	r.mu.Unlock()

	r.log.Debug().Msg("request suspended")
	return r
}

// Cancel cancels the request. The request finishes with a
// reqerr.ExplicitlyCancelled error even if it was never resumed.
// Cancelling a Cancelled or Finished request does nothing.
func (r *Request) Cancel() *Request {
	r.cancel(reqerr.ExplicitlyCancelled, nil)
	return r
}

// CancelProducingResumeData cancels the request like Cancel and calls
// fn with the data needed to resume it. Only a download that received
// at least one byte produces resume data; otherwise, and when the
// request had already finished, fn is called with (nil, nil).
//
// Fn runs on the request's goroutine after the request is cancelled
// and before its response handlers, or on the calling goroutine if the
// request had already finished.
func (r *Request) CancelProducingResumeData(fn func(*resume.State, error)) *Request {
	if fn == nil {
		panic("reqx: nil resume data function")
	}
	r.cancel(reqerr.ExplicitlyCancelled, fn)
	return r
}

// Validate adds validators that every received response must pass.
// When called with no arguments it adds the default validation: the
// status code must be 2XX and the Content-Type must match the request's
// Accept header.
//
// Validators added after an attempt has received its response apply
// from the next attempt.
func (r *Request) Validate(validators ...Validator) *Request {
	if len(validators) == 0 {
		validators = defaultValidators
	}
	for _, v := range validators {
		if v == nil {
			panic("reqx: nil validator")
		}
	}
	r.mu.Lock()
	r.validators = append(r.validators, validators...)
	r.mu.Unlock()
	return r
}

// Response adds a response handler. Each handler runs exactly once, in
// the order handlers were added, with its own copy of the final
// execution. Handlers added after the request has finished run as soon
// as possible.
func (r *Request) Response(h func(e *request.Execution)) *Request {
	if h == nil {
		panic("reqx: nil response handler")
	}
	r.mu.Lock()
	if r.final == nil || r.draining {
		r.queue = append(r.queue, h)
		r.mu.Unlock()
		return r
	}
	r.draining = true
	r.mu.Unlock()
	go r.drain([]func(*request.Execution){h})
	return r
}

// Done returns a channel which is closed when the request has finished
// and the response handlers added before it finished have run.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until Done is closed and returns the final execution.
// Wait does not resume the request.
func (r *Request) Wait() *request.Execution {
	<-r.done
	return r.Execution()
}

func (r *Request) cancel(kind reqerr.Kind, fn func(*resume.State, error)) {
	r.mu.Lock()
	if atomic.LoadInt32(&r.phase) != phaseRunning || r.resumeClosed {
		r.mu.Unlock()
		if fn != nil {
			fn(nil, nil)
		}
		return
	}
	if r.state == request.Cancelled {
		if fn != nil {
			r.resumeFns = append(r.resumeFns, fn)
		}
		r.mu.Unlock()
		return
	}
	if !r.state.CanTransitionTo(request.Cancelled) {
		r.mu.Unlock()
		return
	}
	r.state = request.Cancelled
	r.cancelKind = kind
	if fn != nil {
		r.resumeFns = append(r.resumeFns, fn)
	}
	start := !r.started
	r.started = true
	r.mu.Unlock()

	r.cancelCtx()
	r.log.Debug().Str("kind", string(kind)).Msg("request cancelled")
	if start {
		go r.run()
	}
}

func (r *Request) run() {
	e := &request.Execution{Plan: r.plan}
	r.handlers.run(BeforeExecutionStart, e)
	e.Start = time.Now()
	r.publish(e)

	if r.ctx.Err() != nil {
		r.interrupted(e)
		r.didComplete(e)
		return
	}
	if err := r.preflight(); err != nil {
		e.Err = err
		r.didComplete(e)
		return
	}

	for {
		r.attempt(e)
		if e.Timeout() {
			e.AttemptTimeouts++
			r.handlers.run(AfterAttemptTimeout, e)
		}
		r.handlers.run(AfterAttempt, e)
		r.publish(e)
		if r.interrupted(e) || e.Err == nil {
			break
		}
		result, err := r.retryPolicy.Retry(r.ctx, e)
		if err != nil {
			r.log.Warn().Err(err).Int("attempt", e.Attempt).Msg("retry policy failed")
			if !r.interrupted(e) {
				e.Err = reqerr.RetryFailed(err, e.Err)
			}
			break
		}
		if !result.Retry {
			break
		}
		r.log.Debug().
			Int("attempt", e.Attempt).
			Dur("delay", result.Delay).
			AnErr("cause", e.Err).
			Msg("retry scheduled")
		if !r.sleep(result.Delay) {
			e.Err = urlErrorWrap(r.plan, r.ctx.Err())
			r.interrupted(e)
			break
		}
		e.Request = nil
		e.Response = nil
		e.Err = nil
		e.Body = nil
		e.Attempt++
	}

	r.didComplete(e)
}

func (r *Request) preflight() error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.plan.Validate()
}

func (r *Request) attempt(e *request.Execution) {
	if err := r.waitGate(r.ctx); err != nil {
		e.Err = urlErrorWrap(r.plan, err)
		return
	}
	e.State = r.State()
	offset := r.download.resumeOffset()
	atomic.StoreInt64(&r.received, offset)
	e.BytesReceived = offset

	ctx, cancel := context.WithTimeout(r.ctx, r.timeoutPolicy.Timeout(e))
	defer cancel()
	req, err := r.plan.ToRequest(ctx)
	if err != nil {
		e.Err = err
		return
	}
	e.Request = req
	r.download.prepare(req)
	r.handlers.run(BeforeAttempt, e)
	r.log.Debug().Int("attempt", e.Attempt).Msg("attempt issued")
	e.Response, err = r.doer.Do(e.Request)
	if err != nil {
		e.Err = urlErrorWrap(r.plan, err)
		return
	}
	r.readBody(ctx, e)
	if e.Err == nil {
		e.Err = r.validate(e)
	}
}

func (r *Request) readBody(ctx context.Context, e *request.Execution) {
	defer func() {
		_ = e.Response.Body.Close()
	}()
	r.handlers.run(BeforeReadBody, e)
	body := &gatedReader{r: r, ctx: ctx, rc: e.Response.Body}
	var err error
	if r.download != nil {
		err = r.download.receive(r, e, body)
	} else {
		e.Body, err = io.ReadAll(body)
	}
	e.BytesReceived = atomic.LoadInt64(&r.received)
	if err != nil {
		e.Err = urlErrorWrap(r.plan, err)
	}
}

func (r *Request) validate(e *request.Execution) error {
	r.mu.Lock()
	validators := r.validators
	r.mu.Unlock()
	for _, v := range validators {
		if err := v.Validate(e); err != nil {
			if _, ok := reqerr.As(err); !ok {
				err = reqerr.Wrap(reqerr.ResponseValidationFailed, ReasonCustomValidationFailed, err, "")
			}
			return err
		}
	}
	return nil
}

// interrupted reports whether the request was cancelled or its plan
// context ended. On cancellation it replaces e.Err with the cancellation
// error.
func (r *Request) interrupted(e *request.Execution) bool {
	r.mu.Lock()
	kind := r.cancelKind
	r.mu.Unlock()
	if kind != "" {
		cause := e.Err
		if cause == nil {
			cause = context.Canceled
		}
		e.Err = &reqerr.Error{Kind: kind, Err: cause}
		return true
	}

	planErr := r.plan.Context().Err()
	if planErr == context.DeadlineExceeded {
		r.handlers.run(AfterPlanTimeout, e)
		return true
	} else if planErr != nil {
		e.Err = urlErrorWrap(r.plan, planErr)
		return true
	}
	return false
}

func (r *Request) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Request) waitGate(ctx context.Context) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Request) publish(e *request.Execution) {
	r.mu.Lock()
	r.snap = *e
	r.mu.Unlock()
}

// didComplete finishes the request. Only the first call has any effect.
func (r *Request) didComplete(e *request.Execution) {
	if !atomic.CompareAndSwapInt32(&r.phase, phaseRunning, phaseValidating) {
		return
	}

	r.mu.Lock()
	fns := r.resumeFns
	r.resumeFns = nil
	r.resumeClosed = true
	wantResume := len(fns) > 0 && r.cancelKind == reqerr.ExplicitlyCancelled
	r.mu.Unlock()

	state, stateErr := r.download.finish(r, e, wantResume)
	e.End = time.Now()
	r.handlers.run(AfterExecutionEnd, e)

	atomic.StoreInt32(&r.phase, phaseSerializing)
	r.mu.Lock()
	r.state = request.Finished
	e.State = request.Finished
	final := *e
	r.final = &final
	r.snap = final
	queue := r.queue
	r.queue = nil
	r.draining = true
	cleanups := r.cleanups
	r.cleanups = nil
	r.mu.Unlock()

	for _, fn := range fns {
		fn(state, stateErr)
	}
	for _, c := range cleanups {
		c()
	}
	r.cancelCtx()
	r.session.forget(r)
	r.log.Debug().
		Int("attempt", e.Attempt).
		Dur("duration", e.Duration()).
		Bool("cancelled", e.Cancelled()).
		AnErr("error", e.Err).
		Msg("request finished")

	r.drain(queue)
}

func (r *Request) drain(queue []func(*request.Execution)) {
	for {
		for _, h := range queue {
			e := *r.final
			h(&e)
		}
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			if atomic.LoadInt32(&r.phase) != phaseDone {
				atomic.StoreInt32(&r.phase, phaseDone)
				close(r.done)
			}
			r.mu.Unlock()
			return
		}
		queue = r.queue
		r.queue = nil
		r.mu.Unlock()
	}
}

// gatedReader counts the bytes read from a response body and blocks
// while the request is suspended.
type gatedReader struct {
	r   *Request
	ctx context.Context
	rc  io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if err := g.r.waitGate(g.ctx); err != nil {
		return 0, err
	}
	n, err := g.rc.Read(p)
	atomic.AddInt64(&g.r.received, int64(n))
	return n, err
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: urlString(p),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
