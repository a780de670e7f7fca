// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/serialize"
)

// A Response is the typed result of a finished request: the final
// execution together with the value a serializer produced from it.
type Response[T any] struct {
	// Execution is the final execution of the request. It is never nil.
	Execution *request.Execution
	// Value is the serialized value. It is the zero value of T when Err
	// is non-nil.
	Value T
	// Err is the request error if the request failed, otherwise the
	// serialization error, if any.
	Err error
}

// Serialize adds a response handler to r that runs s on the final
// execution and passes the typed result to handler. It returns r.
//
// Serialization runs once per call, on the goroutine delivering the
// request's response handlers, in the order handlers were added.
func Serialize[T any](r *Request, s serialize.Serializer[T], handler func(Response[T])) *Request {
	if s == nil {
		panic("reqx: nil serializer")
	}
	if handler == nil {
		panic("reqx: nil response handler")
	}
	return r.Response(func(e *request.Execution) {
		v, err := s.Serialize(e.Request, e.Response, e.Body, e.Err)
		if err != nil {
			var zero T
			v = zero
		}
		handler(Response[T]{Execution: e, Value: v, Err: err})
	})
}

// Await serializes the result of r with s and waits for it. An
// Initialized request is resumed first.
//
// If ctx ends before the request finishes, Await returns ctx.Err()
// without cancelling the request. Otherwise the returned error is the
// response's Err.
func Await[T any](ctx context.Context, r *Request, s serialize.Serializer[T]) (Response[T], error) {
	ch := make(chan Response[T], 1)
	Serialize(r, s, func(resp Response[T]) {
		ch <- resp
	})
	if r.State() == request.Initialized {
		r.Resume()
	}
	select {
	case resp := <-ch:
		return resp, resp.Err
	case <-ctx.Done():
		return Response[T]{}, ctx.Err()
	}
}
