// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"context"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/retry"
	"github.com/gogama/reqx/serialize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAwait(t *testing.T) {
	t.Run("decodable", func(t *testing.T) {
		mockDoer := newMockHTTPDoer(t)
		mockDoer.On("Do", mock.Anything).Return(&http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"name":"gear","count":3}`)),
		}, nil).Once()
		s := &Session{HTTPDoer: mockDoer}
		p, err := request.NewPlan("GET", "test", nil)
		require.NoError(t, err)
		r := s.Request(p).Validate()

		resp, err := Await[widget](context.Background(), r, serialize.Decodable[widget]{})

		require.NoError(t, err)
		assert.Equal(t, widget{Name: "gear", Count: 3}, resp.Value)
		require.NotNil(t, resp.Execution)
		assert.Equal(t, 200, resp.Execution.StatusCode())
	})
	t.Run("request error", func(t *testing.T) {
		mockDoer := newMockHTTPDoer(t)
		mockDoer.On("Do", mock.Anything).Return(nil, syscall.ECONNREFUSED).Once()
		s := &Session{HTTPDoer: mockDoer, RetryPolicy: retry.Never}
		p, err := request.NewPlan("GET", "test", nil)
		require.NoError(t, err)

		resp, err := Await[string](context.Background(), s.Request(p), serialize.String{})

		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		assert.Same(t, err, resp.Err)
		assert.Equal(t, "", resp.Value)
	})
	t.Run("serialization error", func(t *testing.T) {
		mockDoer := newMockHTTPDoer(t)
		mockDoer.On("Do", mock.Anything).Return(&http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader(`{"name":`)),
		}, nil).Once()
		s := &Session{HTTPDoer: mockDoer}
		p, err := request.NewPlan("GET", "test", nil)
		require.NoError(t, err)

		resp, err := Await[widget](context.Background(), s.Request(p), serialize.Decodable[widget]{})

		assert.Equal(t, reqerr.ResponseSerializationFailed, reqerr.KindOf(err))
		assert.Equal(t, widget{}, resp.Value)
		assert.NoError(t, resp.Execution.Err)
	})
	t.Run("context done", func(t *testing.T) {
		mockDoer := newMockHTTPDoer(t)
		s := &Session{HTTPDoer: mockDoer}
		p, err := request.NewPlan("GET", "test", nil)
		require.NoError(t, err)
		r := s.Request(p).Suspend()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err = Await[[]byte](ctx, r, serialize.Data{})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, request.Suspended, r.State())
		mockDoer.AssertNotCalled(t, "Do", mock.Anything)
		r.Cancel().Wait()
	})
}

func TestSerialize(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	mockDoer.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"text/plain; charset=iso-8859-1"}},
		Body:       io.NopCloser(strings.NewReader("caf\xe9")),
	}, nil).Once()
	s := &Session{HTTPDoer: mockDoer}
	p, err := request.NewPlan("GET", "test", nil)
	require.NoError(t, err)

	var text string
	var raw []byte
	r := s.Request(p)
	Serialize[string](r, serialize.String{}, func(resp Response[string]) {
		assert.NoError(t, resp.Err)
		text = resp.Value
	})
	Serialize[[]byte](r, serialize.Data{}, func(resp Response[[]byte]) {
		assert.NoError(t, resp.Err)
		raw = resp.Value
	})
	r.Resume().Wait()

	assert.Equal(t, "café", text)
	assert.Equal(t, []byte("caf\xe9"), raw)
	assert.Panics(t, func() {
		Serialize[string](r, nil, func(Response[string]) {})
	})
}
