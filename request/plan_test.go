// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogama/reqx/reqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewPlan(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		url    string
		body   interface{}
		want   Plan
	}{
		{
			name: "empty method means GET",
			url:  "https://foo.com",
			want: Plan{Method: "GET", Host: "foo.com"},
		},
		{
			name:   "extension method",
			method: "PROPFIND",
			url:    "http://baz.com/dav",
			want:   Plan{Method: "PROPFIND", Host: "baz.com"},
		},
		{
			name:   "empty port removed",
			method: "GET",
			url:    "http://ham:",
			want:   Plan{Method: "GET", Host: "ham"},
		},
		{
			name:   "string body",
			method: "POST",
			url:    "/things",
			body:   "str",
			want:   Plan{Method: "POST", Body: []byte("str")},
		},
		{
			name:   "reader body",
			method: "PUT",
			url:    "/things/1",
			body:   strings.NewReader("io.Reader"),
			want:   Plan{Method: "PUT", Body: []byte("io.Reader")},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			p, err := NewPlan(testCase.method, testCase.url, testCase.body)

			require.NoError(t, err)
			assert.Equal(t, testCase.want.Method, p.Method)
			assert.Equal(t, testCase.want.Host, p.Host)
			assert.Equal(t, testCase.want.Host, p.URL.Host)
			assert.Equal(t, testCase.want.Body, p.Body)
			assert.NotNil(t, p.Header)
			assert.Equal(t, context.Background(), p.Context())
		})
	}
}

func TestNewPlan_Errors(t *testing.T) {
	t.Run("invalid method", func(t *testing.T) {
		p, err := NewPlan("\tGET", "eggs", nil)
		assert.Nil(t, p)
		assert.EqualError(t, err, `reqx/request: invalid method "\tGET"`)
	})
	t.Run("invalid URL", func(t *testing.T) {
		p, err := NewPlan("GET", ":::", nil)
		assert.Nil(t, p)
		assert.Equal(t, reqerr.InvalidURL, reqerr.KindOf(err))
	})
	t.Run("invalid body type", func(t *testing.T) {
		p, err := NewPlan("POST", "spam", map[string]int{})
		assert.Nil(t, p)
		assert.Equal(t, ReasonInvalidBodyType, reqerr.ReasonOf(err))
	})
	t.Run("body read", func(t *testing.T) {
		m := &mockReadCloser{}
		m.Test(t)
		m.On("Read", mock.Anything).Return(0, errors.New("problematic")).Once()
		m.On("Close").Return(nil).Once()
		p, err := NewPlan("PUT", "hello", m)
		assert.Nil(t, p)
		assert.EqualError(t, err, "problematic")
		m.AssertExpectations(t)
	})
}

func TestNewPlanWithContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "bar")

	p, err := NewPlanWithContext(ctx, "GET", "/x", nil)
	require.NoError(t, err)
	assert.Same(t, ctx, p.Context())

	p, err = NewPlanWithContext(nil, "GET", "/x", nil)
	assert.Nil(t, p)
	assert.EqualError(t, err, nilCtxMsg)
}

func TestPlan_AddCookie(t *testing.T) {
	p, err := NewPlan("", "http://cookietown.example", nil)
	require.NoError(t, err)
	shadow, err := http.NewRequest("", "http://cookietown.example", nil)
	require.NoError(t, err)

	cookies := []struct {
		cookie   http.Cookie
		expected string
	}{
		{http.Cookie{Name: "foo", Value: "bar"}, "foo=bar"},
		{http.Cookie{Name: "foo", Value: "baz"}, "foo=bar; foo=baz"},
		{
			http.Cookie{Name: "ham", Value: "eggs", Path: "/a", Domain: "seuss.example", MaxAge: 10, Secure: true, Expires: time.Now().Add(time.Hour)},
			"foo=bar; foo=baz; ham=eggs",
		},
	}
	for _, c := range cookies {
		p.AddCookie(&c.cookie)
		shadow.AddCookie(&c.cookie)
		assert.Equal(t, c.expected, p.Header.Get("Cookie"))
		assert.Equal(t, shadow.Header["Cookie"], p.Header["Cookie"], "single Cookie line like net/http")
	}
}

func TestPlan_Context(t *testing.T) {
	assert.Equal(t, context.Background(), (&Plan{}).Context(), "zero plan")

	p, err := NewPlan("DELETE", "http://example.com/stuff/1", nil)
	require.NoError(t, err)
	assert.Equal(t, context.Background(), p.Context())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err = NewPlanWithContext(ctx, "DELETE", "http://example.com/stuff/1", nil)
	require.NoError(t, err)
	assert.Same(t, ctx, p.Context())
}

func TestPlan_SetBasicAuth(t *testing.T) {
	testCases := []struct {
		user, password string
		expected       string
	}{
		{"", "", "Basic Og=="},
		{"patsy", "password", "Basic cGF0c3k6cGFzc3dvcmQ="},
		{"ünï", "cödé", ""},
	}
	for _, testCase := range testCases {
		p, err := NewPlan("", "http://secure.example", nil)
		require.NoError(t, err)
		shadow, err := http.NewRequest("", "http://secure.example", nil)
		require.NoError(t, err)

		p.SetBasicAuth(testCase.user, testCase.password)
		shadow.SetBasicAuth(testCase.user, testCase.password)

		if testCase.expected != "" {
			assert.Equal(t, testCase.expected, p.Header.Get("Authorization"))
		}
		assert.Equal(t, shadow.Header.Get("Authorization"), p.Header.Get("Authorization"))
	}
}

func TestPlan_ToRequest(t *testing.T) {
	t.Run("method", func(t *testing.T) {
		for method, expected := range map[string]string{"HEAD": "HEAD", "POST": "POST", "": "GET"} {
			p, err := NewPlan("PUT", "http://example.com", nil)
			require.NoError(t, err)
			p.Method = method
			r, err := p.ToRequest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, expected, r.Method, "plan method %q", method)
		}
	})
	t.Run("fields", func(t *testing.T) {
		p, err := NewPlan("POST", "http://example.com/a?b=c", nil)
		require.NoError(t, err)
		p.Header.Set("X-Trace", "abc")
		p.Host = "virtual.example"
		p.Close = true
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		r, err := p.ToRequest(ctx)

		require.NoError(t, err)
		assert.Same(t, ctx, r.Context())
		assert.Same(t, p.URL, r.URL)
		assert.Equal(t, "abc", r.Header.Get("X-Trace"))
		assert.Equal(t, "virtual.example", r.Host)
		assert.True(t, r.Close)
	})
	t.Run("nil header", func(t *testing.T) {
		p := &Plan{Method: "GET", URL: &url.URL{Scheme: "http", Host: "example.com"}}
		r, err := p.ToRequest(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, r.Header)
	})
	t.Run("no body", func(t *testing.T) {
		for _, body := range []interface{}{nil, "", []byte{}, strings.NewReader("")} {
			p, err := NewPlan("DELETE", "http://example.com", body)
			require.NoError(t, err)
			r, err := p.ToRequest(context.Background())
			require.NoError(t, err)
			assert.Nil(t, r.Body, "%T", body)
			assert.Nil(t, r.GetBody, "%T", body)
			assert.Zero(t, r.ContentLength, "%T", body)
		}
	})
	t.Run("buffered body", func(t *testing.T) {
		p, err := NewPlan("DELETE", "http://example.com", "foo")
		require.NoError(t, err)

		r, err := p.ToRequest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(3), r.ContentLength)
		for i := 0; i < 2; i++ {
			rc, err := r.GetBody()
			require.NoError(t, err)
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "foo", string(b), "replay %d", i)
		}
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "foo", string(b))
	})
}

func TestPlan_WithContext(t *testing.T) {
	p, err := NewPlan("PATCH", "http://example.com", "body")
	require.NoError(t, err)

	t.Run("nil context", func(t *testing.T) {
		assert.PanicsWithValue(t, nilCtxMsg, func() {
			p.WithContext(nil)
		})
	})
	t.Run("shallow copy", func(t *testing.T) {
		type hop struct{}
		ctx1 := context.WithValue(context.Background(), hop{}, 1)
		ctx2 := context.WithValue(ctx1, hop{}, 2)

		q := p.WithContext(ctx1)
		r := q.WithContext(ctx2)

		assert.Equal(t, context.Background(), p.Context(), "original untouched")
		assert.Same(t, ctx1, q.Context())
		assert.Same(t, ctx2, r.Context())
		for _, c := range []*Plan{q, r} {
			assert.NotSame(t, p, c)
			assert.Same(t, p.URL, c.URL)
			assert.Equal(t, p.Header, c.Header)
			assert.Equal(t, p.Body, c.Body)
			assert.Equal(t, p.Method, c.Method)
		}
	})
}

func TestPlan_Validate(t *testing.T) {
	t.Run("GET without body", func(t *testing.T) {
		p, err := NewPlan("GET", "http://example.com", nil)
		require.NoError(t, err)
		assert.NoError(t, p.Validate())
	})
	t.Run("GET with body", func(t *testing.T) {
		p, err := NewPlan("GET", "http://example.com", "body")
		require.NoError(t, err)
		err = p.Validate()
		assert.True(t, reqerr.Is(err, reqerr.URLRequestValidationFailed))
		assert.Equal(t, ReasonBodyDataInGETRequest, reqerr.ReasonOf(err))
	})
	t.Run("POST with body", func(t *testing.T) {
		p, err := NewPlan("POST", "http://example.com", "body")
		require.NoError(t, err)
		assert.NoError(t, p.Validate())
	})
	t.Run("missing URL", func(t *testing.T) {
		p := &Plan{Method: "GET"}
		assert.Equal(t, ReasonMissingURL, reqerr.ReasonOf(p.Validate()))
	})
	t.Run("multiple body sources", func(t *testing.T) {
		p, err := NewPlan("PUT", "http://example.com", "body")
		require.NoError(t, err)
		p.BodyFile = "foo.txt"
		assert.Equal(t, ReasonMultipleBodySources, reqerr.ReasonOf(p.Validate()))
	})
	t.Run("invalid header", func(t *testing.T) {
		p, err := NewPlan("PUT", "http://example.com", nil)
		require.NoError(t, err)
		p.Header["Bad Name"] = []string{"x"}
		assert.Equal(t, ReasonInvalidHeader, reqerr.ReasonOf(p.Validate()))
		delete(p.Header, "Bad Name")
		p.Header.Set("X-Value", "line\nbreak")
		assert.Equal(t, ReasonInvalidHeader, reqerr.ReasonOf(p.Validate()))
	})
}

func TestPlan_ToRequestBodySources(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "body.txt")
		require.NoError(t, os.WriteFile(path, []byte("from a file"), 0o600))
		p, err := NewPlan("PUT", "http://example.com", nil)
		require.NoError(t, err)
		p.BodyFile = path
		assert.True(t, p.HasBody())
		r, err := p.ToRequest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(11), r.ContentLength)
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "from a file", string(b))
		require.NoError(t, r.Body.Close())
		rc, err := r.GetBody()
		require.NoError(t, err)
		b, err = io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "from a file", string(b))
		_ = rc.Close()
	})
	t.Run("missing file", func(t *testing.T) {
		p, err := NewPlan("PUT", "http://example.com", nil)
		require.NoError(t, err)
		p.BodyFile = filepath.Join(t.TempDir(), "missing")
		r, err := p.ToRequest(context.Background())
		assert.Nil(t, r)
		assert.Equal(t, ReasonBodyFileUnreadable, reqerr.ReasonOf(err))
	})
	t.Run("stream", func(t *testing.T) {
		var opens int
		p, err := NewPlan("POST", "http://example.com", nil)
		require.NoError(t, err)
		p.BodyStream = func() (io.ReadCloser, error) {
			opens++
			return io.NopCloser(strings.NewReader("streamed")), nil
		}
		p.BodyLength = 8
		r, err := p.ToRequest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(8), r.ContentLength)
		assert.Equal(t, 1, opens)
		_, err = r.GetBody()
		require.NoError(t, err)
		assert.Equal(t, 2, opens)
	})
	t.Run("stream error", func(t *testing.T) {
		p, err := NewPlan("POST", "http://example.com", nil)
		require.NoError(t, err)
		p.BodyStream = func() (io.ReadCloser, error) {
			return nil, errors.New("no stream today")
		}
		_, err = p.ToRequest(context.Background())
		assert.EqualError(t, err, "no stream today")
	})
}
