// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gogama/reqx/multipart"
	"github.com/gogama/reqx/reqerr"
	"github.com/gogama/reqx/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedPart struct {
	Name        string
	FileName    string
	ContentType string
	Size        int
	Data        []byte
}

type uploadRecorder struct {
	mu          sync.Mutex
	method      string
	contentType string
	parts       []receivedPart
}

func (u *uploadRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.method = req.Method
	u.contentType = req.Header.Get("Content-Type")
	u.parts = nil
	mr, err := req.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(part)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p := receivedPart{
			Name:        part.FormName(),
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        len(data),
		}
		if len(data) <= 1024 {
			p.Data = data
		}
		u.parts = append(u.parts, p)
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestSession_Upload(t *testing.T) {
	recorder := &uploadRecorder{}
	server := httptest.NewServer(recorder)
	defer server.Close()

	t.Run("in memory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello, world"), 0o600))
		fd := multipart.New()
		fd.Append([]byte("42"), "answer", "", "")
		fd.AppendFile(path, "notes")
		s := &Session{HTTPDoer: server.Client()}
		p, err := request.NewPlan("PUT", server.URL, nil)
		require.NoError(t, err)
		p.Header.Set("X-Trace", "abc")

		r := s.Upload(p, fd)
		assert.NotNil(t, r.Plan().Body)
		assert.Equal(t, "", r.Plan().BodyFile)
		assert.Equal(t, "abc", r.Plan().Header.Get("X-Trace"))
		assert.Equal(t, "", p.Header.Get("Content-Type"))
		e := r.Validate().Resume().Wait()

		require.NoError(t, e.Err)
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		assert.Equal(t, "PUT", recorder.method)
		mediaType, params, err := mime.ParseMediaType(recorder.contentType)
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)
		assert.Equal(t, fd.Boundary(), params["boundary"])
		assert.Equal(t, []receivedPart{
			{Name: "answer", Size: 2, Data: []byte("42")},
			{Name: "notes", FileName: "notes.txt", ContentType: "text/plain; charset=utf-8", Size: 12, Data: []byte("hello, world")},
		}, recorder.parts)
	})
	t.Run("default method", func(t *testing.T) {
		fd := multipart.New()
		fd.Append([]byte("x"), "x", "", "")
		s := &Session{HTTPDoer: server.Client()}
		p, err := request.NewPlan("", server.URL, nil)
		require.NoError(t, err)
		p.Method = ""

		e := s.Upload(p, fd).Resume().Wait()

		require.NoError(t, e.Err)
		assert.Equal(t, "POST", e.Request.Method)
	})
	t.Run("replaces plan body", func(t *testing.T) {
		fd := multipart.New()
		fd.Append([]byte("x"), "x", "", "")
		s := &Session{HTTPDoer: server.Client()}
		p, err := request.NewPlan("POST", server.URL, []byte("ignored"))
		require.NoError(t, err)

		r := s.Upload(p, fd)

		assert.Equal(t, []byte("ignored"), p.Body)
		b, err := fd.Encode()
		require.NoError(t, err)
		assert.Equal(t, b, r.Plan().Body)
		r.Cancel().Wait()
	})
	t.Run("temporary file", func(t *testing.T) {
		fd := multipart.New()
		big := bytes.Repeat([]byte{'z'}, multipart.EncodingMemoryThreshold)
		fd.Append(big, "big", "big.bin", "application/octet-stream")
		s := &Session{HTTPDoer: server.Client()}
		p, err := request.NewPlan("POST", server.URL, nil)
		require.NoError(t, err)

		r := s.Upload(p, fd)
		bodyFile := r.Plan().BodyFile
		require.NotEmpty(t, bodyFile)
		assert.Nil(t, r.Plan().Body)
		fi, err := os.Stat(bodyFile)
		require.NoError(t, err)
		assert.Equal(t, fd.EncodedLength(), fi.Size())
		e := r.Validate().Resume().Wait()

		require.NoError(t, e.Err)
		assert.NoFileExists(t, bodyFile)
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		require.Len(t, recorder.parts, 1)
		assert.Equal(t, "big.bin", recorder.parts[0].FileName)
		assert.Equal(t, len(big), recorder.parts[0].Size)
	})
	t.Run("form error", func(t *testing.T) {
		fd := multipart.New()
		fd.AppendFile(filepath.Join(t.TempDir(), "absent.txt"), "absent")
		s := &Session{HTTPDoer: server.Client()}
		p, err := request.NewPlan("POST", server.URL, nil)
		require.NoError(t, err)

		e := s.Upload(p, fd).Resume().Wait()

		assert.Equal(t, reqerr.MultipartEncodingFailed, reqerr.KindOf(e.Err))
		assert.Equal(t, multipart.ReasonBodyPartFileNotReachable, reqerr.ReasonOf(e.Err))
		assert.Nil(t, e.Request)
	})
	t.Run("nil form", func(t *testing.T) {
		s := &Session{}
		p, err := request.NewPlan("POST", server.URL, nil)
		require.NoError(t, err)
		assert.PanicsWithValue(t, "reqx: nil form data", func() {
			s.Upload(p, nil)
		})
	})
}
