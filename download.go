// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/resume"
)

// A Destination says where a finished download is moved.
//
// The zero value leaves the download in its temporary file, whose path
// is reported in the execution's DownloadPath.
type Destination struct {
	// Path is the final location of the downloaded file.
	Path string
	// CreateDirs creates any missing parent directories of Path.
	CreateDirs bool
	// Overwrite replaces an existing file at Path. Without it, a
	// download whose Path exists fails.
	Overwrite bool
}

type downloadTarget struct {
	dest   Destination
	temp   string
	offset int64
	state  *resume.State
}

func (d *downloadTarget) resumeOffset() int64 {
	if d == nil {
		return 0
	}
	return d.offset
}

func (d *downloadTarget) prepare(req *http.Request) {
	if d == nil || d.offset == 0 || d.state == nil {
		return
	}
	req.Header = req.Header.Clone()
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", d.offset))
	if etag := d.state.EntityTag(); etag != "" {
		req.Header.Set("If-Range", etag)
	} else if lm := d.state.LastModified(); lm != "" {
		req.Header.Set("If-Range", lm)
	}
}

func (d *downloadTarget) receive(r *Request, e *request.Execution, body io.Reader) error {
	var f *os.File
	var err error
	if d.offset > 0 {
		switch e.StatusCode() {
		case http.StatusPartialContent:
		case http.StatusOK:
			// The range was ignored; start over.
			d.offset = 0
			atomic.StoreInt64(&r.received, 0)
		default:
			// Leave the partial file alone so a later attempt can resume it.
			e.DownloadPath = d.temp
			e.Body, err = io.ReadAll(body)
			atomic.StoreInt64(&r.received, d.offset)
			return err
		}
	}
	if d.temp == "" {
		f, err = os.CreateTemp("", "reqx-download-*")
		if err == nil {
			d.temp = f.Name()
		}
	} else {
		f, err = os.OpenFile(d.temp, os.O_WRONLY|os.O_CREATE, 0o600)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	if err = f.Truncate(d.offset); err != nil {
		return err
	}
	if _, err = f.Seek(d.offset, io.SeekStart); err != nil {
		return err
	}
	e.DownloadPath = d.temp
	_, err = io.Copy(f, body)
	return err
}

// finish disposes of the temporary file once the request is over. It
// returns resume data when wantResume is set and some bytes were
// received.
func (d *downloadTarget) finish(r *Request, e *request.Execution, wantResume bool) (*resume.State, error) {
	if d == nil || d.temp == "" {
		return nil, nil
	}

	if wantResume {
		n := e.BytesReceived
		if n == 0 {
			n = d.offset
		}
		if n > 0 {
			s, err := d.resumeState(r.plan, e, n)
			if err == nil {
				e.DownloadPath = d.temp
				return s, nil
			}
			d.discard(e)
			return nil, err
		}
	}

	if e.Err != nil {
		d.discard(e)
		return nil, nil
	}
	if d.dest.Path == "" {
		e.DownloadPath = d.temp
		return nil, nil
	}
	if err := d.move(); err != nil {
		e.Err = urlErrorWrap(r.plan, err)
		d.discard(e)
		return nil, nil
	}
	e.DownloadPath = d.dest.Path
	return nil, nil
}

func (d *downloadTarget) resumeState(p *request.Plan, e *request.Execution, n int64) (*resume.State, error) {
	f := resume.Fields{
		OriginalURL:   urlString(p),
		CurrentURL:    urlString(p),
		TempFile:      d.temp,
		BytesReceived: n,
	}
	if d.state != nil {
		f.OriginalURL = d.state.OriginalURL()
		f.EntityTag = d.state.EntityTag()
		f.LastModified = d.state.LastModified()
	}
	if e.Response != nil {
		if e.Response.Request != nil && e.Response.Request.URL != nil {
			f.CurrentURL = e.Response.Request.URL.String()
		}
		if etag := e.Response.Header.Get("ETag"); etag != "" {
			f.EntityTag = etag
		}
		if lm := e.Response.Header.Get("Last-Modified"); lm != "" {
			f.LastModified = lm
		}
	}
	return resume.New(f)
}

func (d *downloadTarget) discard(e *request.Execution) {
	_ = os.Remove(d.temp)
	e.DownloadPath = ""
}

func (d *downloadTarget) move() error {
	path := d.dest.Path
	if d.dest.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil {
		if !d.dest.Overwrite {
			return &fs.PathError{Op: "move", Path: path, Err: fs.ErrExist}
		}
		if err = os.Remove(path); err != nil {
			return err
		}
	}
	if err := os.Rename(d.temp, path); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return err
		}
		if err = copyFile(d.temp, path); err != nil {
			return err
		}
		_ = os.Remove(d.temp)
	}
	return nil
}

// copyFile copies src to dst when a rename is impossible, for example
// across file systems.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

// resumeTarget continues from state's temporary file, or starts over
// if the file is gone or shorter than the bytes the state claims.
func resumeTarget(state *resume.State, dest Destination) *downloadTarget {
	d := &downloadTarget{dest: dest, state: state}
	fi, err := os.Stat(state.TempFile())
	if err != nil || fi.IsDir() || fi.Size() < state.BytesReceived() {
		return d
	}
	d.temp = state.TempFile()
	d.offset = state.BytesReceived()
	return d
}

func resumePlan(state *resume.State) (*request.Plan, error) {
	p, err := request.NewPlan(http.MethodGet, state.CurrentURL(), nil)
	if err != nil {
		return &request.Plan{Method: http.MethodGet}, err
	}
	return p, nil
}
