// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqx

import (
	"net/http"
	"os"

	"github.com/gogama/reqx/multipart"
	"github.com/gogama/reqx/request"
)

// uploadPlan copies p for a multipart upload. The copy has no body
// source yet, and a plan without a method becomes a POST.
func uploadPlan(p *request.Plan, fd *multipart.FormData) *request.Plan {
	if p == nil {
		panic("reqx: nil plan")
	}
	p2 := p.WithContext(p.Context())
	if p2.Method == "" {
		p2.Method = http.MethodPost
	}
	p2.Header = p.Header.Clone()
	if p2.Header == nil {
		p2.Header = make(http.Header)
	}
	p2.Header.Set("Content-Type", fd.ContentType())
	p2.Body = nil
	p2.BodyFile = ""
	p2.BodyStream = nil
	p2.BodyLength = 0
	return p2
}

func (r *Request) prepareUpload(fd *multipart.FormData) error {
	if err := fd.Err(); err != nil {
		return err
	}
	if fd.EncodedLength() <= multipart.EncodingMemoryThreshold {
		b, err := fd.Encode()
		if err != nil {
			return err
		}
		r.plan.Body = b
		return nil
	}

	f, err := os.CreateTemp("", "reqx-upload-*")
	if err != nil {
		return err
	}
	path := f.Name()
	_ = f.Close()
	// WriteEncodedData refuses to overwrite an existing file.
	if err = os.Remove(path); err != nil {
		return err
	}
	if err = fd.WriteEncodedData(path); err != nil {
		return err
	}
	r.plan.BodyFile = path
	r.cleanups = append(r.cleanups, func() {
		_ = os.Remove(path)
	})
	return nil
}
