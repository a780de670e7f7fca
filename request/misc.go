// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"io"

	"github.com/gogama/reqx/reqerr"
)

// ReasonInvalidBodyType means a plan body was given as a type that
// BodyBytes does not accept. It is reported with kind
// reqerr.URLRequestValidationFailed.
const ReasonInvalidBodyType reqerr.Reason = "invalidBodyType"

// BodyBytes converts the body argument of NewPlan to bytes.
//
// A nil body yields nil. A string or []byte is converted directly, with
// a []byte returned as is. Any io.Reader is read to the end, and closed
// afterward if it is also an io.Closer; a read or close error is
// returned unchanged. Every other type fails with reason
// ReasonInvalidBodyType.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case io.Reader:
		return readBody(x)
	}
	return nil, reqerr.New(reqerr.URLRequestValidationFailed, ReasonInvalidBodyType,
		"%T (use nil, string, []byte or io.Reader)", body)
}

func readBody(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if c, ok := r.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
