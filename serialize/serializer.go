// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package serialize

import (
	"bytes"
	"net/http"

	"github.com/gogama/reqx/reqerr"
)

// Reasons reported with kind reqerr.ResponseSerializationFailed.
const (
	ReasonInputDataNilOrZeroLength  reqerr.Reason = "inputDataNilOrZeroLength"
	ReasonStringSerializationFailed reqerr.Reason = "stringSerializationFailed"
	ReasonJSONSerializationFailed   reqerr.Reason = "jsonSerializationFailed"
	ReasonDecodingFailed            reqerr.Reason = "decodingFailed"
	ReasonInvalidEmptyResponse      reqerr.Reason = "invalidEmptyResponse"
)

// DefaultEmptyResponseCodes are the status codes for which an empty body
// is acceptable when a serializer does not say otherwise.
var DefaultEmptyResponseCodes = []int{http.StatusNoContent, http.StatusResetContent}

// DefaultEmptyRequestMethods are the request methods for which an empty
// body is acceptable when a serializer does not say otherwise.
var DefaultEmptyRequestMethods = []string{http.MethodHead}

// A Serializer produces a value of type T from a completed exchange.
// Either of req and resp may be nil.
//
// Implementations of Serializer must be safe for concurrent use by
// multiple goroutines.
type Serializer[T any] interface {
	Serialize(req *http.Request, resp *http.Response, data []byte, err error) (T, error)
}

// Func adapts an ordinary function to the Serializer interface.
type Func[T any] func(req *http.Request, resp *http.Response, data []byte, err error) (T, error)

// Serialize calls f(req, resp, data, err).
func (f Func[T]) Serialize(req *http.Request, resp *http.Response, data []byte, err error) (T, error) {
	return f(req, resp, data, err)
}

// A DataPreprocessor transforms response data before it is serialized.
// It is only called with non-empty data.
type DataPreprocessor interface {
	Preprocess(data []byte) ([]byte, error)
}

// PreprocessorFunc adapts an ordinary function to the DataPreprocessor
// interface.
type PreprocessorFunc func(data []byte) ([]byte, error)

// Preprocess calls f(data).
func (f PreprocessorFunc) Preprocess(data []byte) ([]byte, error) {
	return f(data)
}

// PassthroughPreprocessor returns data unchanged.
var PassthroughPreprocessor DataPreprocessor = PreprocessorFunc(func(data []byte) ([]byte, error) {
	return data, nil
})

var googleXSSIPrefix = []byte(")]}',\n")

// GoogleXSSIPreprocessor removes the ")]}',\n" prefix that some APIs
// place in front of JSON to prevent cross-site script inclusion.
var GoogleXSSIPreprocessor DataPreprocessor = PreprocessorFunc(func(data []byte) ([]byte, error) {
	return bytes.TrimPrefix(data, googleXSSIPrefix), nil
})

// Options holds the settings shared by the serializers in this package.
// The zero value uses PassthroughPreprocessor, DefaultEmptyResponseCodes
// and DefaultEmptyRequestMethods.
type Options struct {
	Preprocessor        DataPreprocessor
	EmptyResponseCodes  []int
	EmptyRequestMethods []string
}

// EmptyAllowed reports whether empty data is acceptable for the given
// exchange.
func (o Options) EmptyAllowed(req *http.Request, resp *http.Response) bool {
	if resp == nil {
		return true
	}

	codes := o.EmptyResponseCodes
	if codes == nil {
		codes = DefaultEmptyResponseCodes
	}
	for _, code := range codes {
		if resp.StatusCode == code {
			return true
		}
	}

	if req == nil {
		req = resp.Request
	}
	if req == nil {
		return false
	}
	methods := o.EmptyRequestMethods
	if methods == nil {
		methods = DefaultEmptyRequestMethods
	}
	for _, m := range methods {
		if req.Method == m {
			return true
		}
	}
	return false
}

// prepare runs the shared part of the serializer contract. It returns
// the preprocessed data, or empty as true when the serializer should
// return its empty value.
func (o Options) prepare(req *http.Request, resp *http.Response, data []byte) (out []byte, empty bool, err error) {
	if len(data) > 0 {
		p := o.Preprocessor
		if p == nil {
			p = PassthroughPreprocessor
		}
		if data, err = p.Preprocess(data); err != nil {
			return nil, false, err
		}
	}
	if len(data) > 0 {
		return data, false, nil
	}
	if o.EmptyAllowed(req, resp) {
		return nil, true, nil
	}
	return nil, false, reqerr.New(reqerr.ResponseSerializationFailed, ReasonInputDataNilOrZeroLength, "")
}

// Data serializes the raw response bytes. Its empty value is an empty,
// non-nil slice.
type Data struct {
	Options
}

// Serialize returns the (preprocessed) response data.
func (s Data) Serialize(req *http.Request, resp *http.Response, data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	out, empty, err := s.prepare(req, resp, data)
	if err != nil {
		return nil, err
	}
	if empty {
		return []byte{}, nil
	}
	return out, nil
}
