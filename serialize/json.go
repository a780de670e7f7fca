// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package serialize

import (
	"bytes"
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/gogama/reqx/reqerr"
)

// JSON parses the response data into generic JSON values: maps, slices,
// strings, float64 (or json.Number), bools and nil. Its empty value is
// nil.
type JSON struct {
	Options
	UseNumber bool
}

// Serialize parses the response data.
func (s JSON) Serialize(req *http.Request, resp *http.Response, data []byte, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	out, empty, err := s.prepare(req, resp, data)
	if err != nil || empty {
		return nil, err
	}

	var v interface{}
	if err = decodeJSON(out, &v, s.UseNumber); err != nil {
		return nil, reqerr.Wrap(reqerr.ResponseSerializationFailed, ReasonJSONSerializationFailed, err, "")
	}
	return v, nil
}

// Empty is the value Decodable produces for an acceptable empty
// response when T is Empty.
type Empty struct{}

// EmptyResponse is implemented by types that have a value to use when
// the server legitimately returns no body. EmptyValue is called on the
// zero value of the type and must return a value of that type.
type EmptyResponse interface {
	EmptyValue() interface{}
}

// A Decoder decodes data into the value pointed to by v.
type Decoder interface {
	Decode(data []byte, v interface{}) error
}

// DecoderFunc adapts an ordinary function to the Decoder interface.
type DecoderFunc func(data []byte, v interface{}) error

// Decode calls f(data, v).
func (f DecoderFunc) Decode(data []byte, v interface{}) error {
	return f(data, v)
}

// JSONDecoder decodes one JSON value with encoding/json.
var JSONDecoder Decoder = DecoderFunc(func(data []byte, v interface{}) error {
	return decodeJSON(data, v, false)
})

// Decodable decodes the response data into a T. If Decoder is nil,
// JSONDecoder is used.
//
// An acceptable empty response produces Empty{} when T is Empty, or the
// EmptyValue of T when T implements EmptyResponse. For any other T it
// fails with reason invalidEmptyResponse.
type Decodable[T any] struct {
	Options
	Decoder Decoder
}

// Serialize decodes the response data.
func (s Decodable[T]) Serialize(req *http.Request, resp *http.Response, data []byte, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	out, empty, err := s.prepare(req, resp, data)
	if err != nil {
		return zero, err
	}
	if empty {
		return emptyValue[T]()
	}

	d := s.Decoder
	if d == nil {
		d = JSONDecoder
	}
	var v T
	if err = d.Decode(out, &v); err != nil {
		return zero, reqerr.Wrap(reqerr.ResponseSerializationFailed, ReasonDecodingFailed, err, "%s", typeName[T]())
	}
	return v, nil
}

func emptyValue[T any]() (T, error) {
	var zero T
	switch x := any(zero).(type) {
	case Empty:
		return zero, nil
	case EmptyResponse:
		if v, ok := x.EmptyValue().(T); ok {
			return v, nil
		}
	}
	if x, ok := any(&zero).(EmptyResponse); ok {
		if v, ok := x.EmptyValue().(T); ok {
			return v, nil
		}
	}
	return zero, reqerr.New(reqerr.ResponseSerializationFailed, ReasonInvalidEmptyResponse, "%s", typeName[T]())
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func decodeJSON(data []byte, v interface{}, useNumber bool) error {
	if !useNumber {
		return json.Unmarshal(data, v)
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
