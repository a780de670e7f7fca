// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package form

import (
	"encoding/json"
	"net/url"
	"reflect"
	"sort"
	"time"

	"github.com/gogama/reqx/reqerr"
)

// A Node is one element of the tree a form is encoded from. The concrete
// node types are Scalar, *Array, *Dictionary, Nested and Null.
//
// Containers may also hold plain Go values, which are converted to nodes
// by ValueOf as the encoder reaches them.
type Node interface {
	isNode()
}

// Scalar is a leaf value. V is a string, bool, integer, float,
// json.Number, time.Time or []byte.
type Scalar struct {
	V interface{}
}

// Array is an ordered list of values.
type Array struct {
	Elements []interface{}
}

// An Entry is one key and its value in a Dictionary.
type Entry struct {
	Key   string
	Value interface{}
}

// Dictionary is an ordered list of keyed values. Entry order is kept
// verbatim by the encoder unless sorted keys are requested. Duplicate
// keys are encoded once per entry.
type Dictionary struct {
	Entries []Entry
}

// Nested is a value that describes itself through a Marshaler.
type Nested struct {
	Marshaler Marshaler
}

// Null is an absent value. Encoding a Null anywhere in a form fails.
type Null struct{}

func (Scalar) isNode()      {}
func (*Array) isNode()      {}
func (*Dictionary) isNode() {}
func (Nested) isNode()      {}
func (Null) isNode()        {}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{}
}

// Add appends an entry and returns d so calls can be chained.
func (d *Dictionary) Add(key string, value interface{}) *Dictionary {
	d.Entries = append(d.Entries, Entry{Key: key, Value: value})
	return d
}

// NewArray returns an array holding the given elements.
func NewArray(elements ...interface{}) *Array {
	return &Array{Elements: elements}
}

// ValueOf converts a Go value to a Node.
//
// Nodes are returned unchanged and a Marshaler becomes a Nested. Strings,
// booleans, numbers, json.Number, time.Time and []byte become a Scalar.
// Maps with string keys become a Dictionary in sorted key order, since
// Go maps carry no order of their own, and url.Values becomes a
// Dictionary with one entry per value. Other slices and arrays become an
// Array. Pointers are followed and nil becomes Null. Any other type,
// including structs that do not implement Marshaler, fails with reason
// ReasonUnsupportedValueType.
func ValueOf(v interface{}) (Node, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Node:
		if isNilPointer(x) {
			return Null{}, nil
		}
		return x, nil
	case Marshaler:
		if isNilPointer(x) {
			return Null{}, nil
		}
		return Nested{Marshaler: x}, nil
	case string, bool, json.Number, time.Time, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Scalar{V: x}, nil
	case *time.Time:
		if x == nil {
			return Null{}, nil
		}
		return Scalar{V: *x}, nil
	case url.Values:
		return valuesDictionary(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Null{}, nil
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		d := &Dictionary{Entries: make([]Entry, len(keys))}
		for i, k := range keys {
			d.Entries[i] = Entry{Key: k.String(), Value: rv.MapIndex(k).Interface()}
		}
		return d, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, nil
		}
		a := &Array{Elements: make([]interface{}, rv.Len())}
		for i := range a.Elements {
			a.Elements[i] = rv.Index(i).Interface()
		}
		return a, nil
	case reflect.String:
		return Scalar{V: rv.String()}, nil
	case reflect.Bool:
		return Scalar{V: rv.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Scalar{V: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Scalar{V: rv.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return Scalar{V: rv.Float()}, nil
	}

	return nil, reqerr.New(reqerr.ParameterEncodingFailed, ReasonUnsupportedValueType, "%T", v)
}

func valuesDictionary(vs url.Values) *Dictionary {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := &Dictionary{}
	for _, k := range keys {
		for _, v := range vs[k] {
			d.Entries = append(d.Entries, Entry{Key: k, Value: v})
		}
	}
	return d
}

func isNilPointer(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
