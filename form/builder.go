// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package form

// A Marshaler describes a value to the form encoder by opening exactly
// one container, or a scalar, on the Builder it is given.
//
// Implement Marshaler on your own types to make them encodable. The
// order in which entries are set is the order in which they are
// encoded.
type Marshaler interface {
	MarshalForm(b Builder) error
}

// The MarshalerFunc type is an adapter to allow the use of ordinary
// functions as form marshalers.
type MarshalerFunc func(b Builder) error

// MarshalForm calls f(b).
func (f MarshalerFunc) MarshalForm(b Builder) error {
	return f(b)
}

// A Builder receives the description of one value. Only one of its
// methods should be called; if more than one is, the last call wins.
type Builder interface {
	// Keyed opens a keyed container.
	Keyed() KeyedBuilder
	// Array opens an ordered container.
	Array() ArrayBuilder
	// Scalar sets a leaf value. Any value accepted by ValueOf may be
	// given.
	Scalar(v interface{})
}

// A KeyedBuilder adds entries to a keyed container.
type KeyedBuilder interface {
	// Set adds an entry. Any value accepted by ValueOf may be given.
	Set(key string, v interface{}) KeyedBuilder
	// Nested adds an entry holding a new keyed container and returns
	// a builder for it.
	Nested(key string) KeyedBuilder
	// NestedArray adds an entry holding a new ordered container and
	// returns a builder for it.
	NestedArray(key string) ArrayBuilder
}

// An ArrayBuilder adds elements to an ordered container.
type ArrayBuilder interface {
	// Append adds an element. Any value accepted by ValueOf may be
	// given.
	Append(v interface{}) ArrayBuilder
	// Nested appends a new keyed container and returns a builder for
	// it.
	Nested() KeyedBuilder
	// NestedArray appends a new ordered container and returns a
	// builder for it.
	NestedArray() ArrayBuilder
}

// Build runs m against a fresh Builder and returns the node it
// described. A Marshaler that opens nothing describes Null.
func Build(m Marshaler) (Node, error) {
	b := &builder{}
	if err := m.MarshalForm(b); err != nil {
		return nil, err
	}
	if b.root == nil {
		return Null{}, nil
	}
	return b.root, nil
}

type builder struct {
	root Node
}

func (b *builder) Keyed() KeyedBuilder {
	d := &Dictionary{}
	b.root = d
	return keyedBuilder{d}
}

func (b *builder) Array() ArrayBuilder {
	a := &Array{}
	b.root = a
	return arrayBuilder{a}
}

func (b *builder) Scalar(v interface{}) {
	b.root = scalarValue{v}
}

// scalarValue defers conversion of a builder scalar to encode time so
// that ValueOf errors surface with the key path that holds them.
type scalarValue struct {
	v interface{}
}

func (scalarValue) isNode() {}

type keyedBuilder struct {
	d *Dictionary
}

func (k keyedBuilder) Set(key string, v interface{}) KeyedBuilder {
	k.d.Add(key, v)
	return k
}

func (k keyedBuilder) Nested(key string) KeyedBuilder {
	d := &Dictionary{}
	k.d.Add(key, d)
	return keyedBuilder{d}
}

func (k keyedBuilder) NestedArray(key string) ArrayBuilder {
	a := &Array{}
	k.d.Add(key, a)
	return arrayBuilder{a}
}

type arrayBuilder struct {
	a *Array
}

func (b arrayBuilder) Append(v interface{}) ArrayBuilder {
	b.a.Elements = append(b.a.Elements, v)
	return b
}

func (b arrayBuilder) Nested() KeyedBuilder {
	d := &Dictionary{}
	b.a.Elements = append(b.a.Elements, d)
	return keyedBuilder{d}
}

func (b arrayBuilder) NestedArray() ArrayBuilder {
	a := &Array{}
	b.a.Elements = append(b.a.Elements, a)
	return arrayBuilder{a}
}
