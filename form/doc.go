// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package form encodes keyed trees of values as URL-encoded form data.

The input to an Encoder is a tree of nodes whose root must be a keyed
container. Nested dictionaries produce bracketed key paths and arrays
produce repeated keys:

	d := form.NewDictionary().
		Add("a", form.NewDictionary().Add("b", "b")).
		Add("tags", []string{"x", "y"})
	s, err := new(form.Encoder).EncodeToString(d)
	// s == "a%5Bb%5D=b&tags%5B%5D=x&tags%5B%5D=y"

Plain Go maps, slices and scalars are accepted anywhere in the tree. Go
maps have no order, so their keys are encoded sorted. Types that need a
specific field order describe themselves by implementing Marshaler.
*/
package form
