// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package form

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// A KeyEncoding rewrites a dictionary key. Any func(string) string may
// be used as a custom encoding.
type KeyEncoding func(key string) string

// Built-in key encodings.
var (
	// SnakeCaseKeys turns userID and UserName into user_id and
	// user_name.
	SnakeCaseKeys KeyEncoding = func(key string) string { return separate(key, '_') }
	// KebabCaseKeys turns userID and UserName into user-id and
	// user-name.
	KebabCaseKeys KeyEncoding = func(key string) string { return separate(key, '-') }
	UpperCaseKeys KeyEncoding = strings.ToUpper
	LowerCaseKeys KeyEncoding = strings.ToLower
	// CapitalizedKeys upper-cases the first letter.
	CapitalizedKeys KeyEncoding = capitalize
)

// separate splits camel-case words and joins them lower-cased with sep.
// A word boundary sits before an upper-case letter that follows a
// lower-case letter or digit, and before the last upper-case letter of
// an acronym that is followed by a lower-case letter.
func separate(key string, sep byte) string {
	rs := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(sep)
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func capitalize(key string) string {
	r, n := utf8.DecodeRuneInString(key)
	if n == 0 || r == utf8.RuneError {
		return key
	}
	return string(unicode.ToUpper(r)) + key[n:]
}
