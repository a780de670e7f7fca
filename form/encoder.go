// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package form

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/reqx/reqerr"
)

// Reasons reported with kind reqerr.ParameterEncodingFailed.
const (
	// ReasonInvalidRootType means the value being encoded is not a keyed
	// container.
	ReasonInvalidRootType reqerr.Reason = "invalidRootType"
	// ReasonNilValueEncountered means a nil value was found inside the
	// form.
	ReasonNilValueEncountered reqerr.Reason = "nilValueEncountered"
	// ReasonUnsupportedValueType means a value has a type the encoder
	// cannot represent.
	ReasonUnsupportedValueType reqerr.Reason = "unsupportedValueType"
	// ReasonMarshalerFailed means a Marshaler returned an error.
	ReasonMarshalerFailed reqerr.Reason = "marshalerFailed"
)

// ArrayEncoding selects how array element keys are written.
type ArrayEncoding int

const (
	// Brackets writes key[] for every element.
	Brackets ArrayEncoding = iota
	// NoBrackets writes key for every element.
	NoBrackets
	// IndexInBrackets writes key[i] for element i.
	IndexInBrackets
)

// BoolEncoding selects how booleans are written.
type BoolEncoding int

const (
	// NumericBools writes 1 and 0.
	NumericBools BoolEncoding = iota
	// LiteralBools writes true and false.
	LiteralBools
)

// SpaceEncoding selects how the space character is escaped.
type SpaceEncoding int

const (
	// PercentSpaces writes %20.
	PercentSpaces SpaceEncoding = iota
	// PlusSpaces writes +.
	PlusSpaces
)

// KeyPathEncoding selects how the key of a nested dictionary entry is
// joined to its parent key.
type KeyPathEncoding int

const (
	// BracketPaths writes parent[child].
	BracketPaths KeyPathEncoding = iota
	// DotPaths writes parent.child.
	DotPaths
)

// A DateEncoding renders a time.Time leaf. Nil means RFC3339Dates.
type DateEncoding func(t time.Time) string

// Built-in date encodings.
var (
	RFC3339Dates    DateEncoding = func(t time.Time) string { return t.Format(time.RFC3339Nano) }
	UnixSecondDates DateEncoding = func(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
	UnixMilliDates  DateEncoding = func(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }
)

// A DataEncoding renders a []byte leaf. Nil means Base64Data.
type DataEncoding func(b []byte) string

// Base64Data renders bytes with standard padded base64.
var Base64Data DataEncoding = base64.StdEncoding.EncodeToString

// DefaultAllowedChars is the set of bytes left unescaped when
// Encoder.AllowedChars is empty: the RFC 3986 unreserved characters and
// sub-delimiters, except '&', '=' and '+', which are significant in a
// form.
const DefaultAllowedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	"-._~" +
	"!$'()*,;"

// A Pair is one encoded key and value.
type Pair struct {
	Key   string
	Value string
}

// Pairs is the ordered output of an Encoder.
type Pairs []Pair

// String joins the pairs as key=value separated by '&'.
func (ps Pairs) String() string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// An Encoder flattens a keyed tree of values into percent-escaped
// key/value pairs in the application/x-www-form-urlencoded style.
//
// The zero value is ready to use and encodes arrays with brackets,
// booleans as 1 and 0, spaces as %20, nested keys with brackets, dates
// in RFC 3339 and bytes in base64, preserving source order.
//
// An Encoder is safe for concurrent use if its fields are not modified.
type Encoder struct {
	ArrayEncoding   ArrayEncoding
	BoolEncoding    BoolEncoding
	SpaceEncoding   SpaceEncoding
	KeyPathEncoding KeyPathEncoding

	// KeyEncoding rewrites every dictionary key before it is escaped.
	// Nil leaves keys unchanged.
	KeyEncoding KeyEncoding

	DateEncoding DateEncoding
	DataEncoding DataEncoding

	// AllowedChars lists the bytes that are written without escaping.
	// Empty means DefaultAllowedChars.
	AllowedChars string

	// SortedKeys sorts the entries of every dictionary by key before
	// encoding them. Otherwise entries are encoded in source order.
	SortedKeys bool
}

// Encode flattens v into pairs. The root of v must be a keyed container:
// a *Dictionary, a map with string keys, url.Values, or a Marshaler that
// opens a keyed container. Any other root fails with reason
// ReasonInvalidRootType. A nil anywhere inside the form fails with
// reason ReasonNilValueEncountered. No partial output is returned on
// failure.
func (enc *Encoder) Encode(v interface{}) (Pairs, error) {
	root, err := enc.resolve(v)
	if err != nil {
		return nil, err
	}
	d, ok := root.(*Dictionary)
	if !ok {
		return nil, reqerr.New(reqerr.ParameterEncodingFailed, ReasonInvalidRootType, "%s", describe(root))
	}

	s := enc.state()
	if err = s.dictionary("", d); err != nil {
		return nil, err
	}
	return s.pairs, nil
}

// EncodeToString flattens v and joins the pairs with '&'.
func (enc *Encoder) EncodeToString(v interface{}) (string, error) {
	ps, err := enc.Encode(v)
	if err != nil {
		return "", err
	}
	return ps.String(), nil
}

// Escape percent-escapes s using the encoder's allowed characters and
// space encoding.
func (enc *Encoder) Escape(s string) string {
	return enc.state().escape(s)
}

type encodeState struct {
	enc     *Encoder
	allowed [256]bool
	pairs   Pairs
}

func (enc *Encoder) state() *encodeState {
	s := &encodeState{enc: enc}
	chars := enc.AllowedChars
	if chars == "" {
		chars = DefaultAllowedChars
	}
	for i := 0; i < len(chars); i++ {
		s.allowed[chars[i]] = true
	}
	return s
}

// resolve converts v to a node, running marshalers until a concrete
// node results.
func (enc *Encoder) resolve(v interface{}) (Node, error) {
	n, err := ValueOf(v)
	if err != nil {
		return nil, err
	}
	for {
		switch x := n.(type) {
		case Nested:
			n, err = Build(x.Marshaler)
			if err != nil {
				return nil, reqerr.Wrap(reqerr.ParameterEncodingFailed, ReasonMarshalerFailed, err, "")
			}
		case scalarValue:
			n, err = ValueOf(x.v)
			if err != nil {
				return nil, err
			}
		case Scalar:
			if basicScalar(x.V) {
				return n, nil
			}
			// Normalize named kinds and pointers; nil becomes Null.
			n, err = ValueOf(x.V)
			if err != nil {
				return nil, err
			}
		default:
			return n, nil
		}
	}
}

func (s *encodeState) value(path string, v interface{}) error {
	n, err := s.enc.resolve(v)
	if err != nil {
		return err
	}
	switch x := n.(type) {
	case *Dictionary:
		return s.dictionary(path, x)
	case *Array:
		return s.array(path, x)
	case Scalar:
		str, err := s.scalar(x.V)
		if err != nil {
			return err
		}
		s.pairs = append(s.pairs, Pair{Key: s.escape(path), Value: s.escape(str)})
		return nil
	case Null:
		return reqerr.New(reqerr.ParameterEncodingFailed, ReasonNilValueEncountered, "at %q", path)
	default:
		return reqerr.New(reqerr.ParameterEncodingFailed, ReasonUnsupportedValueType, "%T", n)
	}
}

func (s *encodeState) dictionary(path string, d *Dictionary) error {
	entries := d.Entries
	if s.enc.SortedKeys {
		entries = make([]Entry, len(d.Entries))
		copy(entries, d.Entries)
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	}
	for _, e := range entries {
		key := e.Key
		if s.enc.KeyEncoding != nil {
			key = s.enc.KeyEncoding(key)
		}
		if err := s.value(s.child(path, key), e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *encodeState) child(path, key string) string {
	if path == "" {
		return key
	}
	if s.enc.KeyPathEncoding == DotPaths {
		return path + "." + key
	}
	return path + "[" + key + "]"
}

func (s *encodeState) array(path string, a *Array) error {
	for i, e := range a.Elements {
		var p string
		switch s.enc.ArrayEncoding {
		case NoBrackets:
			p = path
		case IndexInBrackets:
			p = path + "[" + strconv.Itoa(i) + "]"
		default:
			p = path + "[]"
		}
		if err := s.value(p, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *encodeState) scalar(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		if s.enc.BoolEncoding == LiteralBools {
			return strconv.FormatBool(x), nil
		}
		if x {
			return "1", nil
		}
		return "0", nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		if s.enc.DateEncoding != nil {
			return s.enc.DateEncoding(x), nil
		}
		return RFC3339Dates(x), nil
	case []byte:
		if s.enc.DataEncoding != nil {
			return s.enc.DataEncoding(x), nil
		}
		return Base64Data(x), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return "", reqerr.New(reqerr.ParameterEncodingFailed, ReasonUnsupportedValueType, "%T", v)
}

func basicScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool, json.Number, time.Time, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

const upperhex = "0123456789ABCDEF"

// escape works byte by byte over the UTF-8 encoding, so invalid UTF-8
// is escaped as-is and never rejected.
func (s *encodeState) escape(str string) string {
	n := 0
	for i := 0; i < len(str); i++ {
		if !s.allowed[str[i]] {
			n++
		}
	}
	if n == 0 {
		return str
	}

	var b strings.Builder
	b.Grow(len(str) + 2*n)
	for i := 0; i < len(str); i++ {
		c := str[i]
		switch {
		case s.allowed[c]:
			b.WriteByte(c)
		case c == ' ' && s.enc.SpaceEncoding == PlusSpaces:
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func describe(n Node) string {
	switch n.(type) {
	case *Array:
		return "array"
	case Scalar:
		return "scalar"
	case Null:
		return "nil"
	default:
		return "unknown"
	}
}
