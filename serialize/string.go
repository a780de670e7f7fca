// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package serialize

import (
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gogama/reqx/reqerr"
	"golang.org/x/net/html/charset"
)

// String decodes the response data as text. Its empty value is "".
//
// The character encoding is Encoding if set, otherwise the charset
// parameter of the response Content-Type, otherwise UTF-8. Encodings are
// named by their WHATWG labels, for example "iso-8859-1" or "shift_jis".
type String struct {
	Options
	Encoding string
}

// Serialize decodes the response data.
func (s String) Serialize(req *http.Request, resp *http.Response, data []byte, err error) (string, error) {
	if err != nil {
		return "", err
	}
	out, empty, err := s.prepare(req, resp, data)
	if err != nil || empty {
		return "", err
	}

	label := s.label(resp)
	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", reqerr.New(reqerr.ResponseSerializationFailed, ReasonStringSerializationFailed, "encoding %q", label)
	}
	if name == "utf-8" {
		// The UTF-8 decoder substitutes U+FFFD; reject invalid input instead.
		if !utf8.Valid(out) {
			return "", reqerr.New(reqerr.ResponseSerializationFailed, ReasonStringSerializationFailed, "encoding %q", label)
		}
		return string(out), nil
	}
	decoded, err := enc.NewDecoder().Bytes(out)
	if err != nil {
		return "", reqerr.Wrap(reqerr.ResponseSerializationFailed, ReasonStringSerializationFailed, err, "encoding %q", label)
	}
	if !utf8.Valid(decoded) {
		return "", reqerr.New(reqerr.ResponseSerializationFailed, ReasonStringSerializationFailed, "encoding %q", label)
	}
	return string(decoded), nil
}

func (s String) label(resp *http.Response) string {
	if s.Encoding != "" {
		return strings.ToLower(strings.TrimSpace(s.Encoding))
	}
	if resp != nil {
		if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
			if cs := strings.TrimSpace(params["charset"]); cs != "" {
				return strings.ToLower(cs)
			}
		}
	}
	return "utf-8"
}
