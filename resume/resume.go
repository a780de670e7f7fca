// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package resume holds the state needed to continue an interrupted
// download.
//
// A State is an immutable JSON document. It can be persisted with Bytes
// and restored with Parse, and the URLs embedded in it can be replaced,
// for example when a signed download URL has expired:
//
//	{"version":1,"originalURL":"https://example.com/f","currentURL":"https://cdn.example.com/f",
//	 "tempFile":"/tmp/reqx-download-123","bytesReceived":4096,"entityTag":"\"abc\"",
//	 "lastModified":"Wed, 21 Oct 2015 07:28:00 GMT"}
package resume

import (
	"errors"
	"net/url"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Version is the document version written by New.
const Version = 1

// ErrInvalidFormat is returned when resume data cannot be parsed.
var ErrInvalidFormat = errors.New("reqx/resume: invalid resume data format")

const (
	keyVersion       = "version"
	keyOriginalURL   = "originalURL"
	keyCurrentURL    = "currentURL"
	keyTempFile      = "tempFile"
	keyBytesReceived = "bytesReceived"
	keyEntityTag     = "entityTag"
	keyLastModified  = "lastModified"
)

// Fields are the values of a new State.
type Fields struct {
	OriginalURL   string
	CurrentURL    string
	TempFile      string
	BytesReceived int64
	EntityTag     string
	LastModified  string
}

// State is parsed resume data. It is safe for concurrent use.
type State struct {
	raw []byte

	once sync.Once
	urls []*url.URL
	err  error
}

// New builds a State from its fields.
func New(f Fields) (*State, error) {
	raw := []byte("{}")
	var err error
	set := func(key string, v interface{}) {
		if err == nil {
			raw, err = sjson.SetBytes(raw, key, v)
		}
	}
	set(keyVersion, Version)
	set(keyOriginalURL, f.OriginalURL)
	set(keyCurrentURL, f.CurrentURL)
	set(keyTempFile, f.TempFile)
	set(keyBytesReceived, f.BytesReceived)
	if f.EntityTag != "" {
		set(keyEntityTag, f.EntityTag)
	}
	if f.LastModified != "" {
		set(keyLastModified, f.LastModified)
	}
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates resume data. It returns ErrInvalidFormat if data is
// not a JSON object, lacks a non-empty currentURL string, lacks a
// non-negative integer bytesReceived, has an embedded URL that does not
// parse, or has a version newer than Version.
func Parse(data []byte) (*State, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidFormat
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrInvalidFormat
	}
	if v := doc.Get(keyVersion); v.Exists() && (v.Type != gjson.Number || v.Int() > Version) {
		return nil, ErrInvalidFormat
	}
	if u := doc.Get(keyCurrentURL); u.Type != gjson.String || u.Str == "" {
		return nil, ErrInvalidFormat
	}
	for _, key := range []string{keyOriginalURL, keyCurrentURL} {
		if v := doc.Get(key); v.Type == gjson.String && v.Str != "" {
			if _, err := url.Parse(v.Str); err != nil {
				return nil, ErrInvalidFormat
			}
		}
	}
	if n := doc.Get(keyBytesReceived); n.Type != gjson.Number || n.Num < 0 || n.Num != float64(n.Int()) {
		return nil, ErrInvalidFormat
	}
	for _, key := range []string{keyOriginalURL, keyTempFile, keyEntityTag, keyLastModified} {
		if v := doc.Get(key); v.Exists() && v.Type != gjson.String {
			return nil, ErrInvalidFormat
		}
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	return &State{raw: raw}, nil
}

func (s *State) str(key string) string {
	return gjson.GetBytes(s.raw, key).Str
}

// OriginalURL returns the URL the download was first requested from. It
// may be empty.
func (s *State) OriginalURL() string {
	return s.str(keyOriginalURL)
}

// CurrentURL returns the URL the download was receiving from when it was
// interrupted, after any redirects.
func (s *State) CurrentURL() string {
	return s.str(keyCurrentURL)
}

// TempFile returns the path of the partially downloaded file.
func (s *State) TempFile() string {
	return s.str(keyTempFile)
}

// BytesReceived returns the number of bytes in the partially downloaded
// file.
func (s *State) BytesReceived() int64 {
	return gjson.GetBytes(s.raw, keyBytesReceived).Int()
}

// EntityTag returns the ETag of the partially downloaded entity, if the
// server sent one.
func (s *State) EntityTag() string {
	return s.str(keyEntityTag)
}

// LastModified returns the Last-Modified value of the partially
// downloaded entity, if the server sent one.
func (s *State) LastModified() string {
	return s.str(keyLastModified)
}

// URLs returns the parsed original and current URLs, omitting an empty
// original URL. URLs are parsed on first use; each call returns fresh
// copies the caller may modify.
func (s *State) URLs() ([]*url.URL, error) {
	s.once.Do(func() {
		for _, raw := range []string{s.OriginalURL(), s.CurrentURL()} {
			if raw == "" {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil {
				s.err = ErrInvalidFormat
				return
			}
			s.urls = append(s.urls, u)
		}
	})
	if s.err != nil {
		return nil, s.err
	}
	urls := make([]*url.URL, len(s.urls))
	for i, u := range s.urls {
		c := *u
		if u.User != nil {
			user := *u.User
			c.User = &user
		}
		urls[i] = &c
	}
	return urls, nil
}

// ReplaceURL returns a copy of s in which every embedded URL equal to
// from is replaced with to. s itself is not modified.
func (s *State) ReplaceURL(from, to string) (*State, error) {
	raw := s.Bytes()
	for _, key := range []string{keyOriginalURL, keyCurrentURL} {
		if s.str(key) != from {
			continue
		}
		var err error
		if raw, err = sjson.SetBytes(raw, key, to); err != nil {
			return nil, err
		}
	}
	return Parse(raw)
}

// Bytes returns a copy of the resume data.
func (s *State) Bytes() []byte {
	b := make([]byte, len(s.raw))
	copy(b, s.raw)
	return b
}
