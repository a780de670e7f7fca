// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package multipart

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogama/reqx/reqerr"
	"github.com/google/uuid"
)

// EncodingMemoryThreshold is the encoded size, in bytes, above which
// uploads are encoded to a temporary file instead of memory.
const EncodingMemoryThreshold = 10_000_000

// Reasons reported with kind reqerr.MultipartEncodingFailed.
const (
	ReasonBodyPartURLInvalid                     reqerr.Reason = "bodyPartURLInvalid"
	ReasonBodyPartFilenameInvalid                reqerr.Reason = "bodyPartFilenameInvalid"
	ReasonBodyPartFileNotReachable               reqerr.Reason = "bodyPartFileNotReachable"
	ReasonBodyPartFileNotReachableWithError      reqerr.Reason = "bodyPartFileNotReachableWithError"
	ReasonBodyPartFileIsDirectory                reqerr.Reason = "bodyPartFileIsDirectory"
	ReasonBodyPartFileSizeNotAvailable           reqerr.Reason = "bodyPartFileSizeNotAvailable"
	ReasonBodyPartFileSizeQueryFailedWithError   reqerr.Reason = "bodyPartFileSizeQueryFailedWithError"
	ReasonBodyPartInputStreamCreationFailed      reqerr.Reason = "bodyPartInputStreamCreationFailed"
	ReasonOutputStreamCreationFailed             reqerr.Reason = "outputStreamCreationFailed"
	ReasonOutputStreamFileAlreadyExists          reqerr.Reason = "outputStreamFileAlreadyExists"
	ReasonOutputStreamURLInvalid                 reqerr.Reason = "outputStreamURLInvalid"
	ReasonOutputStreamWriteFailed                reqerr.Reason = "outputStreamWriteFailed"
	ReasonInputStreamReadFailed                  reqerr.Reason = "inputStreamReadFailed"
	ReasonUnexpectedInputStreamLength            reqerr.Reason = "unexpectedInputStreamLength"
	ReasonInvalidStreamLength                    reqerr.Reason = "invalidStreamLength"
	ReasonBodyPartStreamPositionQueryFailed      reqerr.Reason = "bodyPartStreamPositionQueryFailed"
)

const crlf = "\r\n"

// A LengthError reports a part body whose length differs from the
// length declared when it was appended.
type LengthError struct {
	Expected int64
	Actual   int64
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("expected %d bytes, got %d", e.Expected, e.Actual)
}

// FormData is an ordered list of multipart/form-data body parts sharing
// one boundary.
type FormData struct {
	boundary string
	parts    []*bodyPart
	err      error
}

type bodyPart struct {
	headers string
	length  int64

	data   []byte
	path   string
	stream io.Reader
	offset int64
	seeker io.Seeker
}

// New returns an empty FormData with a random boundary.
func New() *FormData {
	return NewWithBoundary("reqx.boundary." + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewWithBoundary returns an empty FormData using the given boundary.
// The boundary must not occur in any part body.
func NewWithBoundary(boundary string) *FormData {
	return &FormData{boundary: boundary}
}

// Boundary returns the boundary token. It is fixed for the lifetime of
// fd.
func (fd *FormData) Boundary() string {
	return fd.boundary
}

// ContentType returns the Content-Type header value for the encoded
// body.
func (fd *FormData) ContentType() string {
	return "multipart/form-data; boundary=" + fd.boundary
}

// Err returns the first error recorded while appending parts.
func (fd *FormData) Err() error {
	return fd.err
}

// Len returns the number of parts.
func (fd *FormData) Len() int {
	return len(fd.parts)
}

// ContentLength returns the sum of the part body lengths, excluding all
// boundaries and part headers.
func (fd *FormData) ContentLength() int64 {
	var n int64
	for _, p := range fd.parts {
		n += p.length
	}
	return n
}

// EncodedLength returns the exact length of the encoded body.
func (fd *FormData) EncodedLength() int64 {
	if len(fd.parts) == 0 {
		return 0
	}
	var n int64
	for i, p := range fd.parts {
		n += int64(len(fd.openingBoundary(i))) + int64(len(p.headers)) + p.length
	}
	return n + int64(len(fd.closingBoundary()))
}

// Append adds an in-memory part. Empty fileName and mimeType are
// omitted from the part headers.
func (fd *FormData) Append(data []byte, name, fileName, mimeType string) {
	fd.parts = append(fd.parts, &bodyPart{
		headers: partHeaders(name, fileName, mimeType),
		length:  int64(len(data)),
		data:    data,
	})
}

// AppendFile adds a part streamed from the file at path, which may be a
// plain path or a file:// URL. The file name is the last element of the
// path and the MIME type is inferred from its extension, defaulting to
// application/octet-stream.
func (fd *FormData) AppendFile(path, name string) {
	fd.AppendFileAs(path, name, "", "")
}

// AppendFileAs adds a part streamed from the file at path with the given
// file name and MIME type. An empty fileName or mimeType is inferred as
// by AppendFile.
//
// The file is checked, in order, for being a file reference, having a
// file name, being reachable, not being a directory and having a known
// size. The first failed check is recorded and returned by every later
// encode.
func (fd *FormData) AppendFileAs(path, name, fileName, mimeType string) {
	if fd.err != nil {
		return
	}
	p, size, err := checkFile(path)
	if err != nil {
		fd.err = err
		return
	}
	if fileName == "" {
		fileName = filepath.Base(p)
	}
	if mimeType == "" {
		mimeType = mimeTypeOf(p)
	}
	fd.parts = append(fd.parts, &bodyPart{
		headers: partHeaders(name, fileName, mimeType),
		length:  size,
		path:    p,
	})
}

// AppendStream adds a part whose body is exactly length bytes read from
// r. If r is an io.Seeker, its current position is remembered and it is
// rewound there before every encode, so repeated encodes produce
// identical output.
func (fd *FormData) AppendStream(r io.Reader, length int64, name, fileName, mimeType string) {
	if fd.err != nil {
		return
	}
	if length < 0 {
		fd.err = reqerr.New(reqerr.MultipartEncodingFailed, ReasonInvalidStreamLength, "%d", length)
		return
	}
	part := &bodyPart{
		headers: partHeaders(name, fileName, mimeType),
		length:  length,
		stream:  r,
	}
	if s, ok := r.(io.Seeker); ok {
		off, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			fd.err = reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonBodyPartStreamPositionQueryFailed, err, "")
			return
		}
		part.seeker = s
		part.offset = off
	}
	fd.parts = append(fd.parts, part)
}

// Encode returns the whole encoded body. On failure it returns no data.
func (fd *FormData) Encode() ([]byte, error) {
	if fd.err != nil {
		return nil, fd.err
	}
	var buf bytes.Buffer
	if n := fd.EncodedLength(); n <= EncodingMemoryThreshold {
		buf.Grow(int(n))
	}
	if _, err := fd.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo streams the encoded body to w. On failure, w may have received
// part of the body.
func (fd *FormData) WriteTo(w io.Writer) (int64, error) {
	if fd.err != nil {
		return 0, fd.err
	}
	cw := &countingWriter{w: w}
	for i, p := range fd.parts {
		if _, err := io.WriteString(cw, fd.openingBoundary(i)); err != nil {
			return cw.n, writeFailed(err)
		}
		if _, err := io.WriteString(cw, p.headers); err != nil {
			return cw.n, writeFailed(err)
		}
		if err := p.writeBody(cw); err != nil {
			return cw.n, err
		}
	}
	if len(fd.parts) > 0 {
		if _, err := io.WriteString(cw, fd.closingBoundary()); err != nil {
			return cw.n, writeFailed(err)
		}
	}
	return cw.n, nil
}

// WriteEncodedData writes the encoded body to a new file at path, which
// may be a plain path or a file:// URL. It fails if the file already
// exists, and removes the partially written file on any other failure.
func (fd *FormData) WriteEncodedData(path string) (err error) {
	if fd.err != nil {
		return fd.err
	}
	p, ok := filePath(path)
	if !ok || p == "" {
		return reqerr.New(reqerr.MultipartEncodingFailed, ReasonOutputStreamURLInvalid, "%q", path)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonOutputStreamFileAlreadyExists, err, "")
	} else if err != nil {
		return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonOutputStreamCreationFailed, err, "")
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(p)
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err = fd.WriteTo(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return writeFailed(err)
	}
	if err = f.Close(); err != nil {
		return writeFailed(err)
	}
	return nil
}

func (fd *FormData) openingBoundary(i int) string {
	if i == 0 {
		return "--" + fd.boundary + crlf
	}
	return crlf + "--" + fd.boundary + crlf
}

func (fd *FormData) closingBoundary() string {
	return crlf + "--" + fd.boundary + "--" + crlf
}

func (p *bodyPart) writeBody(w io.Writer) error {
	switch {
	case p.path != "":
		f, err := os.Open(p.path)
		if err != nil {
			return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonBodyPartInputStreamCreationFailed, err, "")
		}
		defer func() { _ = f.Close() }()
		return copyExactly(w, f, p.length)
	case p.stream != nil:
		if p.seeker != nil {
			if _, err := p.seeker.Seek(p.offset, io.SeekStart); err != nil {
				return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonInputStreamReadFailed, err, "")
			}
		}
		return copyExactly(w, p.stream, p.length)
	default:
		if _, err := w.Write(p.data); err != nil {
			return writeFailed(err)
		}
		return nil
	}
}

// copyExactly copies n bytes from r to w and then checks that r is
// exhausted.
func copyExactly(w io.Writer, r io.Reader, n int64) error {
	buf := make([]byte, 32*1024)
	var copied int64
	for copied < n {
		chunk := buf
		if rem := n - copied; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}
		nr, rerr := r.Read(chunk)
		if nr > 0 {
			nw, werr := w.Write(chunk[:nr])
			copied += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return writeFailed(werr)
			}
		}
		if rerr == io.EOF {
			if copied < n {
				return lengthMismatch(n, copied)
			}
			return nil
		} else if rerr != nil {
			return readFailed(rerr)
		}
	}

	var one [1]byte
	for {
		nr, rerr := r.Read(one[:])
		if nr > 0 {
			extra, _ := io.Copy(io.Discard, r)
			return lengthMismatch(n, n+int64(nr)+extra)
		}
		if rerr == io.EOF {
			return nil
		} else if rerr != nil {
			return readFailed(rerr)
		}
	}
}

func lengthMismatch(expected, actual int64) error {
	return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonUnexpectedInputStreamLength,
		&LengthError{Expected: expected, Actual: actual}, "")
}

func readFailed(err error) error {
	return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonInputStreamReadFailed, err, "")
}

func writeFailed(err error) error {
	if reqerr.Is(err, reqerr.MultipartEncodingFailed) {
		return err
	}
	return reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonOutputStreamWriteFailed, err, "")
}

func checkFile(path string) (string, int64, error) {
	p, ok := filePath(path)
	if !ok {
		return "", 0, reqerr.New(reqerr.MultipartEncodingFailed, ReasonBodyPartURLInvalid, "%q", path)
	}
	base := filepath.Base(p)
	if p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(filepath.Separator)) ||
		base == "." || base == ".." || base == string(filepath.Separator) {
		return "", 0, reqerr.New(reqerr.MultipartEncodingFailed, ReasonBodyPartFilenameInvalid, "%q", path)
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", 0, reqerr.New(reqerr.MultipartEncodingFailed, ReasonBodyPartFileNotReachable, "%q", path)
	} else if err != nil {
		return "", 0, reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonBodyPartFileNotReachableWithError, err, "%q", path)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return "", 0, reqerr.Wrap(reqerr.MultipartEncodingFailed, ReasonBodyPartFileSizeQueryFailedWithError, err, "%q", path)
	}
	if fi.IsDir() {
		return "", 0, reqerr.New(reqerr.MultipartEncodingFailed, ReasonBodyPartFileIsDirectory, "%q", path)
	}
	if !fi.Mode().IsRegular() {
		return "", 0, reqerr.New(reqerr.MultipartEncodingFailed, ReasonBodyPartFileSizeNotAvailable, "%q", path)
	}
	return p, fi.Size(), nil
}

// filePath converts a plain path or file:// URL to a path. It reports
// false for URLs of any other scheme.
func filePath(s string) (string, bool) {
	if !strings.Contains(s, "://") {
		return s, true
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "file" || (u.Host != "" && u.Host != "localhost") {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func mimeTypeOf(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

var (
	dispositionEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "%0D", "\n", "%0A")
	headerValueEscaper = strings.NewReplacer("\r", "%0D", "\n", "%0A")
)

func partHeaders(name, fileName, mimeType string) string {
	var b strings.Builder
	b.WriteString(`Content-Disposition: form-data; name="`)
	b.WriteString(dispositionEscaper.Replace(name))
	b.WriteByte('"')
	if fileName != "" {
		b.WriteString(`; filename="`)
		b.WriteString(dispositionEscaper.Replace(fileName))
		b.WriteByte('"')
	}
	b.WriteString(crlf)
	if mimeType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(headerValueEscaper.Replace(mimeType))
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return b.String()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
