// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"slices"
	"syscall"
	"testing"

	"github.com/gogama/reqx/reqerr"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Category
	}{
		// Not transient or unrecognized.
		{"nil", nil, Not},
		{"plain", errors.New("foo"), Not},
		{"empty chain", chain{}, Not},
		{"plain in chain", chain{errors.New("bar")}, Not},

		// Timeouts.
		{"ETIMEDOUT", syscall.ETIMEDOUT, Timeout},
		{"net.Error timeout", deadline{true, nil}, Timeout},
		{"deadline exceeded", context.DeadlineExceeded, Timeout},
		{"url.Error ETIMEDOUT", &url.Error{Err: syscall.ETIMEDOUT}, Timeout},
		{"url.Error net.Error", &url.Error{Err: deadline{true, nil}}, Timeout},
		{"chained url.Error", chain{&url.Error{Err: syscall.ETIMEDOUT}}, Timeout},
		{"timeout beats reset", deadline{true, syscall.ECONNRESET}, Timeout},
		{"timeout beats refused", chain{deadline{true, syscall.ECONNREFUSED}}, Timeout},
		{"DNS timeout", &net.DNSError{Name: "slow.example", IsTimeout: true}, Timeout},

		// Connection level.
		{"ECONNRESET", syscall.ECONNRESET, ConnReset},
		{"EPIPE", syscall.EPIPE, ConnReset},
		{"ECONNABORTED", syscall.ECONNABORTED, ConnReset},
		{"unexpected EOF", io.ErrUnexpectedEOF, ConnReset},
		{"chained reset", chain{syscall.ECONNRESET}, ConnReset},
		{"non-timeout over reset", deadline{false, syscall.ECONNRESET}, ConnReset},
		{"ECONNREFUSED", syscall.ECONNREFUSED, ConnRefused},
		{"chained refused", chain{syscall.ECONNREFUSED}, ConnRefused},
		{"deep refused", &url.Error{Err: chain{deadline{false, syscall.ECONNREFUSED}}}, ConnRefused},
		{"EHOSTUNREACH", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, HostUnreachable},
		{"ENETUNREACH", &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, NetUnreachable},
		{"ENETDOWN", syscall.ENETDOWN, NetUnreachable},

		// Name resolution.
		{"host not found", &url.Error{Err: &net.DNSError{Name: "nowhere.invalid", IsNotFound: true}}, CannotFindHost},
		{"DNS temporary", chain{&net.DNSError{Name: "broken.example", IsTemporary: true}}, DNSFailure},

		// TLS.
		{"bad record", tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}, SecureConnectionFailed},
		{"alert", chain{tls.AlertError(40)}, SecureConnectionFailed},
		{"expired", &url.Error{Err: x509.CertificateInvalidError{Reason: x509.Expired}}, CertificateBadDate},
		{"cannot sign", x509.CertificateInvalidError{Reason: x509.NotAuthorizedToSign}, CertificateUntrusted},
		{"unknown authority", x509.UnknownAuthorityError{}, CertificateUntrusted},
		{"hostname", x509.HostnameError{Host: "example.com"}, CertificateUntrusted},
		{"trust evaluation", reqerr.New(reqerr.ServerTrustEvaluationFailed, "noRequiredEvaluator", ""), CertificateUntrusted},

		// Permanent.
		{"cancelled", context.Canceled, Cancelled},
		{"url.Error cancelled", &url.Error{Err: context.Canceled}, Cancelled},
		{"explicitly cancelled", reqerr.New(reqerr.ExplicitlyCancelled, "", ""), Cancelled},
		{"parse", &url.Error{Op: "parse", Err: errors.New("bad")}, BadURL},
		{"escape", url.EscapeError("%zz"), BadURL},
		{"invalid URL", reqerr.New(reqerr.InvalidURL, "", ""), BadURL},
		{"unsupported scheme", &url.Error{Op: "Get", Err: errors.New(`unsupported protocol scheme "gopher"`)}, UnsupportedURL},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, Categorize(testCase.err))
		})
	}
}

func TestCategory_Transient(t *testing.T) {
	transient := TransientCategories()
	assert.NotEmpty(t, transient)
	for c := Not; c < categorySentinel; c++ {
		assert.Equal(t, slices.Contains(transient, c), c.Transient(), c.String())
	}
	for _, c := range []Category{Not, Cancelled, BadURL, UnsupportedURL, CertificateUntrusted} {
		assert.False(t, c.Transient(), c.String())
	}
}

func TestCategory_String(t *testing.T) {
	assert.Len(t, categoryNames, int(categorySentinel))
	seen := make(map[string]Category)
	for c := Not; c < categorySentinel; c++ {
		name := c.String()
		assert.NotEqual(t, "Category(?)", name)
		assert.NotContains(t, seen, name, "duplicate name")
		seen[name] = c
	}
	assert.Equal(t, "ConnReset", ConnReset.String())
	assert.Equal(t, "Category(?)", Category(-1).String())
	assert.Equal(t, "Category(?)", categorySentinel.String())
}

type deadline struct {
	timeout bool
	err     error
}

func (d deadline) Error() string {
	return "deadline"
}

func (d deadline) Timeout() bool {
	return d.timeout
}

func (d deadline) Unwrap() error {
	return d.err
}

type chain struct {
	err error
}

func (c chain) Error() string {
	if c.err == nil {
		return "chain"
	}
	return "chain: " + c.err.Error()
}

func (c chain) Unwrap() error {
	return c.err
}
