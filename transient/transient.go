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
	"strings"
	"syscall"

	"github.com/gogama/reqx/reqerr"
)

// A Category is the transport-level classification of a particular
// error, as reported by function Categorize().
//
// The category Not means the error carries no recognizable transport
// condition. The remaining categories split into transient conditions,
// where a retry has some prospect of success, and permanent conditions,
// where it has none. Use Category.Transient to tell them apart.
type Category int

const (
	// Not indicates an error with no recognizable transport condition,
	// including the nil error.
	Not Category = iota
	// Timeout indicates a client-side timeout. The server may be going
	// through a temporary period of slowness, or the client may succeed
	// on a future attempt waiting longer (increasing its timeout).
	//
	// Function Categorize() will return Timeout if the error or any of
	// its wrapped causes has a Timeout() function that reports true, or
	// is context.DeadlineExceeded or syscall.ETIMEDOUT.
	Timeout
	// ConnRefused indicates the remote host refused the connection, and
	// corresponds to the POSIX error code ECONNREFUSED.
	//
	// Although connection refusal may be a permanent condition, it is
	// classified as transient because it can happen if the service
	// running on the remote host is in the process of starting or
	// restarting.
	ConnRefused
	// ConnReset indicates an established connection was lost: the
	// remote host returned an RST packet (ECONNRESET), the connection
	// was aborted or broken (ECONNABORTED, EPIPE), or the stream ended
	// before the response was complete (io.ErrUnexpectedEOF).
	//
	// A lost connection tends to indicate a high probability of success
	// on retry.
	ConnReset
	// HostUnreachable indicates no route to the remote host (EHOSTUNREACH,
	// EHOSTDOWN).
	HostUnreachable
	// NetUnreachable indicates the local network is down or has no
	// route at all (ENETUNREACH, ENETDOWN).
	NetUnreachable
	// DNSFailure indicates a DNS lookup failed for a reason other than
	// the name not existing, for example a DNS server timeout.
	DNSFailure
	// CannotFindHost indicates DNS reported that the host name does not
	// exist.
	CannotFindHost
	// SecureConnectionFailed indicates the TLS handshake failed for a
	// reason other than the server certificate, for example a protocol
	// alert or a non-TLS peer.
	SecureConnectionFailed
	// CertificateBadDate indicates the server certificate is expired or
	// not yet valid. The classification is transient because it is
	// commonly caused by clock skew or a certificate being rotated.
	CertificateBadDate

	// The categories below are permanent.

	// Cancelled indicates the request was cancelled.
	Cancelled
	// BadURL indicates the request URL is malformed.
	BadURL
	// UnsupportedURL indicates the URL scheme is not supported by the
	// transport.
	UnsupportedURL
	// CertificateUntrusted indicates the server certificate was rejected
	// by chain validation or a trust evaluator.
	CertificateUntrusted

	categorySentinel
)

var categoryNames = []string{
	"Not",
	"Timeout",
	"ConnRefused",
	"ConnReset",
	"HostUnreachable",
	"NetUnreachable",
	"DNSFailure",
	"CannotFindHost",
	"SecureConnectionFailed",
	"CertificateBadDate",
	"Cancelled",
	"BadURL",
	"UnsupportedURL",
	"CertificateUntrusted",
}

// TransientCategories returns every category for which Transient reports
// true, in declaration order.
func TransientCategories() []Category {
	return []Category{
		Timeout,
		ConnRefused,
		ConnReset,
		HostUnreachable,
		NetUnreachable,
		DNSFailure,
		CannotFindHost,
		SecureConnectionFailed,
		CertificateBadDate,
	}
}

// Transient reports whether a retry after an error of this category has
// some prospect of success.
func (c Category) Transient() bool {
	return c > Not && c < Cancelled
}

// String returns the name of the category.
func (c Category) String() string {
	if c < 0 || c >= categorySentinel {
		return "Category(?)"
	}
	return categoryNames[c]
}

// Categorize returns the transport category of the given error. A nil
// error, and an error with no recognizable transport condition, both
// produce the return value Not.
//
// In assessing the category, Categorize looks at wrapped cause errors
// contained within err, not just err itself. However, Categorize never
// checks if an error has a Temporary() function that returns true, as
// the semantics of Temporary() aren't entirely clear.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	if errors.Is(err, context.Canceled) || reqerr.Is(err, reqerr.ExplicitlyCancelled) {
		return Cancelled
	}

	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		if certInvalid.Reason == x509.Expired {
			return CertificateBadDate
		}
		return CertificateUntrusted
	}

	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var verification *tls.CertificateVerificationError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostname) || errors.As(err, &verification) {
		return CertificateUntrusted
	}
	if reqerr.Is(err, reqerr.ServerTrustEvaluationFailed) {
		return CertificateUntrusted
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return CannotFindHost
		}
		if dnsErr.IsTimeout {
			return Timeout
		}
		return DNSFailure
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNABORTED, syscall.EPIPE:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.EHOSTUNREACH, syscall.EHOSTDOWN:
			return HostUnreachable
		case syscall.ENETUNREACH, syscall.ENETDOWN:
			return NetUnreachable
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ConnReset
	}

	var recordHeader tls.RecordHeaderError
	var alert tls.AlertError
	if errors.As(err, &recordHeader) || errors.As(err, &alert) {
		return SecureConnectionFailed
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return BadURL
	}
	var escapeErr url.EscapeError
	var invalidHost url.InvalidHostError
	if errors.As(err, &escapeErr) || errors.As(err, &invalidHost) || reqerr.Is(err, reqerr.InvalidURL) {
		return BadURL
	}

	// net/http reports an unsupported scheme with an unexported error
	// type, so the message is the only signal.
	if strings.Contains(err.Error(), "unsupported protocol scheme") {
		return UnsupportedURL
	}

	return Not
}

type hasTimeout interface {
	Timeout() bool
}
