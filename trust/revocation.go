// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package trust

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// A Status is the revocation status of a certificate as reported by a
// Checker.
type Status int

const (
	// Unknown means the checker has no information about the
	// certificate.
	Unknown Status = iota
	// Good means the certificate is not revoked.
	Good
	// Revoked means the certificate is revoked.
	Revoked
)

func (s Status) String() string {
	switch s {
	case Good:
		return "Good"
	case Revoked:
		return "Revoked"
	default:
		return "Unknown"
	}
}

// A Checker reports the revocation status of a certificate issued by
// issuer.
type Checker interface {
	Check(cert, issuer *x509.Certificate) (Status, error)
}

// RevocationEvaluator performs default validation and then checks every
// certificate of the verified chain except the trust anchor with its
// Checkers.
//
// For each certificate the checkers are consulted in order until one
// reports Good or Revoked. A Revoked status or a checker error fails
// the evaluation. If every checker reports Unknown, the evaluation fails
// only when RequirePositiveResponse is set.
type RevocationEvaluator struct {
	ValidateHost            bool
	Roots                   *x509.CertPool
	CurrentTime             func() time.Time
	Checkers                []Checker
	RequirePositiveResponse bool
}

// Evaluate validates the chain and checks revocation.
func (r RevocationEvaluator) Evaluate(chain []*x509.Certificate, host string) error {
	d := DefaultEvaluator{ValidateHost: r.ValidateHost, Roots: r.Roots, CurrentTime: r.CurrentTime}
	verified, err := d.verify(chain, host)
	if err != nil {
		return err
	}

	for i := 0; i < len(verified)-1; i++ {
		status, err := r.check(verified[i], verified[i+1])
		if err != nil {
			return fail(ReasonRevocationCheckFailed, err, host)
		}
		switch {
		case status == Revoked:
			return fail(ReasonRevocationCheckFailed, fmt.Errorf("certificate %s is revoked", verified[i].SerialNumber), host)
		case status == Unknown && r.RequirePositiveResponse:
			return fail(ReasonRevocationCheckFailed, fmt.Errorf("certificate %s has unknown revocation status", verified[i].SerialNumber), host)
		}
	}
	return nil
}

func (r RevocationEvaluator) check(cert, issuer *x509.Certificate) (Status, error) {
	for _, c := range r.Checkers {
		status, err := c.Check(cert, issuer)
		if err != nil {
			return Unknown, err
		}
		if status != Unknown {
			return status, nil
		}
	}
	return Unknown, nil
}

// CRLChecker checks certificates against static certificate revocation
// lists. A list applies to a certificate if it was issued, and validly
// signed, by the certificate's issuer.
type CRLChecker struct {
	Lists []*x509.RevocationList
}

// Check reports Revoked if an applicable list contains the certificate,
// Good if an applicable list does not, and Unknown if no list applies.
func (c CRLChecker) Check(cert, issuer *x509.Certificate) (Status, error) {
	status := Unknown
	for _, list := range c.Lists {
		if !bytes.Equal(list.RawIssuer, issuer.RawSubject) {
			continue
		}
		if err := list.CheckSignatureFrom(issuer); err != nil {
			return Unknown, err
		}
		for _, entry := range list.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return Revoked, nil
			}
		}
		status = Good
	}
	return status, nil
}

// HTTPDoer sends OCSP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// DefaultOCSPTimeout is the OCSPChecker timeout used when none is set.
const DefaultOCSPTimeout = 10 * time.Second

// OCSPChecker queries the OCSP responders named in each certificate.
type OCSPChecker struct {
	// Doer sends the OCSP requests. If nil, http.DefaultClient is used.
	Doer HTTPDoer
	// Timeout bounds each responder query. If zero, DefaultOCSPTimeout
	// is used.
	Timeout time.Duration
}

// Check asks the certificate's OCSP responders, in order, for its
// status. It reports Unknown if the certificate names no responder. A
// responder that cannot be reached or answers with an invalid response
// is an error.
func (o OCSPChecker) Check(cert, issuer *x509.Certificate) (Status, error) {
	if len(cert.OCSPServer) == 0 {
		return Unknown, nil
	}
	body, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return Unknown, err
	}

	var lastErr error
	for _, server := range cert.OCSPServer {
		status, err := o.query(server, body, cert, issuer)
		if err == nil {
			return status, nil
		}
		lastErr = err
	}
	return Unknown, lastErr
}

func (o OCSPChecker) query(server string, body []byte, cert, issuer *x509.Certificate) (Status, error) {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = DefaultOCSPTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(body))
	if err != nil {
		return Unknown, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	doer := o.Doer
	if doer == nil {
		doer = http.DefaultClient
	}
	resp, err := doer.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("OCSP responder %s returned status %d", server, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Unknown, err
	}

	parsed, err := ocsp.ParseResponseForCert(raw, cert, issuer)
	if err != nil {
		return Unknown, err
	}
	switch parsed.Status {
	case ocsp.Good:
		return Good, nil
	case ocsp.Revoked:
		return Revoked, nil
	default:
		return Unknown, nil
	}
}
