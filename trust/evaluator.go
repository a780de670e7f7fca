// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package trust

import (
	"bytes"
	"crypto/x509"
	"time"

	"github.com/gogama/reqx/reqerr"
)

// Reasons reported with kind reqerr.ServerTrustEvaluationFailed.
const (
	ReasonNoRequiredEvaluator      reqerr.Reason = "noRequiredEvaluator"
	ReasonNoCertificatesFound      reqerr.Reason = "noCertificatesFound"
	ReasonNoPublicKeysFound        reqerr.Reason = "noPublicKeysFound"
	ReasonPolicyApplicationFailed  reqerr.Reason = "policyApplicationFailed"
	ReasonDefaultEvaluationFailed  reqerr.Reason = "defaultEvaluationFailed"
	ReasonHostValidationFailed     reqerr.Reason = "hostValidationFailed"
	ReasonRevocationCheckFailed    reqerr.Reason = "revocationCheckFailed"
	ReasonCertificatePinningFailed reqerr.Reason = "certificatePinningFailed"
	ReasonPublicKeyPinningFailed   reqerr.Reason = "publicKeyPinningFailed"
	ReasonCustomEvaluationFailed   reqerr.Reason = "customEvaluationFailed"
)

// An Evaluator decides whether the certificate chain presented by host
// is trusted. The chain starts with the leaf certificate and is followed
// by whatever intermediates the server sent. Evaluate returns nil if the
// chain is trusted.
//
// Implementations of Evaluator must be safe for concurrent use by
// multiple goroutines.
type Evaluator interface {
	Evaluate(chain []*x509.Certificate, host string) error
}

// EvaluatorFunc adapts an ordinary function to the Evaluator interface.
// A non-nil error which is not already a *reqerr.Error is reported with
// reason customEvaluationFailed.
type EvaluatorFunc func(chain []*x509.Certificate, host string) error

// Evaluate calls f(chain, host).
func (f EvaluatorFunc) Evaluate(chain []*x509.Certificate, host string) error {
	err := f(chain, host)
	if err == nil || reqerr.Is(err, reqerr.ServerTrustEvaluationFailed) {
		return err
	}
	return reqerr.Wrap(reqerr.ServerTrustEvaluationFailed, ReasonCustomEvaluationFailed, err, "host %q", host)
}

// DefaultEvaluator performs standard X.509 chain validation. The chain
// elements after the leaf are used as intermediates.
type DefaultEvaluator struct {
	// ValidateHost controls whether the leaf certificate must be valid
	// for the host name.
	ValidateHost bool
	// Roots is the set of trust anchors. If nil, the system pool is used.
	Roots *x509.CertPool
	// CurrentTime returns the validation time. If nil, time.Now is used.
	CurrentTime func() time.Time
}

// Evaluate validates the chain.
func (d DefaultEvaluator) Evaluate(chain []*x509.Certificate, host string) error {
	_, err := d.verify(chain, host)
	return err
}

func (d DefaultEvaluator) verify(chain []*x509.Certificate, host string) ([]*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fail(ReasonNoCertificatesFound, nil, host)
	}

	roots := d.Roots
	if roots == nil {
		var err error
		if roots, err = x509.SystemCertPool(); err != nil {
			return nil, fail(ReasonPolicyApplicationFailed, err, host)
		}
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   now(d.CurrentTime),
	}
	for _, cert := range chain[1:] {
		opts.Intermediates.AddCert(cert)
	}

	chains, err := chain[0].Verify(opts)
	if err != nil {
		return nil, fail(ReasonDefaultEvaluationFailed, err, host)
	}
	if d.ValidateHost {
		if err = validateHost(chain[0], host); err != nil {
			return nil, err
		}
	}
	return chains[0], nil
}

// DisabledEvaluator trusts every chain. Use it only for development
// hosts.
type DisabledEvaluator struct{}

// Evaluate always returns nil.
func (DisabledEvaluator) Evaluate(_ []*x509.Certificate, _ string) error {
	return nil
}

// CompositeEvaluator trusts a chain only if every evaluator in it does.
// Evaluation stops at, and returns, the first failure.
type CompositeEvaluator []Evaluator

// Evaluate runs each evaluator in order.
func (c CompositeEvaluator) Evaluate(chain []*x509.Certificate, host string) error {
	for _, e := range c {
		if err := e.Evaluate(chain, host); err != nil {
			return err
		}
	}
	return nil
}

// PinnedCertificatesEvaluator trusts a chain if at least one of its
// certificates is byte-for-byte equal to one of the pinned certificates.
type PinnedCertificatesEvaluator struct {
	// Certificates are the pinned certificates. Evaluation fails with
	// reason noCertificatesFound if it is empty.
	Certificates []*x509.Certificate
	// AcceptSelfSigned adds the pinned certificates to the trust anchors
	// used by default validation, so that a self-signed or privately
	// issued pinned certificate validates.
	AcceptSelfSigned bool
	// PerformDefaultValidation requires the chain to pass standard
	// validation before the pins are checked.
	PerformDefaultValidation bool
	// ValidateHost requires the leaf certificate to be valid for the host
	// name.
	ValidateHost bool
	// Roots and CurrentTime configure default validation as for
	// DefaultEvaluator.
	Roots       *x509.CertPool
	CurrentTime func() time.Time
}

// Evaluate validates the chain, if so configured, and matches the pins.
func (p PinnedCertificatesEvaluator) Evaluate(chain []*x509.Certificate, host string) error {
	if len(p.Certificates) == 0 {
		return fail(ReasonNoCertificatesFound, nil, host)
	}
	candidates, err := preflight(chain, host, p.Certificates, p.AcceptSelfSigned, p.PerformDefaultValidation, p.ValidateHost, p.Roots, p.CurrentTime)
	if err != nil {
		return err
	}

	for _, cert := range candidates {
		for _, pinned := range p.Certificates {
			if bytes.Equal(cert.Raw, pinned.Raw) {
				return nil
			}
		}
	}
	return fail(ReasonCertificatePinningFailed, nil, host)
}

// PinnedPublicKeysEvaluator trusts a chain if at least one of its
// certificates carries one of the pinned public keys. Keys are compared
// in PKIX DER form.
type PinnedPublicKeysEvaluator struct {
	// Keys are the pinned public keys, of any type accepted by
	// x509.MarshalPKIXPublicKey. Evaluation fails with reason
	// noPublicKeysFound if it is empty.
	Keys []interface{}
	// PerformDefaultValidation, ValidateHost, Roots and CurrentTime
	// behave as for PinnedCertificatesEvaluator.
	PerformDefaultValidation bool
	ValidateHost             bool
	Roots                    *x509.CertPool
	CurrentTime              func() time.Time
}

// Evaluate validates the chain, if so configured, and matches the pins.
func (p PinnedPublicKeysEvaluator) Evaluate(chain []*x509.Certificate, host string) error {
	if len(p.Keys) == 0 {
		return fail(ReasonNoPublicKeysFound, nil, host)
	}
	pins := make([][]byte, 0, len(p.Keys))
	for _, key := range p.Keys {
		der, err := x509.MarshalPKIXPublicKey(key)
		if err != nil {
			return fail(ReasonPolicyApplicationFailed, err, host)
		}
		pins = append(pins, der)
	}
	candidates, err := preflight(chain, host, nil, false, p.PerformDefaultValidation, p.ValidateHost, p.Roots, p.CurrentTime)
	if err != nil {
		return err
	}

	for _, cert := range candidates {
		der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
		if err != nil {
			continue
		}
		for _, pin := range pins {
			if bytes.Equal(der, pin) {
				return nil
			}
		}
	}
	return fail(ReasonPublicKeyPinningFailed, nil, host)
}

// preflight runs the validation shared by the pinning evaluators. It
// returns the certificates to match against the pins: the verified chain,
// which includes the trust anchor, if default validation was performed,
// otherwise the presented chain.
func preflight(chain []*x509.Certificate, host string, anchors []*x509.Certificate, acceptSelfSigned, defaultValidation, checkHost bool, roots *x509.CertPool, currentTime func() time.Time) ([]*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fail(ReasonNoCertificatesFound, nil, host)
	}
	candidates := chain
	if acceptSelfSigned {
		if roots == nil {
			roots = x509.NewCertPool()
		} else {
			roots = roots.Clone()
		}
		for _, cert := range anchors {
			roots.AddCert(cert)
		}
	}
	if defaultValidation {
		d := DefaultEvaluator{Roots: roots, CurrentTime: currentTime}
		verified, err := d.verify(chain, host)
		if err != nil {
			return nil, err
		}
		candidates = append(append([]*x509.Certificate{}, verified...), chain...)
	}
	if checkHost {
		if err := validateHost(chain[0], host); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

func validateHost(leaf *x509.Certificate, host string) error {
	if err := leaf.VerifyHostname(host); err != nil {
		return fail(ReasonHostValidationFailed, err, host)
	}
	return nil
}

func fail(reason reqerr.Reason, err error, host string) error {
	if err == nil {
		return reqerr.New(reqerr.ServerTrustEvaluationFailed, reason, "host %q", host)
	}
	return reqerr.Wrap(reqerr.ServerTrustEvaluationFailed, reason, err, "host %q", host)
}

func now(f func() time.Time) time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}
