// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strings"

	"github.com/gogama/reqx/reqerr"
)

// Manager selects an Evaluator by host name.
//
// Hosts are matched exactly, ignoring case and port. A host without an
// evaluator is evaluated by DefaultEvaluator with host validation,
// unless AllHostsMustBeEvaluated is set, in which case its connections
// fail with reason noRequiredEvaluator.
type Manager struct {
	Evaluators              map[string]Evaluator
	AllHostsMustBeEvaluated bool
}

// Evaluator returns the evaluator for host.
func (m *Manager) Evaluator(host string) (Evaluator, error) {
	return m.evaluator(host, nil)
}

func (m *Manager) evaluator(host string, roots *x509.CertPool) (Evaluator, error) {
	host = normalizeHost(host)
	if e, ok := m.Evaluators[host]; ok && e != nil {
		return e, nil
	}
	if m.AllHostsMustBeEvaluated {
		return nil, reqerr.New(reqerr.ServerTrustEvaluationFailed, ReasonNoRequiredEvaluator, "host %q", host)
	}
	return DefaultEvaluator{ValidateHost: true, Roots: roots}, nil
}

// VerifyConnection evaluates the peer certificates of a TLS connection
// using the evaluator for its server name. It has the signature of
// tls.Config.VerifyConnection.
func (m *Manager) VerifyConnection(cs tls.ConnectionState) error {
	return m.verify(cs.ServerName, cs.PeerCertificates, nil)
}

func (m *Manager) verify(host string, chain []*x509.Certificate, roots *x509.CertPool) error {
	e, err := m.evaluator(host, roots)
	if err != nil {
		return err
	}
	return e.Evaluate(chain, normalizeHost(host))
}

// TLSConfig returns a copy of base, or of an empty configuration if base
// is nil, whose certificate verification is done by m instead of
// crypto/tls. The default evaluator uses base.RootCAs.
//
// The server name seen by the returned configuration is the SNI name,
// which is empty for IP address hosts. Use DialTLSContext to evaluate IP
// address hosts.
func (m *Manager) TLSConfig(base *tls.Config) *tls.Config {
	cfg := cloneConfig(base)
	roots := cfg.RootCAs
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		return m.verify(cs.ServerName, cs.PeerCertificates, roots)
	}
	return cfg
}

// DialTLSContext returns a dial function, suitable for
// http.Transport.DialTLSContext, that evaluates each connection with the
// evaluator for the dialed host.
func (m *Manager) DialTLSContext(base *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		cfg := cloneConfig(base)
		roots := cfg.RootCAs
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return m.verify(host, cs.PeerCertificates, roots)
		}
		d := tls.Dialer{Config: cfg}
		return d.DialContext(ctx, network, addr)
	}
}

func cloneConfig(base *tls.Config) *tls.Config {
	if base == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return base.Clone()
}

func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(host)
}
