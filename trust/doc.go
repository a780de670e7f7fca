// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package trust evaluates server certificate chains.

An Evaluator decides whether a certificate chain presented by a host is
trusted. The package provides evaluators for standard chain validation
(DefaultEvaluator), validation plus revocation checks
(RevocationEvaluator), certificate and public key pinning
(PinnedCertificatesEvaluator, PinnedPublicKeysEvaluator), composition
(CompositeEvaluator) and no evaluation at all (DisabledEvaluator).

A Manager maps host names to evaluators and plugs them into crypto/tls:

	m := &trust.Manager{
		Evaluators: map[string]trust.Evaluator{
			"api.example.com": trust.PinnedPublicKeysEvaluator{Keys: keys, PerformDefaultValidation: true, ValidateHost: true},
		},
	}
	transport := &http.Transport{DialTLSContext: m.DialTLSContext(nil)}

Every rejection is a *reqerr.Error of kind
reqerr.ServerTrustEvaluationFailed.
*/
package trust
