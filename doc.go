// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package reqx provides an asynchronous HTTP client with retry support,
response validation and serialization, server trust evaluation, and
resumable downloads.

Create a Session, then create requests from request plans. A request
does nothing until it is resumed.

	session := &reqx.Session{}
	p, err := request.NewPlan("GET", "https://www.example.com", nil)
	...
	r := session.Request(p).Validate().Resume()
	e := r.Wait()

To receive typed values, serialize the response:

	type Thing struct{ Name string }
	resp, err := reqx.Await(ctx, session.Request(p).Validate(),
		serialize.Decodable[Thing]{})

For control over how the session sends HTTP requests and receives HTTP
responses, use a custom HTTPDoer. For example, use a GoLang standard
HTTP client:

	doer := &http.Client{
		..., // See package "net/http" for detailed documentation
	}
	session := &reqx.Session{
		HTTPDoer: doer,
	}

To pin certificates or public keys, or to check revocation, leave
HTTPDoer nil and configure a trust manager:

	session := &reqx.Session{
		Trust: &trust.Manager{
			Evaluators: map[string]trust.Evaluator{
				"api.example.com": trust.PinnedPublicKeysEvaluator{Keys: keys},
			},
		},
	}

For control over retry decisions and timing, create a custom retry
policy using components from package retry:

	retryWaiter := retry.NewExpWaiter(250*time.Millisecond, 5*time.Second, time.Now())
	retryPolicy := retry.NewPolicy(retry.Times(5).And(retry.TransientErr), retryWaiter)
	session := &reqx.Session{
		RetryPolicy: retryPolicy,
	}

To hook into the fine-grained details of request execution, install a
handler into the appropriate handler chain:

	handlers := &reqx.HandlerGroup{}
	handlers.PushBack(reqx.BeforeAttempt, reqx.HandlerFunc(
		func(_ reqx.Event, e *request.Execution) {
			log.Printf("Attempt %d to %s", e.Attempt, e.Request.URL.String())
		})
	)
	session := &reqx.Session{
		Handlers: handlers,
	}

Multipart uploads use package multipart, and downloads stream to disk:

	fd := multipart.New()
	fd.Append([]byte("hello"), "greeting", "", "")
	fd.AppendFile("/tmp/photo.jpg", "photo")
	up := session.Upload(p, fd).Resume()

	dl := session.Download(p, reqx.Destination{Path: "/tmp/big.iso"}).Resume()
	dl.CancelProducingResumeData(func(s *resume.State, err error) {
		// Store s.Bytes(); later resume.Parse it and call
		// session.DownloadResuming.
	})
*/
package reqx
