// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package multipart encodes multipart/form-data bodies from in-memory data,
files and streams.

A FormData is built by appending parts, then encoded in memory with
Encode, streamed to any writer with WriteTo, or written to a new file
with WriteEncodedData:

	fd := multipart.New()
	fd.Append([]byte("Lorem ipsum"), "data", "", "")
	fd.AppendFile("/tmp/photo.jpg", "photo")
	body, err := fd.Encode()
	...
	plan.Header.Set("Content-Type", fd.ContentType())

Part bodies are never buffered by WriteTo and WriteEncodedData, so a
FormData may describe bodies far larger than memory. Appending a part
that cannot be encoded, for example a file that does not exist, records
an error which every later encode returns without producing output.

A FormData is not safe for concurrent use.
*/
package multipart
