// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package serialize turns a completed HTTP exchange into a typed value.
//
// Every Serializer follows the same contract. A non-nil input error is
// returned unchanged. Empty response data is accepted only when there is
// no response, when the status code is one of the configured empty
// response codes (204 and 205 by default), or when the request method is
// one of the configured empty request methods (HEAD by default); in that
// case the serializer's empty value is returned. Any other empty data is
// an error of kind reqerr.ResponseSerializationFailed with reason
// inputDataNilOrZeroLength.
package serialize
