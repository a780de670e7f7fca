// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors from HTTP request execution into
// transport categories such as Timeout, ConnReset or CannotFindHost, and
// says whether each category is transient or permanent. This is handy
// for writing retry policies, and for other purposes such as bucketing
// error metrics.
package transient
