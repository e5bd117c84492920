// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adaerr holds the tracer's error surface: a control-flow signal
// re-exported from the teacher's ecosystem (iox.ErrWouldBlock) for
// ring-full/ring-empty conditions, and a discriminated Kind for the true
// failures enumerated in spec §7.
package adaerr

import "code.hybscloud.com/iox"

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// For a ring Write: the ring is full (backpressure).
// For a ring Read: the ring is empty (nothing to drain yet).
//
// ErrWouldBlock is a control flow signal, not a failure (spec §7:
// PoolExhausted and WriteFull are routed through backpressure, never
// surfaced as errors). This is an alias for [iox.ErrWouldBlock] for
// ecosystem consistency with the rest of the org's libraries.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
