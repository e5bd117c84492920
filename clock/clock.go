// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clock provides the two timestamp sources the tracer needs: a
// direct monotonic read for per-event timestamps, where the
// non-decreasing invariant demands full precision on every call, and a
// cached clock for low-frequency timestamps (heartbeat, shutdown
// summary, manifest refresh) where a syscall per call would be wasted
// work.
package clock

import (
	"time"

	"github.com/agilira/go-timecache"
)

// processStart anchors every NowNs reading. time.Since(processStart)
// subtracts two monotonic readings internally, so the result never
// reflects a wall-clock step the way time.Now().UnixNano() would.
var processStart = time.Now()

// NowNs returns the current monotonic time in nanoseconds, suitable for
// IndexEvent.TimestampNs / DetailHeader.TimestampNs (spec §3/§8: events
// must carry non-decreasing, full-precision timestamps).
func NowNs() uint64 {
	return uint64(time.Since(processStart).Nanoseconds())
}

// Cached wraps a resolution-bounded clock for call sites that tick at
// most a few times per second: the drain heartbeat, the shutdown
// summary, and manifest time_start_ns/time_end_ns refreshes. Grounded on
// agilira-lethe's use of go-timecache to keep its hot write path
// syscall-free.
type Cached struct {
	tc *timecache.TimeCache
}

// NewCached creates a cached clock refreshed at the given resolution.
func NewCached(resolution time.Duration) *Cached {
	return &Cached{tc: timecache.NewWithResolution(resolution)}
}

// NowNs returns the cached monotonic time in nanoseconds, measured from
// the same process-start anchor as NowNs so cached and direct readings
// stay comparable.
func (c *Cached) NowNs() uint64 {
	return uint64(c.tc.CachedTime().Sub(processStart).Nanoseconds())
}

// Stop releases the cached clock's background refresh goroutine.
func (c *Cached) Stop() {
	c.tc.Stop()
}
