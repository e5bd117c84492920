// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/backpressure"
	"code.hybscloud.com/adatrace/event"
	"code.hybscloud.com/adatrace/lane"
	"code.hybscloud.com/adatrace/marking"
)

// maxSwapRetries bounds the write→swap→backpressure retry loop
// (spec §5: "lock-free CAS/atomic loops with bounded retries").
const maxSwapRetries = 8

// RecordInput is one candidate event a producer thread hands to
// RecordEvent; it carries everything needed to build both the index
// record and, if detail is enabled, the paired detail record
// (spec §2 dataflow, §4.8 sequence reservation).
type RecordInput struct {
	TimestampNs   uint64
	FunctionID    uint64
	EventKind     event.Kind
	CallDepth     uint32
	DetailEnabled bool
	DetailType    event.DetailEventType
	DetailFlags   uint16
	Payload       []byte
	Probe         marking.Probe
}

// RecordEvent is the integrated hot-path operation spec §4.1-§4.5
// describe as one flow: reserve sequences, write the index record
// (consulting backpressure and the drop policy on pool exhaustion),
// write the paired detail record the same way, update the thread's
// generation counters, and feed the probe to selective persistence.
// Exactly one producer thread calls this for a given slot.
func (s *ThreadLaneSet) RecordEvent(in RecordInput) {
	s.EventsGenerated.AddAcqRel(1)
	s.LastEventTs.StoreRelease(in.TimestampNs)

	indexSeq, detailSeq := s.Counters.Reserve(in.DetailEnabled)
	nowNs := int64(in.TimestampNs)

	idx := event.IndexEvent{
		TimestampNs: in.TimestampNs,
		FunctionID:  in.FunctionID,
		ThreadID:    s.ThreadID,
		EventKind:   in.EventKind,
		CallDepth:   in.CallDepth,
		DetailSeq:   detailSeq,
	}
	writeRecord(s.Index, s.IndexBackpressure, s.DropPolicy, idx, &idx, nowNs, event.IndexSize)

	if in.DetailEnabled && detailSeq != atf.NoDetailSeq {
		hdr := event.DetailHeader{
			TotalLength: uint32(event.DetailHeaderSize + len(in.Payload)),
			EventType:   in.DetailType,
			Flags:       in.DetailFlags,
			IndexSeq:    indexSeq,
			ThreadID:    s.ThreadID,
			TimestampNs: in.TimestampNs,
		}
		rec := event.DetailRecord{Header: hdr}
		copy(rec.Payload[:], in.Payload)
		recBytes := event.DetailHeaderSize + len(in.Payload)
		writeRecord(s.Detail, s.DetailBackpressure, s.DropPolicy, idx, &rec, nowNs, recBytes)
	}

	if s.Selective != nil {
		s.Selective.MarkEvent(in.Probe, in.TimestampNs)
	}
}

// writeRecord implements the write→swap→backpressure flow of spec
// §4.2/§4.5 for either lane kind: try the write; on a full active ring,
// swap; if swap fails because the pool is exhausted, consult the
// backpressure controller and, if it reports that a drop is required,
// apply the drop policy (skip the write, or, under DropOldestPolicy,
// evict the oldest buffered record to make room) before retrying.
func writeRecord[T any](l *lane.Lane[T], bp *backpressure.Controller, policy backpressure.DropPolicy, hdrForPolicy event.IndexEvent, rec *T, nowNs int64, recBytes int) {
	for attempt := 0; attempt < maxSwapRetries; attempt++ {
		err := l.Write(rec)
		if err == nil {
			return
		}
		if !adaerr.IsWouldBlock(err) {
			return
		}

		swapErr := l.SwapActive()
		if swapErr == nil {
			continue
		}
		if !adaerr.IsWouldBlock(swapErr) {
			return
		}

		pool := backpressure.PoolStatus{FreeRings: l.FreeRings(), TotalRings: l.RingCount()}
		if !bp.CheckExhaustion(pool, nowNs) {
			continue
		}

		if policy.ShouldDrop(hdrForPolicy, bp.Current()) {
			bp.RecordDrop(recBytes, nowNs)
			return
		}

		if _, dropOldest := policy.(backpressure.DropOldestPolicy); dropOldest && l.DropOldestFromActive() {
			bp.RecordDrop(recBytes, nowNs)
		}
	}
}
