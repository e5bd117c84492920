// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package event_test

import (
	"testing"

	"code.hybscloud.com/adatrace/event"
)

func TestIndexEventRoundTrip(t *testing.T) {
	e := event.IndexEvent{
		TimestampNs: 123456789,
		FunctionID:  0x1_0000_0001,
		ThreadID:    7,
		EventKind:   event.KindCall,
		CallDepth:   3,
		DetailSeq:   42,
	}

	var buf [event.IndexSize]byte
	e.Encode(buf[:])

	got := event.DecodeIndexEvent(buf[:])
	if got != e {
		t.Fatalf("round trip: got %+v, want %+v", got, e)
	}
}

func TestIndexEventNoDetail(t *testing.T) {
	e := event.IndexEvent{DetailSeq: event.NoDetail}
	if e.HasDetail() {
		t.Fatalf("HasDetail: got true, want false for NoDetail sentinel")
	}
	e.DetailSeq = 0
	if !e.HasDetail() {
		t.Fatalf("HasDetail: got false, want true for detail_seq=0")
	}
}

func TestDetailHeaderRoundTrip(t *testing.T) {
	h := event.DetailHeader{
		TotalLength: event.DetailHeaderSize + 16,
		EventType:   event.DetailTypeCallRegisters,
		Flags:       0,
		IndexSeq:    9,
		ThreadID:    7,
		TimestampNs: 999,
	}

	var buf [event.DetailHeaderSize]byte
	h.Encode(buf[:])

	got := event.DecodeDetailHeader(buf[:])
	if got != h {
		t.Fatalf("round trip: got %+v, want %+v", got, h)
	}
}

func TestDetailRecordPayloadLen(t *testing.T) {
	r := event.DetailRecord{Header: event.DetailHeader{TotalLength: event.DetailHeaderSize + 10}}
	if n := r.PayloadLen(); n != 10 {
		t.Fatalf("PayloadLen: got %d, want 10", n)
	}

	r.Header.TotalLength = 0
	if n := r.PayloadLen(); n != 0 {
		t.Fatalf("PayloadLen with short length: got %d, want 0", n)
	}

	r.Header.TotalLength = event.DetailHeaderSize + event.MaxDetailPayload + 100
	if n := r.PayloadLen(); n != event.MaxDetailPayload {
		t.Fatalf("PayloadLen clamps: got %d, want %d", n, event.MaxDetailPayload)
	}
}
