// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package event defines the byte-exact record and header layouts shared
// between the ring buffers, the ATF v2 writer, and anything that consumes
// the raw bytes out of shared memory. Every type in this package has a
// stable, language-independent layout: fields are laid out and encoded in
// the order documented, not left to struct-tag reflection.
package event

import "encoding/binary"

// Kind enumerates the event_kind field of an IndexEvent.
type Kind uint32

const (
	KindCall      Kind = 1
	KindReturn    Kind = 2
	KindException Kind = 3
)

// NoDetail marks an IndexEvent with no paired detail record.
const NoDetail uint32 = 0xFFFF_FFFF

// IndexSize is the fixed, on-disk and in-shared-memory size of IndexEvent.
const IndexSize = 32

// IndexEvent is the fixed 32-byte record described in spec §3.
//
// Field order is the wire order: changing it changes the byte layout.
type IndexEvent struct {
	TimestampNs uint64
	FunctionID  uint64
	ThreadID    uint32
	EventKind   Kind
	CallDepth   uint32
	DetailSeq   uint32
}

// HasDetail reports whether DetailSeq references a real detail record.
func (e IndexEvent) HasDetail() bool {
	return e.DetailSeq != NoDetail
}

// Encode writes the little-endian 32-byte wire form of e into dst.
// dst must be at least IndexSize bytes.
func (e IndexEvent) Encode(dst []byte) {
	_ = dst[IndexSize-1]
	binary.LittleEndian.PutUint64(dst[0:8], e.TimestampNs)
	binary.LittleEndian.PutUint64(dst[8:16], e.FunctionID)
	binary.LittleEndian.PutUint32(dst[16:20], e.ThreadID)
	binary.LittleEndian.PutUint32(dst[20:24], uint32(e.EventKind))
	binary.LittleEndian.PutUint32(dst[24:28], e.CallDepth)
	binary.LittleEndian.PutUint32(dst[28:32], e.DetailSeq)
}

// DecodeIndexEvent parses a 32-byte wire-form record from src.
func DecodeIndexEvent(src []byte) IndexEvent {
	_ = src[IndexSize-1]
	return IndexEvent{
		TimestampNs: binary.LittleEndian.Uint64(src[0:8]),
		FunctionID:  binary.LittleEndian.Uint64(src[8:16]),
		ThreadID:    binary.LittleEndian.Uint32(src[16:20]),
		EventKind:   Kind(binary.LittleEndian.Uint32(src[20:24])),
		CallDepth:   binary.LittleEndian.Uint32(src[24:28]),
		DetailSeq:   binary.LittleEndian.Uint32(src[28:32]),
	}
}

// DetailHeaderSize is the fixed size of a DetailEvent header.
const DetailHeaderSize = 24

// DetailEventType enumerates the event_type field of a DetailEvent.
type DetailEventType uint16

const (
	DetailTypeCallRegisters  DetailEventType = 1
	DetailTypeReturnRegisters DetailEventType = 2
)

// DetailHeader is the fixed 24-byte header preceding a variable-length
// payload (registers and/or a stack snapshot) as described in spec §3.
type DetailHeader struct {
	TotalLength uint32
	EventType   DetailEventType
	Flags       uint16
	IndexSeq    uint32
	ThreadID    uint32
	TimestampNs uint64
}

// Encode writes the little-endian 24-byte header into dst.
func (h DetailHeader) Encode(dst []byte) {
	_ = dst[DetailHeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.TotalLength)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(h.EventType))
	binary.LittleEndian.PutUint16(dst[6:8], h.Flags)
	binary.LittleEndian.PutUint32(dst[8:12], h.IndexSeq)
	binary.LittleEndian.PutUint32(dst[12:16], h.ThreadID)
	binary.LittleEndian.PutUint64(dst[16:24], h.TimestampNs)
}

// DecodeDetailHeader parses a 24-byte header from src.
func DecodeDetailHeader(src []byte) DetailHeader {
	_ = src[DetailHeaderSize-1]
	return DetailHeader{
		TotalLength: binary.LittleEndian.Uint32(src[0:4]),
		EventType:   DetailEventType(binary.LittleEndian.Uint16(src[4:6])),
		Flags:       binary.LittleEndian.Uint16(src[6:8]),
		IndexSeq:    binary.LittleEndian.Uint32(src[8:12]),
		ThreadID:    binary.LittleEndian.Uint32(src[12:16]),
		TimestampNs: binary.LittleEndian.Uint64(src[16:24]),
	}
}

// MaxDetailPayload is the largest register/stack payload a single detail
// ring slot can carry. It tracks the CLI's stack-capture-size ceiling
// (spec §6: "stack capture size (bytes, 0-512)") plus headroom for
// register dumps.
const MaxDetailPayload = 768

// DetailRecordSize is the fixed physical width of one detail-lane ring
// slot: header plus the maximum payload. Payloads shorter than
// MaxDetailPayload are zero-padded; TotalLength records the real length.
const DetailRecordSize = DetailHeaderSize + MaxDetailPayload

// DetailRecord is the fixed-width ring slot type for the detail lane.
// The ring buffer requires fixed record_size slots (spec §3); variable
// length is accommodated by over-provisioning the slot and trusting
// Header.TotalLength to say how much of Payload is meaningful.
type DetailRecord struct {
	Header  DetailHeader
	Payload [MaxDetailPayload]byte
}

// PayloadLen returns the number of meaningful payload bytes per
// Header.TotalLength.
func (r DetailRecord) PayloadLen() int {
	n := int(r.Header.TotalLength) - DetailHeaderSize
	if n < 0 {
		return 0
	}
	if n > MaxDetailPayload {
		return MaxDetailPayload
	}
	return n
}

// ThreadCounters tracks the monotonic index_count/detail_count pair for
// one thread, reserved atomically in one step by the caller (see
// atf.SequenceCounters.Reserve).
type ThreadCounters struct {
	IndexCount  uint32
	DetailCount uint32
}
