// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package atf implements the ATF v2 binary trace format writer
// (spec §4.8, component C8): two buffered, sequence-linked files per
// thread, fixed 64-byte headers and footers, and the finalize/error
// state machine.
package atf

import (
	"encoding/binary"
	"runtime"
)

// HeaderSize is the fixed width of both the placeholder header and the
// footer (spec §4.8: "64 zeroed bytes plus magic...").
const HeaderSize = 64

// EventsOffset is the fixed byte offset where the first event record
// begins; every file up to this point is header.
const EventsOffset = 64

// File magic values (spec §6 session directory layout).
const (
	MagicIndexHeader = "ATI2"
	MagicIndexFooter = "2ITA"
	MagicDetailHeader = "ATD2"
	MagicDetailFooter = "2DTA"
)

// ClockType identifies which monotonic clock produced timestamp_ns, so a
// reader merging streams across threads (and potentially across
// platforms) knows how to interpret them (spec §9 design note).
type ClockType uint8

const (
	ClockUnspecified ClockType = iota
	ClockMonotonicRaw
	ClockBootTime
)

// currentClockType reports the clock this platform's clock.NowNs draws
// from. Go's runtime monotonic reading is clock_gettime(CLOCK_MONOTONIC)
// on Linux and mach_continuous_time-equivalent on Darwin; both are
// continuous across sleep on the platforms this module targets.
func currentClockType() ClockType {
	if runtime.GOOS == "linux" {
		return ClockBootTime
	}
	return ClockMonotonicRaw
}

// Flags bits for the index header (spec §4.8 finalization step).
const (
	FlagDetailPresent uint32 = 1 << 0
)

// EndianLittle is the only endian value this writer ever produces
// (spec §3: "endian:u8=0x01").
const EndianLittle uint8 = 0x01

// FormatVersion is the ATF v2 wire version (spec §3: "version:u8=1").
const FormatVersion uint8 = 1

// Header is the fixed 64-byte header/footer shape shared by index.atf
// and detail.atf, byte-exact with spec §3's AtfIndexHeader/Footer. The
// footer reuses this same layout with the reversed magic, per spec §4.8:
// "the footer is authoritative on recovery."
type Header struct {
	Magic        [4]byte
	Endian       uint8
	Version      uint8
	Arch         uint8
	OS           uint8
	Flags        uint32
	ThreadID     uint32
	ClockType    ClockType
	_reserved    [3]byte
	EventSize    uint32
	EventCount   uint32
	EventsOffset uint64
	FooterOffset uint64
	TimeStartNs  uint64
	TimeEndNs    uint64
}

// archCode and osCode give a reader a coarse platform discriminant
// without parsing a string table.
func archCode() uint8 {
	switch runtime.GOARCH {
	case "amd64":
		return 1
	case "arm64":
		return 2
	default:
		return 0
	}
}

func osCode() uint8 {
	switch runtime.GOOS {
	case "linux":
		return 1
	case "darwin":
		return 2
	default:
		return 0
	}
}

// newHeader builds a placeholder header for the given magic, thread, and
// record size, as written at file creation time (spec §4.8
// Initialization).
func newHeader(magic string, threadID uint32, eventSize uint32) Header {
	h := Header{
		Endian:       EndianLittle,
		Version:      FormatVersion,
		Arch:         archCode(),
		OS:           osCode(),
		ThreadID:     threadID,
		ClockType:    currentClockType(),
		EventSize:    eventSize,
		EventsOffset: EventsOffset,
	}
	copy(h.Magic[:], magic)
	return h
}

// Encode writes the little-endian 64-byte wire form of h into dst.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	for i := range dst[:HeaderSize] {
		dst[i] = 0
	}
	copy(dst[0:4], h.Magic[:])
	dst[4] = h.Endian
	dst[5] = h.Version
	dst[6] = h.Arch
	dst[7] = h.OS
	binary.LittleEndian.PutUint32(dst[8:12], h.Flags)
	binary.LittleEndian.PutUint32(dst[12:16], h.ThreadID)
	dst[16] = uint8(h.ClockType)
	binary.LittleEndian.PutUint32(dst[20:24], h.EventSize)
	binary.LittleEndian.PutUint32(dst[24:28], h.EventCount)
	binary.LittleEndian.PutUint64(dst[28:36], h.EventsOffset)
	binary.LittleEndian.PutUint64(dst[36:44], h.FooterOffset)
	binary.LittleEndian.PutUint64(dst[44:52], h.TimeStartNs)
	binary.LittleEndian.PutUint64(dst[52:60], h.TimeEndNs)
	// bytes 60..64 remain reserved/zero.
}

// DecodeHeader parses a 64-byte header or footer from src.
func DecodeHeader(src []byte) Header {
	_ = src[HeaderSize-1]
	var h Header
	copy(h.Magic[:], src[0:4])
	h.Endian = src[4]
	h.Version = src[5]
	h.Arch = src[6]
	h.OS = src[7]
	h.Flags = binary.LittleEndian.Uint32(src[8:12])
	h.ThreadID = binary.LittleEndian.Uint32(src[12:16])
	h.ClockType = ClockType(src[16])
	h.EventSize = binary.LittleEndian.Uint32(src[20:24])
	h.EventCount = binary.LittleEndian.Uint32(src[24:28])
	h.EventsOffset = binary.LittleEndian.Uint64(src[28:36])
	h.FooterOffset = binary.LittleEndian.Uint64(src[36:44])
	h.TimeStartNs = binary.LittleEndian.Uint64(src[44:52])
	h.TimeEndNs = binary.LittleEndian.Uint64(src[52:60])
	return h
}

// MagicValid reports whether m matches the expected magic string.
func (h Header) MagicValid(want string) bool {
	return string(h.Magic[:]) == want
}
