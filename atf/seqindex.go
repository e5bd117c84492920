// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package atf

import "encoding/binary"

// SeqIndex is the per-file detail_seq → byte-offset map referenced by
// SPEC_FULL.md §C.2: index.atf needs no such table (a fixed-width
// record's offset is EventsOffset + seq*RecordSize), but detail.atf's
// variable-length records require one so a reader can reach a detail
// record by sequence number in O(1) without a full scan.
//
// Built incrementally while writing, then serialized as a trailer table
// between the event stream and the footer.
type SeqIndex struct {
	offsets []uint64 // offsets[seq] = byte offset of that record from file start
}

// Record appends the offset for the next sequence number. Sequence
// numbers are assigned densely and in order by the caller (the
// ThreadCounters reservation), so Record is always called in seq order.
func (s *SeqIndex) Record(offset uint64) {
	s.offsets = append(s.offsets, offset)
}

// Len reports how many offsets have been recorded.
func (s *SeqIndex) Len() int { return len(s.offsets) }

// Offset returns the byte offset recorded for seq, and whether it exists.
func (s *SeqIndex) Offset(seq uint32) (uint64, bool) {
	if int(seq) >= len(s.offsets) {
		return 0, false
	}
	return s.offsets[seq], true
}

// seqIndexTrailerSize returns the encoded byte width of a trailer table
// holding n entries: a 4-byte count followed by n 8-byte offsets.
func seqIndexTrailerSize(n int) int { return 4 + 8*n }

// Encode serializes the trailer table in the format Decode expects.
func (s *SeqIndex) Encode() []byte {
	buf := make([]byte, seqIndexTrailerSize(len(s.offsets)))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(s.offsets)))
	for i, off := range s.offsets {
		binary.LittleEndian.PutUint64(buf[4+8*i:12+8*i], off)
	}
	return buf
}

// DecodeSeqIndex parses a trailer table previously produced by Encode.
func DecodeSeqIndex(buf []byte) SeqIndex {
	if len(buf) < 4 {
		return SeqIndex{}
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	s := SeqIndex{offsets: make([]uint64, 0, n)}
	for i := 0; i < n && 4+8*(i+1) <= len(buf); i++ {
		s.offsets = append(s.offsets, binary.LittleEndian.Uint64(buf[4+8*i:12+8*i]))
	}
	return s
}
