// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package atf

import "code.hybscloud.com/atomix"

// NoDetailSeq is reserve_sequences' sentinel detail sequence when the
// detail lane is disabled (spec §4.8), matching event.NoDetail.
const NoDetailSeq uint32 = 0xFFFF_FFFF

// SequenceCounters is the single atomic pair a thread's two writers
// share (spec §3 ThreadCounters, reserved atomically in one step per
// spec §4.8).
type SequenceCounters struct {
	indexCount  atomix.Uint64
	detailCount atomix.Uint64
}

// Reserve implements reserve_sequences: always advances index_count,
// advances detail_count only when detailEnabled, otherwise returns the
// NoDetailSeq sentinel (spec §4.8).
func (c *SequenceCounters) Reserve(detailEnabled bool) (indexSeq, detailSeq uint32) {
	indexSeq = uint32(c.indexCount.AddAcqRel(1) - 1)
	if !detailEnabled {
		return indexSeq, NoDetailSeq
	}
	detailSeq = uint32(c.detailCount.AddAcqRel(1) - 1)
	return indexSeq, detailSeq
}

// IndexCount returns the current index_count snapshot.
func (c *SequenceCounters) IndexCount() uint64 { return c.indexCount.LoadAcquire() }

// DetailCount returns the current detail_count snapshot.
func (c *SequenceCounters) DetailCount() uint64 { return c.detailCount.LoadAcquire() }
