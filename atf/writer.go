// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package atf

import (
	"os"
	"path/filepath"

	"github.com/cloudwego/gopkg/bufiox"

	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/event"
)

// Phase is the writer's lifecycle state (spec §4.8 state machine:
// Init → Active → Writing* → Active → Finalizing → Closed, with an
// Error branch).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseActive
	PhaseWriting
	PhaseFinalizing
	PhaseClosed
	PhaseError
)

// IndexWriter is the per-thread index.atf writer: direct 32-byte record
// copies, buffered with bufiox the way cloudwego-gopkg buffers its wire
// protocol writes — zero-copy Malloc for the fixed record width, one
// Flush per drained ring.
type IndexWriter struct {
	phase Phase
	file  *os.File
	buf   *bufiox.DefaultWriter

	header       Header
	bytesWritten uint64
	firstEvent   bool
	recoverable  bool
}

// NewIndexWriter creates thread_<i>/index.atf under dir and writes the
// placeholder header (spec §4.8 Initialization).
func NewIndexWriter(dir string, threadID int) (*IndexWriter, error) {
	path := filepath.Join(dir, "index.atf")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, adaerr.New(adaerr.IOFailure, "atf.new_index_writer", err)
	}
	w := &IndexWriter{
		file:       f,
		buf:        bufiox.NewDefaultWriter(f),
		header:     newHeader(MagicIndexHeader, uint32(threadID), event.IndexSize),
		firstEvent: true,
		phase:      PhaseActive,
	}
	hdr := make([]byte, HeaderSize)
	w.header.Encode(hdr)
	if _, err := f.Write(hdr); err != nil {
		w.phase = PhaseError
		return w, adaerr.New(adaerr.IOFailure, "atf.new_index_writer", err)
	}
	return w, nil
}

// Append writes one 32-byte index record (spec §4.8 Index event append).
func (w *IndexWriter) Append(ev event.IndexEvent) error {
	if w.phase == PhaseError || w.phase == PhaseClosed {
		return adaerr.New(adaerr.State, "atf.index_append", nil)
	}
	w.phase = PhaseWriting
	if w.firstEvent {
		w.header.TimeStartNs = ev.TimestampNs
		w.firstEvent = false
	}
	w.header.TimeEndNs = ev.TimestampNs

	buf, err := w.buf.Malloc(event.IndexSize)
	if err != nil {
		return w.fail(err)
	}
	ev.Encode(buf)
	w.header.EventCount++
	w.bytesWritten += event.IndexSize
	w.phase = PhaseActive
	return nil
}

// BytesWritten reports the number of event-stream bytes appended so far
// (spec §4.8 Index event append: "update event_count, bytes_written,
// time_end_ns").
func (w *IndexWriter) BytesWritten() uint64 { return w.bytesWritten }

// AppendBatch writes multiple index records then flushes once, matching
// the performance target of spec §4.8 ("batch up to N events into one
// write call when available").
func (w *IndexWriter) AppendBatch(evs []event.IndexEvent) error {
	for i := range evs {
		if err := w.Append(evs[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Flush pushes buffered bytes to the underlying file.
func (w *IndexWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *IndexWriter) fail(err error) error {
	w.phase = PhaseError
	w.recoverable = true
	if isDiskFull(err) {
		return adaerr.New(adaerr.DiskFull, "atf.index_write", err)
	}
	return adaerr.New(adaerr.IOFailure, "atf.index_write", err)
}

// SetDetailPresent sets the flag bit the finalize step requires when the
// paired detail.atf file exists and contains events (spec §4.8).
func (w *IndexWriter) SetDetailPresent() { w.header.Flags |= FlagDetailPresent }

// Finalize flushes, rewrites the header in place, appends the authoritative
// footer, and closes the file (spec §4.8 Finalization). On the Error
// branch it still attempts to flush and write a footer, marking the file
// recoverable-but-truncated.
func (w *IndexWriter) Finalize() error {
	w.phase = PhaseFinalizing
	flushErr := w.buf.Flush()

	w.header.FooterOffset = uint64(EventsOffset) + w.bytesWritten

	hdr := make([]byte, HeaderSize)
	w.header.Encode(hdr)
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		w.phase = PhaseError
		return adaerr.New(adaerr.IOFailure, "atf.index_finalize", err)
	}

	footer := w.header
	copy(footer.Magic[:], MagicIndexFooter)
	footerBytes := make([]byte, HeaderSize)
	footer.Encode(footerBytes)
	if _, err := w.file.WriteAt(footerBytes, int64(w.header.FooterOffset)); err != nil {
		w.phase = PhaseError
		return adaerr.New(adaerr.IOFailure, "atf.index_finalize", err)
	}

	syncErr := w.file.Sync()

	w.phase = PhaseClosed
	closeErr := w.file.Close()
	if flushErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.index_finalize", flushErr)
	}
	if syncErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.index_finalize", syncErr)
	}
	if closeErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.index_finalize", closeErr)
	}
	return nil
}

// EventCount reports the number of index records appended so far.
func (w *IndexWriter) EventCount() uint64 { return w.header.EventCount }

// DetailWriter is the per-thread detail.atf writer: length-prefixed
// variable records (header + payload), same buffered/finalize shape as
// IndexWriter.
type DetailWriter struct {
	phase  Phase
	file   *os.File
	buf    *bufiox.DefaultWriter
	header Header

	firstEvent   bool
	streamOffset uint64 // bytes written since EventsOffset
	bytesWritten uint64
	seqIndex     SeqIndex
}

// NewDetailWriter creates thread_<i>/detail.atf and writes its
// placeholder header.
func NewDetailWriter(dir string, threadID int) (*DetailWriter, error) {
	path := filepath.Join(dir, "detail.atf")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, adaerr.New(adaerr.IOFailure, "atf.new_detail_writer", err)
	}
	w := &DetailWriter{
		file:       f,
		buf:        bufiox.NewDefaultWriter(f),
		header:     newHeader(MagicDetailHeader, uint32(threadID), 0),
		firstEvent: true,
		phase:      PhaseActive,
	}
	hdr := make([]byte, HeaderSize)
	w.header.Encode(hdr)
	if _, err := f.Write(hdr); err != nil {
		w.phase = PhaseError
		return w, adaerr.New(adaerr.IOFailure, "atf.new_detail_writer", err)
	}
	return w, nil
}

// Append serializes the header then payload for one detail record
// (spec §4.8 Detail event append). total_length must exactly cover
// header + payload; the caller is expected to have set it via
// event.DetailHeader construction. The record's detail_seq is implied by
// call order, matching SeqIndex.Record's append-only indexing.
func (w *DetailWriter) Append(hdr event.DetailHeader, payload []byte) error {
	if w.phase == PhaseError || w.phase == PhaseClosed {
		return adaerr.New(adaerr.State, "atf.detail_append", nil)
	}
	w.phase = PhaseWriting
	if w.firstEvent {
		w.header.TimeStartNs = hdr.TimestampNs
		w.firstEvent = false
	}
	w.header.TimeEndNs = hdr.TimestampNs

	w.seqIndex.Record(uint64(EventsOffset) + w.streamOffset)

	buf, err := w.buf.Malloc(event.DetailHeaderSize)
	if err != nil {
		return w.fail(err)
	}
	hdr.Encode(buf)
	if _, err := w.buf.WriteBinary(payload); err != nil {
		return w.fail(err)
	}
	recSize := uint64(event.DetailHeaderSize + len(payload))
	w.streamOffset += recSize
	w.bytesWritten += recSize
	w.header.EventCount++
	w.phase = PhaseActive
	return nil
}

// BytesWritten reports the number of event-stream bytes appended so far.
func (w *DetailWriter) BytesWritten() uint64 { return w.bytesWritten }

// SeqOffset resolves a detail_seq to its byte offset via the in-memory
// SeqIndex built while writing.
func (w *DetailWriter) SeqOffset(seq uint32) (uint64, bool) { return w.seqIndex.Offset(seq) }

// Flush pushes buffered bytes to the underlying file.
func (w *DetailWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *DetailWriter) fail(err error) error {
	w.phase = PhaseError
	if isDiskFull(err) {
		return adaerr.New(adaerr.DiskFull, "atf.detail_write", err)
	}
	return adaerr.New(adaerr.IOFailure, "atf.detail_write", err)
}

// Finalize mirrors IndexWriter.Finalize for the detail file, additionally
// appending the SeqIndex trailer table between the event stream and the
// footer (SPEC_FULL.md §C.2).
func (w *DetailWriter) Finalize() error {
	w.phase = PhaseFinalizing
	flushErr := w.buf.Flush()

	seqIndexBytes := w.seqIndex.Encode()
	w.header.FooterOffset = uint64(EventsOffset) + w.streamOffset + uint64(len(seqIndexBytes))

	hdr := make([]byte, HeaderSize)
	w.header.Encode(hdr)
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		w.phase = PhaseError
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", err)
	}

	if _, err := w.file.Write(seqIndexBytes); err != nil {
		w.phase = PhaseError
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", err)
	}

	footer := w.header
	copy(footer.Magic[:], MagicDetailFooter)
	footerBytes := make([]byte, HeaderSize)
	footer.Encode(footerBytes)
	if _, err := w.file.WriteAt(footerBytes, int64(w.header.FooterOffset)); err != nil {
		w.phase = PhaseError
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", err)
	}

	syncErr := w.file.Sync()

	w.phase = PhaseClosed
	closeErr := w.file.Close()
	if flushErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", flushErr)
	}
	if syncErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", syncErr)
	}
	if closeErr != nil {
		return adaerr.New(adaerr.IOFailure, "atf.detail_finalize", closeErr)
	}
	return nil
}

// EventCount reports the number of detail records appended so far.
func (w *DetailWriter) EventCount() uint64 { return w.header.EventCount }

// HasEvents reports whether any detail record was written, consulted when
// finalizing the paired IndexWriter to decide FlagDetailPresent.
func (w *DetailWriter) HasEvents() bool { return w.header.EventCount > 0 }

func isDiskFull(err error) bool {
	return err != nil && isENOSPC(err)
}
