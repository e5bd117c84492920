// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/atf"
)

// ThreadManifestEntry is one entry of manifest.json's "threads" array
// (spec §6).
type ThreadManifestEntry struct {
	ThreadID      uint32 `json:"thread_id"`
	IndexEvents   uint64 `json:"index_events"`
	DetailEvents  uint64 `json:"detail_events"`
	DetailPresent bool   `json:"detail_present"`
}

// Manifest is manifest.json's top-level shape: `{os, arch, clock_type,
// time_start_ns, time_end_ns, threads:[...]}` (spec §6).
//
// Writing this file is not owned by any §4 component; SPEC_FULL.md §C.1
// supplements the shutdown coordinator's Finalizing phase with it.
type Manifest struct {
	OS          string                `json:"os"`
	Arch        string                `json:"arch"`
	ClockType   string                `json:"clock_type"`
	TimeStartNs uint64                `json:"time_start_ns"`
	TimeEndNs   uint64                `json:"time_end_ns"`
	Threads     []ThreadManifestEntry `json:"threads"`
}

// NewManifest builds a manifest from the session's observed time span.
func NewManifest(clockType atf.ClockType, timeStartNs, timeEndNs uint64) Manifest {
	return Manifest{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		ClockType:   clockTypeName(clockType),
		TimeStartNs: timeStartNs,
		TimeEndNs:   timeEndNs,
	}
}

func clockTypeName(c atf.ClockType) string {
	switch c {
	case atf.ClockBootTime:
		return "boottime"
	case atf.ClockMonotonicRaw:
		return "monotonic_raw"
	default:
		return "unspecified"
	}
}

// WriteManifest writes manifest.json into sessionDir and fsyncs it before
// returning (spec §4.10 step 3: "flush + fsync on events file and
// manifest").
func WriteManifest(sessionDir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return adaerr.New(adaerr.IOFailure, "session.write_manifest", err)
	}
	path := filepath.Join(sessionDir, "manifest.json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return adaerr.New(adaerr.IOFailure, "session.write_manifest", err)
	}
	_, writeErr := f.Write(raw)
	syncErr := f.Sync()
	closeErr := f.Close()
	if writeErr != nil {
		return adaerr.New(adaerr.IOFailure, "session.write_manifest", writeErr)
	}
	if syncErr != nil {
		return adaerr.New(adaerr.IOFailure, "session.write_manifest", syncErr)
	}
	if closeErr != nil {
		return adaerr.New(adaerr.IOFailure, "session.write_manifest", closeErr)
	}
	return nil
}

// OpenWindowMetadataJournal opens window_metadata.jsonl for append,
// creating it if absent (spec §4.7/§6).
func OpenWindowMetadataJournal(sessionDir string) (*os.File, error) {
	path := filepath.Join(sessionDir, "window_metadata.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, adaerr.New(adaerr.IOFailure, "session.open_window_metadata_journal", err)
	}
	return f, nil
}
