// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/session"
)

func TestDirNaming(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	dir := session.Dir("/tmp/root", now)
	if !strings.Contains(dir, "session_20260731_120000_") {
		t.Fatalf("Dir: got %q, want it to contain session_20260731_120000_", dir)
	}
	if filepath.Base(filepath.Dir(dir)) != "ada_traces" {
		t.Fatalf("Dir parent: got %q, want ada_traces", filepath.Base(filepath.Dir(dir)))
	}
}

func TestControlBlockModeProgression(t *testing.T) {
	cb := session.NewControlBlock(100, 200)
	if cb.Mode() != session.RegistryGlobalOnly {
		t.Fatalf("initial mode: got %v, want GlobalOnly", cb.Mode())
	}
	cb.Promote()
	if cb.Mode() != session.RegistryDualWrite {
		t.Fatalf("after Promote: got %v, want DualWrite", cb.Mode())
	}
	cb.Promote()
	if cb.Mode() != session.RegistryPerThreadOnly {
		t.Fatalf("after 2nd Promote: got %v, want PerThreadOnly", cb.Mode())
	}
	cb.Promote()
	if cb.Mode() != session.RegistryPerThreadOnly {
		t.Fatalf("Promote at ceiling: got %v, want PerThreadOnly (no-op)", cb.Mode())
	}
	cb.Demote()
	cb.Demote()
	cb.Demote()
	if cb.Mode() != session.RegistryGlobalOnly {
		t.Fatalf("after 3x Demote: got %v, want GlobalOnly (floor no-op)", cb.Mode())
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := session.NewManifest(atf.ClockBootTime, 1000, 2000)
	m.Threads = append(m.Threads, session.ThreadManifestEntry{
		ThreadID: 7, IndexEvents: 1000, DetailEvents: 0, DetailPresent: false,
	})
	if err := session.WriteManifest(dir, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded session.Manifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if decoded.TimeStartNs != 1000 || decoded.TimeEndNs != 2000 {
		t.Fatalf("decoded time span: got (%d,%d), want (1000,2000)", decoded.TimeStartNs, decoded.TimeEndNs)
	}
	if decoded.ClockType != "boottime" {
		t.Fatalf("decoded.ClockType: got %q, want boottime", decoded.ClockType)
	}
	if len(decoded.Threads) != 1 || decoded.Threads[0].ThreadID != 7 {
		t.Fatalf("decoded.Threads: got %+v, want one entry with ThreadID 7", decoded.Threads)
	}
}
