// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry_test

import (
	"testing"

	"code.hybscloud.com/adatrace/registry"
)

func TestRegisterUnregister(t *testing.T) {
	r := registry.New()
	set := r.Register(1)
	if set == nil {
		t.Fatal("Register: got nil, want a claimed slot")
	}
	if !set.IsActive() {
		t.Fatal("newly registered slot should be active")
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount: got %d, want 1", r.ActiveCount())
	}
	if set.Index == nil || set.Detail == nil {
		t.Fatal("Register should lazily initialize both lanes")
	}

	r.Unregister(set)
	if set.IsActive() {
		t.Fatal("Unregister should clear the active flag")
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount after Unregister: got %d, want 0", r.ActiveCount())
	}
}

func TestRegisterReusesLanesOnReRegistration(t *testing.T) {
	r := registry.New()
	first := r.Register(1)
	r.Unregister(first)
	second := r.Register(2)
	if second != first {
		t.Fatal("want the same freed slot reused by the next Register")
	}
	if second.Index != first.Index || second.Detail != first.Detail {
		t.Fatal("re-registration within a session should reuse the same lanes, not reallocate")
	}
}

func TestRegisterExhaustsAllSlots(t *testing.T) {
	r := registry.New()
	for i := range registry.MaxThreads {
		if set := r.Register(uint32(i)); set == nil {
			t.Fatalf("Register(%d): got nil before exhausting MaxThreads slots", i)
		}
	}
	if set := r.Register(uint32(registry.MaxThreads)); set != nil {
		t.Fatal("Register beyond MaxThreads slots should return nil")
	}
}

func TestCloseReopenRegistrations(t *testing.T) {
	r := registry.New()
	r.CloseRegistrations()
	if set := r.Register(1); set != nil {
		t.Fatal("Register after CloseRegistrations should return nil")
	}
	r.ReopenRegistrations()
	if set := r.Register(1); set == nil {
		t.Fatal("Register after ReopenRegistrations should succeed")
	}
}

func TestThreadAtBounds(t *testing.T) {
	r := registry.New()
	if r.ThreadAt(-1) != nil {
		t.Fatal("ThreadAt(-1): want nil")
	}
	if r.ThreadAt(registry.MaxThreads) != nil {
		t.Fatal("ThreadAt(MaxThreads): want nil")
	}
	if r.ThreadAt(0) == nil {
		t.Fatal("ThreadAt(0): want a non-nil slot pointer even before registration")
	}
}

func TestShutdownRequested(t *testing.T) {
	r := registry.New()
	if r.ShutdownRequested() {
		t.Fatal("fresh registry: ShutdownRequested want false")
	}
	r.RequestShutdown()
	if !r.ShutdownRequested() {
		t.Fatal("after RequestShutdown: ShutdownRequested want true")
	}
}
