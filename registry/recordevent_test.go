// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry_test

import (
	"testing"

	"code.hybscloud.com/adatrace/backpressure"
	"code.hybscloud.com/adatrace/event"
	"code.hybscloud.com/adatrace/marking"
	"code.hybscloud.com/adatrace/registry"
)

func TestRecordEventWritesIndexAndDetail(t *testing.T) {
	r := registry.New(registry.WithRingCapacities(8, 8))
	set := r.Register(1)
	if set == nil {
		t.Fatal("Register: got nil")
	}

	set.RecordEvent(registry.RecordInput{
		TimestampNs:   1000,
		FunctionID:    42,
		EventKind:     event.KindCall,
		DetailEnabled: true,
		Payload:       []byte("abcd"),
	})

	if set.EventsGenerated.LoadAcquire() != 1 {
		t.Fatalf("EventsGenerated: got %d, want 1", set.EventsGenerated.LoadAcquire())
	}
	if set.LastEventTs.LoadAcquire() != 1000 {
		t.Fatalf("LastEventTs: got %d, want 1000", set.LastEventTs.LoadAcquire())
	}
	if set.Index.Counters.Written.LoadAcquire() != 1 {
		t.Fatalf("Index Written: got %d, want 1", set.Index.Counters.Written.LoadAcquire())
	}
	if set.Detail.Counters.Written.LoadAcquire() != 1 {
		t.Fatalf("Detail Written: got %d, want 1", set.Detail.Counters.Written.LoadAcquire())
	}
	if set.Counters.IndexCount() != 1 {
		t.Fatalf("IndexCount: got %d, want 1", set.Counters.IndexCount())
	}
	if set.Counters.DetailCount() != 1 {
		t.Fatalf("DetailCount: got %d, want 1", set.Counters.DetailCount())
	}
}

func TestRecordEventWithoutDetailLeavesDetailCountUntouched(t *testing.T) {
	r := registry.New(registry.WithRingCapacities(8, 8))
	set := r.Register(1)

	set.RecordEvent(registry.RecordInput{TimestampNs: 1, FunctionID: 1, EventKind: event.KindCall})

	if set.Detail.Counters.Written.LoadAcquire() != 0 {
		t.Fatalf("Detail Written: got %d, want 0 when DetailEnabled is false", set.Detail.Counters.Written.LoadAcquire())
	}
	if set.Counters.DetailCount() != 0 {
		t.Fatalf("DetailCount: got %d, want 0", set.Counters.DetailCount())
	}
}

// TestRecordEventPoolExhaustionDropOldest drives the index lane past every
// ring's capacity with the default drop-oldest policy: writes accepted plus
// records dropped must equal events_generated (spec §8 Testable Property #6,
// scenario S2).
func TestRecordEventPoolExhaustionDropOldest(t *testing.T) {
	const ringCap = 4
	r := registry.New(registry.WithRingCapacities(ringCap, ringCap))
	set := r.Register(1)

	const total = 200
	for i := range total {
		set.RecordEvent(registry.RecordInput{TimestampNs: uint64(i + 1), FunctionID: uint64(i), EventKind: event.KindCall})
	}

	written := set.Index.Counters.Written.LoadAcquire()
	dropped := set.Index.Counters.Dropped.LoadAcquire()
	if written+dropped != total {
		t.Fatalf("written(%d)+dropped(%d) = %d, want %d", written, dropped, written+dropped, total)
	}
	if set.EventsGenerated.LoadAcquire() != total {
		t.Fatalf("EventsGenerated: got %d, want %d", set.EventsGenerated.LoadAcquire(), total)
	}
	if set.IndexBackpressure.Current() == backpressure.Normal {
		t.Fatalf("IndexBackpressure.Current: got Normal, want a non-Normal state once the pool has filled")
	}
}

// TestRecordEventDropNewestPolicySkipsWrite uses the drop-newest policy,
// which rejects the incoming event outright (backpressure.EventsDropped)
// rather than evicting a buffered record (lane.Counters.Dropped stays 0).
func TestRecordEventDropNewestPolicySkipsWrite(t *testing.T) {
	const ringCap = 4
	r := registry.New(
		registry.WithRingCapacities(ringCap, ringCap),
		registry.WithDropPolicy(backpressure.DropNewestPolicy{}),
	)
	set := r.Register(1)

	const total = 200
	for i := range total {
		set.RecordEvent(registry.RecordInput{TimestampNs: uint64(i + 1), FunctionID: uint64(i), EventKind: event.KindCall})
	}

	written := set.Index.Counters.Written.LoadAcquire()
	rejected := set.IndexBackpressure.EventsDropped.LoadAcquire()
	if written+rejected != total {
		t.Fatalf("written(%d)+rejected(%d) = %d, want %d", written, rejected, written+rejected, total)
	}
	if rejected == 0 {
		t.Fatal("expected drop-newest to reject some events once the pool is exhausted")
	}
	if set.Index.Counters.Dropped.LoadAcquire() != 0 {
		t.Fatal("drop-newest should never evict a buffered record (lane Dropped counter)")
	}
}

func TestRecordEventFeedsSelectiveMarking(t *testing.T) {
	policy := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetSymbol, Match: marking.MatchLiteral, Pattern: "panic"},
	})
	r := registry.New(registry.WithRingCapacities(8, 8), registry.WithMarkingPolicy(policy))
	set := r.Register(1)
	if set.Selective == nil {
		t.Fatal("Selective: want a non-nil controller when a marking policy is configured")
	}

	set.RecordEvent(registry.RecordInput{
		TimestampNs: 10,
		FunctionID:  1,
		EventKind:   event.KindCall,
		Probe:       marking.Probe{SymbolName: "panic_handler"},
	})

	if set.Selective.EventsProcessed.LoadAcquire() != 1 {
		t.Fatalf("Selective.EventsProcessed: got %d, want 1", set.Selective.EventsProcessed.LoadAcquire())
	}
}
