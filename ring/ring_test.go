// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/ring"
)

func TestRingBufferBasic(t *testing.T) {
	r := ring.New[int](3)

	if r.Cap() != 4 {
		t.Fatalf("Cap: got %d, want 4", r.Cap())
	}

	for i := range 4 {
		v := i + 100
		if err := r.Write(&v); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}

	v := 999
	if err := r.Write(&v); !errors.Is(err, adaerr.ErrWouldBlock) {
		t.Fatalf("Write on full: got %v, want ErrWouldBlock", err)
	}

	for i := range 4 {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read(%d): %v", i, err)
		}
		if got != i+100 {
			t.Fatalf("Read(%d): got %d, want %d", i, got, i+100)
		}
	}

	if _, err := r.Read(); !errors.Is(err, adaerr.ErrWouldBlock) {
		t.Fatalf("Read on empty: got %v, want ErrWouldBlock", err)
	}
}

func TestRingBufferLenFree(t *testing.T) {
	r := ring.New[int](4)
	if r.Len() != 0 || r.Free() != 4 {
		t.Fatalf("fresh ring: Len=%d Free=%d, want 0/4", r.Len(), r.Free())
	}
	v := 1
	_ = r.Write(&v)
	_ = r.Write(&v)
	if r.Len() != 2 || r.Free() != 2 {
		t.Fatalf("after 2 writes: Len=%d Free=%d, want 2/2", r.Len(), r.Free())
	}
}

func TestRingBufferReadAll(t *testing.T) {
	r := ring.New[int](8)
	for i := range 5 {
		v := i
		_ = r.Write(&v)
	}
	got := r.ReadAll(nil)
	if len(got) != 5 {
		t.Fatalf("ReadAll: got %d records, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("ReadAll[%d]: got %d, want %d", i, v, i)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("after ReadAll: Len=%d, want 0", r.Len())
	}
}

func TestRingBufferDropOldest(t *testing.T) {
	r := ring.New[int](4)
	if r.DropOldest() {
		t.Fatal("DropOldest on empty ring: want false")
	}
	for i := range 4 {
		v := i
		_ = r.Write(&v)
	}
	if !r.DropOldest() {
		t.Fatal("DropOldest on full ring: want true")
	}
	if r.Len() != 3 {
		t.Fatalf("after DropOldest: Len=%d, want 3", r.Len())
	}
	got, err := r.Read()
	if err != nil || got != 1 {
		t.Fatalf("Read after drop: got (%d, %v), want (1, nil)", got, err)
	}
}

func TestIndexQueueBasic(t *testing.T) {
	q := ring.NewIndexQueue(3)

	if q.Cap() != 4 {
		t.Fatalf("Cap: got %d, want 4", q.Cap())
	}

	for i := range uint32(4) {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}

	if err := q.Push(999); !errors.Is(err, adaerr.ErrWouldBlock) {
		t.Fatalf("Push on full: got %v, want ErrWouldBlock", err)
	}

	for i := range uint32(4) {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop(%d): %v", i, err)
		}
		if got != i {
			t.Fatalf("Pop(%d): got %d, want %d", i, got, i)
		}
	}

	if _, err := q.Pop(); !errors.Is(err, adaerr.ErrWouldBlock) {
		t.Fatalf("Pop on empty: got %v, want ErrWouldBlock", err)
	}
}
