// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"errors"
	"strings"
	"testing"
)

// A peer handing back a buffer we never gave out is a protocol violation.
// The inner backend is driven directly to simulate the rogue peer.
func TestDebugBufferNotInUse(t *testing.T) {
	inner := NewLoopback()
	dq := NewDebug(inner)

	rid, err := dq.Register(Region{Phys: 0x700000, Len: 0x2000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// nothing is in flight, yet a descriptor shows up below
	rogue := Descriptor{Region: rid, Offset: 0x800, Length: 0x800}
	if err := inner.back.enqueue(inner, &rogue); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if _, err := dq.Dequeue(); !errors.Is(err, ErrBufferNotInUse) {
		t.Fatalf("Dequeue: got %v, want ErrBufferNotInUse", err)
	}
}

// Dequeueing from a region this endpoint never registered creates shadow
// state lazily, with the observed extent as a growing lower bound.
func TestDebugInferredRegion(t *testing.T) {
	inner := NewLoopback()
	dq := NewDebug(inner)

	// the peer registered this region; only the pool is mirrored
	const rid = RegionID(4242)
	if err := dq.AddRegion(Region{Phys: 0x900000, Len: 0x4000}, rid); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}

	first := Descriptor{Region: rid, Offset: 0x1000, Length: 0x800}
	if err := inner.back.enqueue(inner, &first); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if _, err := dq.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	reg := dq.b.regions[rid]
	if reg == nil || !reg.notConsistent {
		t.Fatalf("inferred region not tracked: %+v", reg)
	}
	if reg.length != 0x1800 {
		t.Fatalf("inferred length: got %#x, want 0x1800", reg.length)
	}

	// the buffer is owned now; enqueueing it back must pass
	if err := dq.Enqueue(&first); err != nil {
		t.Fatalf("Enqueue owned: %v", err)
	}

	// a later observation beyond the known extent grows it
	further := Descriptor{Region: rid, Offset: 0x3000, Length: 0x1000}
	if err := inner.back.enqueue(inner, &further); err != nil {
		t.Fatalf("inject: %v", err)
	}
	// skip the echoed first buffer, then take the far one
	if _, err := dq.Dequeue(); err != nil {
		t.Fatalf("Dequeue echo: %v", err)
	}
	if _, err := dq.Dequeue(); err != nil {
		t.Fatalf("Dequeue far: %v", err)
	}
	if reg.length != 0x4000 {
		t.Fatalf("grown length: got %#x, want 0x4000", reg.length)
	}
}

func TestDebugDumpAndHistory(t *testing.T) {
	dq := NewDebug(NewLoopback())

	rid, err := dq.Register(Region{Phys: 0xa00000, Len: 0x1000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := Descriptor{Region: rid, Offset: 0x400, Length: 0x200}
	if err := dq.Enqueue(&d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	dump, err := dq.DumpRegion(rid)
	if err != nil {
		t.Fatalf("DumpRegion: %v", err)
	}
	if !strings.Contains(dump, "offset=0 length=1024") ||
		!strings.Contains(dump, "offset=1536 length=2560") {
		t.Fatalf("DumpRegion missing spans:\n%s", dump)
	}

	hist := dq.History()
	if len(hist) != 2 {
		t.Fatalf("History length: got %d, want 2", len(hist))
	}
	if !strings.HasPrefix(hist[0], "register") || !strings.HasPrefix(hist[1], "enqueue") {
		t.Fatalf("History order: %v", hist)
	}

	if _, err := dq.DumpRegion(rid + 1); !errors.Is(err, ErrInvalidRegionID) {
		t.Fatalf("DumpRegion unknown: got %v, want ErrInvalidRegionID", err)
	}
}
