// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"code.hybscloud.com/cleanq"
)

func TestDebugDoubleEnqueue(t *testing.T) {
	dq := cleanq.NewDebug(cleanq.NewLoopback())

	rid, err := dq.Register(cleanq.Region{Phys: 0x700000, Len: 64 * 2048})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	d := cleanq.Descriptor{Region: rid, Offset: 0, Length: 2048}
	if err := dq.Enqueue(&d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := dq.Enqueue(&d); !errors.Is(err, cleanq.ErrInvalidBufferArgs) {
		t.Fatalf("double Enqueue: got %v, want ErrInvalidBufferArgs", err)
	}

	// the wrapped backend saw exactly one descriptor
	if _, err := dq.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if _, err := dq.Dequeue(); !errors.Is(err, cleanq.ErrQueueEmpty) {
		t.Fatalf("Dequeue: got %v, want ErrQueueEmpty", err)
	}
}

func TestDebugOverlappingEnqueue(t *testing.T) {
	dq := cleanq.NewDebug(cleanq.NewLoopback())

	rid, err := dq.Register(cleanq.Region{Phys: 0x700000, Len: 0x4000}) // 8 * 0x800
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	mid := cleanq.Descriptor{Region: rid, Offset: 0x1000, Length: 0x800}
	if err := dq.Enqueue(&mid); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tests := []struct {
		name        string
		off, length uint64
	}{
		{"same range", 0x1000, 0x800},
		{"straddles left edge", 0xc00, 0x800},
		{"straddles right edge", 0x1400, 0x800},
		{"contains", 0x800, 0x2000},
	}
	for _, tt := range tests {
		d := cleanq.Descriptor{Region: rid, Offset: tt.off, Length: tt.length}
		if err := dq.Enqueue(&d); !errors.Is(err, cleanq.ErrInvalidBufferArgs) {
			t.Fatalf("%s: got %v, want ErrInvalidBufferArgs", tt.name, err)
		}
	}

	// the untouched neighbors still enqueue fine
	left := cleanq.Descriptor{Region: rid, Offset: 0x800, Length: 0x800}
	if err := dq.Enqueue(&left); err != nil {
		t.Fatalf("Enqueue left: %v", err)
	}
	right := cleanq.Descriptor{Region: rid, Offset: 0x1800, Length: 0x800}
	if err := dq.Enqueue(&right); err != nil {
		t.Fatalf("Enqueue right: %v", err)
	}
}

func TestDebugEnqueueUnknownRegion(t *testing.T) {
	dq := cleanq.NewDebug(cleanq.NewLoopback())
	d := cleanq.Descriptor{Region: 99, Offset: 0, Length: 2048}
	if err := dq.Enqueue(&d); !errors.Is(err, cleanq.ErrInvalidBufferArgs) {
		// rejected by the pool before the shadow state is consulted
		t.Fatalf("Enqueue: got %v, want ErrInvalidBufferArgs", err)
	}
}

func TestDebugDeregisterInFlight(t *testing.T) {
	dq := cleanq.NewDebug(cleanq.NewLoopback())

	rid, err := dq.Register(cleanq.Region{Phys: 0x700000, Len: 0x2000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := cleanq.Descriptor{Region: rid, Offset: 0, Length: 0x800}
	if err := dq.Enqueue(&d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if _, err := dq.Deregister(rid); !errors.Is(err, cleanq.ErrRegionDestroy) {
		t.Fatalf("Deregister in flight: got %v, want ErrRegionDestroy", err)
	}

	// the refusal must leave the region registered and usable
	if _, err := dq.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if _, err := dq.Deregister(rid); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := dq.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

// =============================================================================
// Randomized Workload with Independent Oracle
// =============================================================================

// debugOracle simulates the ownership protocol independently: per block a
// free bit, plus the FIFO of ranges in flight.
type debugOracle struct {
	blocks   []bool // true = owned
	inflight []cleanq.Descriptor
}

func (o *debugOracle) owned(off, length, block uint64) bool {
	for b := off / block; b < (off+length)/block; b++ {
		if !o.blocks[b] {
			return false
		}
	}
	return true
}

func (o *debugOracle) setOwned(off, length, block uint64, owned bool) {
	for b := off / block; b < (off+length)/block; b++ {
		o.blocks[b] = owned
	}
}

func TestDebugRandomWorkload(t *testing.T) {
	const (
		blockSize = 2048
		numBlocks = 32
		rounds    = 1_000_000
	)

	dq := cleanq.NewDebug(cleanq.NewLoopback())
	rid, err := dq.Register(cleanq.Region{Phys: 0x700000, Len: numBlocks * blockSize})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	oracle := &debugOracle{blocks: make([]bool, numBlocks)}
	for i := range oracle.blocks {
		oracle.blocks[i] = true
	}

	rng := rand.New(rand.NewPCG(0xc1ea, 0x0001))
	for round := range rounds {
		if rng.IntN(2) == 0 {
			// enqueue a random block-aligned range, owned or not
			start := rng.Uint64N(numBlocks)
			n := 1 + rng.Uint64N(numBlocks-start)
			d := cleanq.Descriptor{
				Region: rid,
				Offset: start * blockSize,
				Length: n * blockSize,
			}

			wantOK := oracle.owned(d.Offset, d.Length, blockSize) &&
				len(oracle.inflight) < 64
			err := dq.Enqueue(&d)
			if wantOK != (err == nil) {
				t.Fatalf("round %d: enqueue [%d,+%d) got %v, oracle says ok=%t",
					round, d.Offset, d.Length, err, wantOK)
			}
			if err == nil {
				oracle.setOwned(d.Offset, d.Length, blockSize, false)
				oracle.inflight = append(oracle.inflight, d)
			}
		} else {
			d, err := dq.Dequeue()
			if len(oracle.inflight) == 0 {
				if !errors.Is(err, cleanq.ErrQueueEmpty) {
					t.Fatalf("round %d: dequeue got %v, oracle says empty", round, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("round %d: dequeue: %v", round, err)
			}
			want := oracle.inflight[0]
			oracle.inflight = oracle.inflight[1:]
			if d != want {
				t.Fatalf("round %d: dequeue got %+v, want %+v", round, d, want)
			}
			oracle.setOwned(d.Offset, d.Length, blockSize, true)
		}
	}

	// drain: afterwards the debug state must reconstruct the full region
	for len(oracle.inflight) > 0 {
		d, err := dq.Dequeue()
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if d != oracle.inflight[0] {
			t.Fatalf("drain: got %+v, want %+v", d, oracle.inflight[0])
		}
		oracle.inflight = oracle.inflight[1:]
	}
	if _, err := dq.Deregister(rid); err != nil {
		t.Fatalf("Deregister after drain: %v", err)
	}
	if err := dq.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}
