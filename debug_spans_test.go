// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"slices"
	"testing"
)

func spansEqual(a, b []span) bool {
	return slices.Equal(a, b)
}

func TestDebugRegionTake(t *testing.T) {
	tests := []struct {
		name        string
		off, length uint64
		want        []span
	}{
		{"exact", 0, 0x1000, nil},
		{"head cut", 0, 0x400, []span{{0x400, 0xc00}}},
		{"tail cut", 0xc00, 0x400, []span{{0, 0xc00}}},
		{"split", 0x400, 0x400, []span{{0, 0x400}, {0x800, 0x800}}},
	}
	for _, tt := range tests {
		r := &debugRegion{length: 0x1000, free: []span{{0, 0x1000}}}
		i := r.findSpan(tt.off, tt.length)
		if i != 0 {
			t.Fatalf("%s: findSpan got %d, want 0", tt.name, i)
		}
		r.take(i, tt.off, tt.length)
		if !spansEqual(r.free, tt.want) && !(len(r.free) == 0 && len(tt.want) == 0) {
			t.Fatalf("%s: got %v, want %v", tt.name, r.free, tt.want)
		}
	}
}

func TestDebugRegionFindSpan(t *testing.T) {
	r := &debugRegion{
		length: 0x4000,
		free:   []span{{0x0, 0x1000}, {0x2000, 0x1000}},
	}

	tests := []struct {
		name        string
		off, length uint64
		want        int
	}{
		{"first span", 0x0, 0x1000, 0},
		{"inside first", 0x200, 0x200, 0},
		{"second span", 0x2000, 0x800, 1},
		{"in the hole", 0x1000, 0x1000, -1},
		{"straddles hole", 0x800, 0x1000, -1},
		{"past all", 0x3000, 0x1000, -1},
	}
	for _, tt := range tests {
		if got := r.findSpan(tt.off, tt.length); got != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDebugRegionGive(t *testing.T) {
	tests := []struct {
		name        string
		free        []span
		off, length uint64
		ok          bool
		want        []span
	}{
		{
			"merge both sides",
			[]span{{0, 0x400}, {0x800, 0x800}},
			0x400, 0x400, true,
			[]span{{0, 0x1000}},
		},
		{
			"merge predecessor",
			[]span{{0, 0x400}},
			0x400, 0x400, true,
			[]span{{0, 0x800}},
		},
		{
			"merge successor",
			[]span{{0x800, 0x800}},
			0x400, 0x400, true,
			[]span{{0x400, 0xc00}},
		},
		{
			"isolated",
			[]span{{0, 0x100}, {0x1000, 0x100}},
			0x500, 0x100, true,
			[]span{{0, 0x100}, {0x500, 0x100}, {0x1000, 0x100}},
		},
		{
			"into empty",
			nil,
			0x500, 0x100, true,
			[]span{{0x500, 0x100}},
		},
		{
			"overlaps predecessor",
			[]span{{0, 0x800}},
			0x400, 0x400, false,
			nil,
		},
		{
			"overlaps successor",
			[]span{{0x800, 0x800}},
			0x700, 0x200, false,
			nil,
		},
		{
			"same range",
			[]span{{0x400, 0x400}},
			0x400, 0x400, false,
			nil,
		},
	}
	for _, tt := range tests {
		r := &debugRegion{length: 0x2000, free: slices.Clone(tt.free)}
		ok := r.give(tt.off, tt.length)
		if ok != tt.ok {
			t.Fatalf("%s: got %t, want %t", tt.name, ok, tt.ok)
		}
		if ok && !spansEqual(r.free, tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, r.free, tt.want)
		}
	}
}
