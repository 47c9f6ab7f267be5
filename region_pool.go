// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	crand "crypto/rand"
	"encoding/binary"
)

// initPoolSize is the initial slot count of a region pool.
const initPoolSize = 16

// regionPool tracks the memory regions registered with one endpoint of a
// queue.
//
// The pool is an open-addressed table with power-of-two capacity. A region
// ID encodes its table slot in the low bits (id & (capacity-1)) and a
// high-entropy base in the remaining bits. The base is drawn once at pool
// creation, which gives a cheap probabilistic use-after-free check:
// descriptors cross trust boundaries, and an ID minted by a previous
// incarnation of the endpoint will almost never alias a live slot.
type regionPool struct {
	// table holds the registered regions, indexed by id & (len-1).
	table []*poolRegion

	// numRegions is the number of live regions.
	numRegions int

	// randomBase is the high-entropy offset region IDs start from.
	randomBase uint64

	// lastOffset is the probe offset the previous insertion ended on,
	// kept as a hint for the next one.
	lastOffset uint64
}

// poolRegion is one live table entry.
type poolRegion struct {
	id RegionID
	r  Region
}

// newRegionPool creates an empty pool with a random ID base.
func newRegionPool() *regionPool {
	var seed [8]byte
	// crypto/rand never fails on the supported platforms
	_, _ = crand.Read(seed[:])
	return newRegionPoolSeeded(binary.LittleEndian.Uint64(seed[:]))
}

// newRegionPoolSeeded creates an empty pool with a fixed ID base.
// Tests use this for deterministic IDs.
func newRegionPoolSeeded(seed uint64) *regionPool {
	return &regionPool{
		table:      make([]*poolRegion, initPoolSize),
		randomBase: seed,
	}
}

// grow doubles the table and rehashes every live region by the new mask.
func (p *regionPool) grow() {
	next := make([]*poolRegion, len(p.table)*2)
	mask := uint64(len(next) - 1)
	for _, reg := range p.table {
		if reg != nil {
			next[uint64(reg.id)&mask] = reg
		}
	}
	p.table = next
	p.lastOffset = 0
}

// add registers r and assigns it a fresh ID.
//
// Returns ErrInvalidRegionArgs if r is empty or its physical range
// intersects a live region.
func (p *regionPool) add(r Region) (RegionID, error) {
	if r.Len == 0 {
		return 0, ErrInvalidRegionArgs
	}

	for _, reg := range p.table {
		if reg == nil {
			continue
		}
		if reg.r.Phys == r.Phys {
			return 0, ErrInvalidRegionArgs
		}
		// overlap unless r lies entirely before or entirely after reg
		if !(r.Phys+r.Len <= reg.r.Phys || reg.r.Phys+reg.r.Len <= r.Phys) {
			return 0, ErrInvalidRegionArgs
		}
	}

	if p.numRegions >= len(p.table) {
		p.grow()
	}
	p.numRegions++

	mask := uint64(len(p.table) - 1)
	offset := p.lastOffset
	for p.table[(p.randomBase+uint64(p.numRegions)+offset)&mask] != nil {
		offset++
	}
	p.lastOffset = offset

	id := RegionID(p.randomBase + uint64(p.numRegions) + offset)
	p.table[uint64(id)&mask] = &poolRegion{id: id, r: r}
	return id, nil
}

// addWithID registers r under an ID assigned by the peer's pool. Used when
// applying an in-band registration command, so both endpoints agree on the
// ID. Returns ErrInvalidRegionID if the slot is already taken.
func (p *regionPool) addWithID(r Region, id RegionID) error {
	if p.numRegions >= len(p.table) {
		p.grow()
	}

	mask := uint64(len(p.table) - 1)
	if p.table[uint64(id)&mask] != nil {
		return ErrInvalidRegionID
	}
	p.table[uint64(id)&mask] = &poolRegion{id: id, r: r}
	p.numRegions++
	return nil
}

// remove deregisters the region with the given ID and returns it.
func (p *regionPool) remove(id RegionID) (Region, error) {
	mask := uint64(len(p.table) - 1)
	reg := p.table[uint64(id)&mask]
	if reg == nil || reg.id != id {
		return Region{}, ErrInvalidRegionID
	}
	p.table[uint64(id)&mask] = nil
	p.numRegions--
	return reg.r, nil
}

// checkBounds reports whether a buffer described by the four values lies
// within the region and its valid sub-range lies within the buffer.
func (p *regionPool) checkBounds(id RegionID, offset, length, validData, validLength uint64) bool {
	mask := uint64(len(p.table) - 1)
	reg := p.table[uint64(id)&mask]
	if reg == nil || reg.id != id {
		return false
	}
	end := offset + length
	if end < offset || end > reg.r.Len {
		return false
	}
	vend := validData + validLength
	return vend >= validData && vend <= length
}

// destroy tears the pool down. It fails with ErrRegionsLeaked if regions
// are still registered; callers must deregister everything first.
func (p *regionPool) destroy() error {
	if p.numRegions != 0 {
		return ErrRegionsLeaked
	}
	p.table = nil
	return nil
}
