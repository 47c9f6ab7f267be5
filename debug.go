// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"fmt"
	"slices"
	"strings"
)

// histSize is the number of operations the post-mortem history retains.
const histSize = 128

// span is a half-open interval [off, off+len) of a region.
type span struct {
	off uint64
	len uint64
}

func (s span) end() uint64 { return s.off + s.len }

// debugRegion is the shadow ownership state for one region: the disjoint
// free spans the local endpoint currently owns, sorted by offset. A region
// starts out fully owned, [0, length).
//
// notConsistent marks regions this endpoint never saw a registration for:
// they were inferred from dequeued descriptors, so the recorded length is
// only a lower bound and grows with further observations.
type debugRegion struct {
	length        uint64
	notConsistent bool
	free          []span
}

// histOp enumerates the recorded operation kinds.
type histOp uint8

const (
	histEnqueue histOp = iota
	histDequeue
	histRegister
	histDeregister
)

func (op histOp) String() string {
	switch op {
	case histEnqueue:
		return "enqueue"
	case histDequeue:
		return "dequeue"
	case histRegister:
		return "register"
	case histDeregister:
		return "deregister"
	}
	return "unknown"
}

// histEntry is one recorded operation.
type histEntry struct {
	op     histOp
	rid    RegionID
	offset uint64
	length uint64
}

// debugq is the ownership-checking backend. It forwards every operation
// to the wrapped queue's backend and keeps shadow state on the side.
type debugq struct {
	inner *Queue

	regions map[RegionID]*debugRegion

	hist     [histSize]histEntry
	histHead int
	histLen  int
}

// DebugQueue validates the buffer ownership protocol on top of any other
// queue.
//
// The wrapper tracks, per region, which sub-ranges the local endpoint
// currently owns. Enqueueing a range the endpoint does not own (double
// enqueue, out-of-region enqueue) fails before the wrapped backend is
// invoked; dequeueing a range the endpoint believed it still owned
// reports the peer's protocol violation. Deregistration is refused while
// any buffer of the region is still in flight.
//
// The wrapper has its own region pool. When it is stacked over a
// connected backend whose peer registers regions in-band, mirror those
// registrations with AddRegion so the wrapper's validation stays
// consistent; only the wrapped queue learns them automatically.
type DebugQueue struct {
	*Queue
	b *debugq
}

// NewDebug wraps inner with ownership checking.
func NewDebug(inner *Queue) *DebugQueue {
	b := &debugq{
		inner:   inner,
		regions: make(map[RegionID]*debugRegion),
	}
	return &DebugQueue{Queue: newQueue(b), b: b}
}

// AddRegion mirrors a peer-side registration into the wrapper's pool, so
// that descriptors referencing it pass the wrapper's bounds checks.
func (d *DebugQueue) AddRegion(r Region, id RegionID) error {
	return d.Queue.pool.addWithID(r, id)
}

// RemoveRegion mirrors a peer-side deregistration into the wrapper's pool.
func (d *DebugQueue) RemoveRegion(id RegionID) error {
	_, err := d.Queue.pool.remove(id)
	return err
}

// DumpRegion renders the free spans of a region for post-mortem
// inspection.
func (d *DebugQueue) DumpRegion(id RegionID) (string, error) {
	reg, ok := d.b.regions[id]
	if !ok {
		return "", ErrInvalidRegionID
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "region %d length=%d consistent=%t\n", id, reg.length, !reg.notConsistent)
	for i, s := range reg.free {
		fmt.Fprintf(&sb, "  %d: offset=%d length=%d\n", i, s.off, s.len)
	}
	return sb.String(), nil
}

// History returns the most recent operations, oldest first.
func (d *DebugQueue) History() []string {
	out := make([]string, 0, d.b.histLen)
	start := d.b.histHead - d.b.histLen
	for i := 0; i < d.b.histLen; i++ {
		e := d.b.hist[(start+i+histSize)%histSize]
		out = append(out, fmt.Sprintf("%s rid=%d offset=%d length=%d",
			e.op, e.rid, e.offset, e.length))
	}
	return out
}

func (b *debugq) record(op histOp, rid RegionID, offset, length uint64) {
	b.hist[b.histHead] = histEntry{op: op, rid: rid, offset: offset, length: length}
	b.histHead = (b.histHead + 1) % histSize
	if b.histLen < histSize {
		b.histLen++
	}
}

// findSpan returns the index of the free span containing [off, off+len),
// or -1.
func (r *debugRegion) findSpan(off, length uint64) int {
	// first span ending past off
	i, _ := slices.BinarySearchFunc(r.free, off, func(s span, o uint64) int {
		if s.end() <= o {
			return -1
		}
		return 1
	})
	if i < len(r.free) && r.free[i].off <= off && off+length <= r.free[i].end() {
		return i
	}
	return -1
}

// take removes [off, off+len) from the free span at index i. The range is
// known to be contained. Four cases: exact, head cut, tail cut, split.
func (r *debugRegion) take(i int, off, length uint64) {
	s := &r.free[i]
	switch {
	case s.off == off && s.len == length:
		r.free = slices.Delete(r.free, i, i+1)
	case s.off == off:
		s.off += length
		s.len -= length
	case s.end() == off+length:
		s.len -= length
	default:
		tail := span{off: off + length, len: s.end() - (off + length)}
		s.len = off - s.off
		r.free = slices.Insert(r.free, i+1, tail)
	}
}

// give returns [off, off+len) to the free set, coalescing with both
// neighbors. Reports false if the range overlaps a span already free.
func (r *debugRegion) give(off, length uint64) bool {
	// insertion point: first span starting at or after off
	i, _ := slices.BinarySearchFunc(r.free, off, func(s span, o uint64) int {
		if s.off < o {
			return -1
		}
		return 1
	})

	if i > 0 && r.free[i-1].end() > off {
		return false
	}
	if i < len(r.free) && off+length > r.free[i].off {
		return false
	}

	mergePrev := i > 0 && r.free[i-1].end() == off
	mergeNext := i < len(r.free) && r.free[i].off == off+length

	switch {
	case mergePrev && mergeNext:
		r.free[i-1].len += length + r.free[i].len
		r.free = slices.Delete(r.free, i, i+1)
	case mergePrev:
		r.free[i-1].len += length
	case mergeNext:
		r.free[i].off = off
		r.free[i].len += length
	default:
		r.free = slices.Insert(r.free, i, span{off: off, len: length})
	}
	return true
}

func (b *debugq) enqueue(_ *Queue, d *Descriptor) error {
	reg, ok := b.regions[d.Region]
	if !ok {
		return ErrInvalidRegionID
	}
	if len(reg.free) == 0 {
		return ErrBufferAlreadyInUse
	}

	i := reg.findSpan(d.Offset, d.Length)
	if i < 0 {
		return ErrInvalidBufferArgs
	}

	if err := b.inner.back.enqueue(b.inner, d); err != nil {
		return err
	}

	reg.take(i, d.Offset, d.Length)
	b.record(histEnqueue, d.Region, d.Offset, d.Length)
	return nil
}

func (b *debugq) dequeue(q *Queue, d *Descriptor) error {
	if err := b.inner.back.dequeue(b.inner, d); err != nil {
		return err
	}
	b.record(histDequeue, d.Region, d.Offset, d.Length)

	reg, ok := b.regions[d.Region]
	if !ok {
		// never saw the registration; the queue below has, or the
		// descriptor would not have passed its checks. Track it with
		// the observed extent as a lower bound and all of it free,
		// the dequeued range included.
		b.regions[d.Region] = &debugRegion{
			length:        d.Offset + d.Length,
			notConsistent: true,
			free:          []span{{off: 0, len: d.Offset + d.Length}},
		}
		return nil
	}

	if reg.notConsistent && d.Offset+d.Length > reg.length {
		reg.length = d.Offset + d.Length
	}

	if !reg.give(d.Offset, d.Length) {
		return ErrBufferNotInUse
	}
	return nil
}

func (b *debugq) register(_ *Queue, r Region, id RegionID) error {
	if err := b.inner.back.register(b.inner, r, id); err != nil {
		return err
	}
	b.regions[id] = &debugRegion{
		length: r.Len,
		free:   []span{{off: 0, len: r.Len}},
	}
	b.record(histRegister, id, 0, r.Len)
	return nil
}

func (b *debugq) deregister(_ *Queue, id RegionID) error {
	reg, ok := b.regions[id]
	if !ok {
		return ErrInvalidRegionID
	}
	if len(reg.free) != 1 || reg.free[0].off != 0 || reg.free[0].len != reg.length {
		return ErrRegionDestroy
	}
	if err := b.inner.back.deregister(b.inner, id); err != nil {
		return err
	}
	delete(b.regions, id)
	b.record(histDeregister, id, 0, reg.length)
	return nil
}

func (b *debugq) notify(_ *Queue) error {
	return b.inner.back.notify(b.inner)
}

func (b *debugq) control(_ *Queue, req, value uint64) (uint64, error) {
	return b.inner.back.control(b.inner, req, value)
}

func (b *debugq) destroy(_ *Queue) error {
	return b.inner.Destroy()
}
