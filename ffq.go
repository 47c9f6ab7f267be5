// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/cleanq/internal/shm"
)

// FFQ ring geometry. A slot is exactly one cache line: six 64-bit words
// padded to 64 bytes, of which word 0 doubles as the flow control state. A one-directional
// channel is ffqSlots such lines; the bi-directional queue maps two
// channels back to back into a single shared segment.
const (
	ffqSlots     = 64
	ffqSlotBytes = 64
	ffqChanBytes = ffqSlots * ffqSlotBytes
	ffqMemBytes  = 2 * ffqChanBytes
)

// ffqSlotEmpty marks a free slot in word 0. Word 0 carries the region ID,
// which is 32-bit, so all-ones can never be produced by a message.
const ffqSlotEmpty = ^uint64(0)

// ffqSlot is one cache-line message.
//
// Word 0 is the synchronization point: the producer publishes a message by
// storing the first payload word with release semantics after writing the
// rest, the consumer frees the slot by storing the empty sentinel. The
// remaining words are plain memory ordered by those two accesses.
type ffqSlot struct {
	word0 atomix.Uint64
	args  [5]uint64
	_     [2]uint64 // pad to one cache line
}

// ffqChan is one direction of an FFQ. Producer and consumer each hold
// their own position privately; the slot contents are the only shared
// state, so there is no head/tail cache line to bounce.
type ffqChan struct {
	slots []ffqSlot
	pos   uint32
	mask  uint32
}

func (c *ffqChan) init(slots []ffqSlot) {
	c.slots = slots
	c.pos = 0
	c.mask = uint32(len(slots) - 1)
}

// clear marks every slot empty. Creator-only, before the peer attaches.
func (c *ffqChan) clear() {
	for i := range c.slots {
		c.slots[i].word0.StoreRelaxed(ffqSlotEmpty)
	}
}

// send publishes one six-word message. arg1 must not equal the sentinel;
// region IDs are 32-bit, so this holds for every frame the backend builds.
func (c *ffqChan) send(arg1, arg2, arg3, arg4, arg5, arg6 uint64) error {
	s := &c.slots[c.pos&c.mask]
	if s.word0.LoadAcquire() != ffqSlotEmpty {
		return ErrQueueFull
	}

	s.args[0] = arg2
	s.args[1] = arg3
	s.args[2] = arg4
	s.args[3] = arg5
	s.args[4] = arg6

	// release: payload words become visible before the slot reads full
	s.word0.StoreRelease(arg1)

	c.pos++
	return nil
}

// recv consumes one message and hands the slot back to the producer.
func (c *ffqChan) recv() (arg1, arg2, arg3, arg4, arg5, arg6 uint64, err error) {
	s := &c.slots[c.pos&c.mask]
	arg1 = s.word0.LoadAcquire()
	if arg1 == ffqSlotEmpty {
		err = ErrQueueEmpty
		return
	}

	arg2 = s.args[0]
	arg3 = s.args[1]
	arg4 = s.args[2]
	arg5 = s.args[3]
	arg6 = s.args[4]

	// release: the payload reads above must not sink below the free
	s.word0.StoreRelease(ffqSlotEmpty)

	c.pos++
	return
}

// ffq is the FFQ backend: two channels over one shared segment, with
// register/deregister multiplexed onto the data ring via the flags word.
type ffq struct {
	seg *shm.Segment
	tx  ffqChan
	rx  ffqChan
}

// NewFFQ creates or attaches the FFQ endpoint backed by the shared
// mapping at path.
//
// The endpoint that creates the mapping initializes every slot before the
// other endpoint may attach; start the creator first. The creator's
// transmit ring is the joiner's receive ring and vice versa, so the two
// sides pair up without further negotiation.
func NewFFQ(path string) (*Queue, error) {
	seg, err := shm.Open(path, ffqMemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitQueue, err)
	}

	mem := seg.Bytes()
	lo := unsafe.Slice((*ffqSlot)(unsafe.Pointer(&mem[0])), ffqSlots)
	hi := unsafe.Slice((*ffqSlot)(unsafe.Pointer(&mem[ffqChanBytes])), ffqSlots)

	b := &ffq{seg: seg}
	if seg.Creator() {
		b.tx.init(lo)
		b.rx.init(hi)
		b.tx.clear()
		b.rx.clear()
	} else {
		b.tx.init(hi)
		b.rx.init(lo)
	}

	return newQueue(b), nil
}

func (b *ffq) enqueue(_ *Queue, d *Descriptor) error {
	// the low flag bits frame commands on this ring
	if d.Flags&cmdMask != 0 {
		return ErrInvalidBufferArgs
	}
	return b.tx.send(uint64(d.Region), d.Offset, d.Length, d.ValidData,
		d.ValidLength, d.Flags)
}

func (b *ffq) dequeue(q *Queue, d *Descriptor) error {
	for {
		rid, offset, length, validData, validLength, flags, err := b.rx.recv()
		if err != nil {
			return err
		}

		switch flags & cmdMask {
		case cmdRegister:
			// command frame: (offset, length, validData) carry the
			// region's (virtual base, length, physical base)
			r := Region{Base: offset, Phys: validData, Len: length}
			if err := q.applyRegister(r, RegionID(rid)); err != nil {
				return err
			}
		case cmdDeregister:
			if err := q.applyDeregister(RegionID(rid)); err != nil {
				return err
			}
		default:
			d.Region = RegionID(rid)
			d.Offset = offset
			d.Length = length
			d.ValidData = validData
			d.ValidLength = validLength
			d.Flags = flags
			return nil
		}
	}
}

func (b *ffq) register(_ *Queue, r Region, id RegionID) error {
	return b.tx.send(uint64(id), r.Base, r.Len, r.Phys, 0, cmdRegister)
}

func (b *ffq) deregister(_ *Queue, id RegionID) error {
	return b.tx.send(uint64(id), 0, 0, 0, 0, cmdDeregister)
}

// notify is implicit for shared memory: the slot write is the signal.
func (b *ffq) notify(_ *Queue) error {
	return nil
}

func (b *ffq) control(_ *Queue, _, _ uint64) (uint64, error) {
	return 0, nil
}

func (b *ffq) destroy(_ *Queue) error {
	if err := b.seg.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitQueue, err)
	}
	return nil
}
