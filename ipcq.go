// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"code.hybscloud.com/cleanq/internal/shm"
)

// IPCQ geometry. Each direction owns one channel of ipcqSlots 64-byte
// lines: the first line is the consumer-written acknowledgement word, the
// remaining ipcqUsable lines are descriptors. The sequence numbers tell a
// full ring from an empty one, so all ipcqUsable descriptors can be in
// flight at once.
const (
	ipcqSlots     = 64
	ipcqUsable    = ipcqSlots - 1
	ipcqDescBytes = 64
	ipcqChanBytes = ipcqSlots * ipcqDescBytes
	ipcqMemBytes  = 2 * ipcqChanBytes
)

// ipcqDesc is one descriptor line.
//
// seq is the synchronization point: the producer publishes the line by
// storing its sequence number with release semantics after the payload
// fields, the consumer observes it with acquire semantics. Sequence
// numbers start at 1 and increase monotonically, so a zeroed mapping reads
// as empty.
type ipcqDesc struct {
	seq         atomix.Uint64
	rid         uint32
	_           uint32
	offset      uint64
	length      uint64
	validData   uint64
	validLength uint64
	flags       uint64
	cmd         uint64
}

// ipcqAck is the consumer's acknowledged sequence number, alone on its
// cache line so the producer's polling never contends with descriptors.
type ipcqAck struct {
	value atomix.Uint64
	_     [ipcqDescBytes - 8]byte
}

// ipcq is the IPCQ backend: explicit per-descriptor sequence numbers with
// side-band acknowledgement words, and a dedicated command field instead
// of FFQ's flag multiplexing.
type ipcq struct {
	seg *shm.Segment

	txDescs []ipcqDesc
	txAck   *ipcqAck
	txSeq   uint64

	rxDescs []ipcqDesc
	rxAck   *ipcqAck
	rxSeq   uint64
}

// NewIPCQ creates or attaches the IPCQ endpoint backed by the shared
// mapping at path.
//
// The creator lays the mapping out as TX ack line, TX descriptors, RX ack
// line, RX descriptors; the joiner uses the mirror image, so each side's
// transmit channel is the other side's receive channel. The creator
// initializes both acknowledgement words before the joiner may attach;
// start the creator first.
//
// Register and Deregister on an IPCQ busy-wait for a free command slot
// instead of reporting ErrQueueFull; they are the only operations in the
// library that can spin.
func NewIPCQ(path string) (*Queue, error) {
	seg, err := shm.Open(path, ipcqMemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitQueue, err)
	}

	mem := seg.Bytes()
	ackLo := (*ipcqAck)(unsafe.Pointer(&mem[0]))
	descLo := unsafe.Slice((*ipcqDesc)(unsafe.Pointer(&mem[ipcqDescBytes])), ipcqUsable)
	ackHi := (*ipcqAck)(unsafe.Pointer(&mem[ipcqChanBytes]))
	descHi := unsafe.Slice((*ipcqDesc)(unsafe.Pointer(&mem[ipcqChanBytes+ipcqDescBytes])), ipcqUsable)

	b := &ipcq{seg: seg, txSeq: 1, rxSeq: 1}
	if seg.Creator() {
		b.txAck, b.txDescs = ackLo, descLo
		b.rxAck, b.rxDescs = ackHi, descHi
		// sequences start at 1; acks follow them, so both start at 1 too
		b.txAck.value.StoreRelaxed(1)
		b.rxAck.value.StoreRelaxed(1)
	} else {
		b.txAck, b.txDescs = ackHi, descHi
		b.rxAck, b.rxDescs = ackLo, descLo
	}

	return newQueue(b), nil
}

// canSend is the producer capacity predicate: the number of published but
// unacknowledged descriptors must stay below the usable slot count.
func (b *ipcq) canSend() bool {
	return b.txSeq-b.txAck.value.LoadAcquire() < ipcqUsable
}

// send publishes one descriptor with the given command discriminator.
func (b *ipcq) send(rid RegionID, offset, length, validData, validLength, flags, cmd uint64) error {
	if !b.canSend() {
		return ErrQueueFull
	}

	head := &b.txDescs[b.txSeq%ipcqUsable]
	head.rid = uint32(rid)
	head.offset = offset
	head.length = length
	head.validData = validData
	head.validLength = validLength
	head.flags = flags
	head.cmd = cmd

	// release: payload fields become visible before the sequence does
	head.seq.StoreRelease(b.txSeq)
	b.txSeq++
	return nil
}

func (b *ipcq) enqueue(_ *Queue, d *Descriptor) error {
	return b.send(d.Region, d.Offset, d.Length, d.ValidData, d.ValidLength,
		d.Flags, cmdNone)
}

func (b *ipcq) dequeue(q *Queue, d *Descriptor) error {
	for {
		tail := &b.rxDescs[b.rxSeq%ipcqUsable]
		if b.rxSeq > tail.seq.LoadAcquire() {
			return ErrQueueEmpty
		}

		cmd := tail.cmd
		rid := RegionID(tail.rid)
		offset := tail.offset
		length := tail.length
		validData := tail.validData
		validLength := tail.validLength
		flags := tail.flags

		b.rxSeq++
		b.rxAck.value.StoreRelease(b.rxSeq)

		switch cmd {
		case cmdRegister:
			// command frame: (offset, length, validData) carry the
			// region's (virtual base, length, physical base)
			r := Region{Base: offset, Phys: validData, Len: length}
			if err := q.applyRegister(r, rid); err != nil {
				return err
			}
		case cmdDeregister:
			if err := q.applyDeregister(rid); err != nil {
				return err
			}
		default:
			d.Region = rid
			d.Offset = offset
			d.Length = length
			d.ValidData = validData
			d.ValidLength = validLength
			d.Flags = flags
			return nil
		}
	}
}

// register transmits the registration command, spinning for a free slot.
// Commands and data share the transmit channel, so a command is never
// reordered with the data descriptors enqueued after it.
func (b *ipcq) register(_ *Queue, r Region, id RegionID) error {
	sw := spin.Wait{}
	for !b.canSend() {
		sw.Once()
	}
	return b.send(id, r.Base, r.Len, r.Phys, 0, 0, cmdRegister)
}

func (b *ipcq) deregister(_ *Queue, id RegionID) error {
	sw := spin.Wait{}
	for !b.canSend() {
		sw.Once()
	}
	return b.send(id, 0, 0, 0, 0, 0, cmdDeregister)
}

// notify is implicit for shared memory: the sequence store is the signal.
func (b *ipcq) notify(_ *Queue) error {
	return nil
}

func (b *ipcq) control(_ *Queue, _, _ uint64) (uint64, error) {
	return 0, nil
}

func (b *ipcq) destroy(_ *Queue) error {
	if err := b.seg.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitQueue, err)
	}
	return nil
}
