// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

// loopbackSlots is the fixed capacity of a loopback queue.
const loopbackSlots = 64

// loopback reflects enqueued descriptors back to the same endpoint.
//
// It is the reference implementation of the backend contract: a plain
// in-process FIFO with head/tail indices and an element counter.
// Registration has no peer to inform and is a no-op.
type loopback struct {
	ring  [loopbackSlots]Descriptor
	head  int
	tail  int
	count int
}

// NewLoopback creates a single-process queue that hands every enqueued
// descriptor back on Dequeue. Useful for local testing and for layering
// the debug queue.
func NewLoopback() *Queue {
	return newQueue(&loopback{})
}

func (l *loopback) enqueue(_ *Queue, d *Descriptor) error {
	if l.count == loopbackSlots {
		return ErrQueueFull
	}
	l.ring[l.head] = *d
	l.head = (l.head + 1) % loopbackSlots
	l.count++
	return nil
}

func (l *loopback) dequeue(_ *Queue, d *Descriptor) error {
	if l.count == 0 {
		return ErrQueueEmpty
	}
	*d = l.ring[l.tail]
	l.tail = (l.tail + 1) % loopbackSlots
	l.count--
	return nil
}

func (l *loopback) register(_ *Queue, _ Region, _ RegionID) error {
	return nil
}

func (l *loopback) deregister(_ *Queue, _ RegionID) error {
	return nil
}

func (l *loopback) notify(_ *Queue) error {
	return nil
}

func (l *loopback) control(_ *Queue, _, _ uint64) (uint64, error) {
	return 0, nil
}

func (l *loopback) destroy(_ *Queue) error {
	return nil
}
