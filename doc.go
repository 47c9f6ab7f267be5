// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cleanq provides point-to-point descriptor queues for exchanging
// buffer references between two endpoints without copying payloads.
//
// Endpoints register memory regions, then enqueue and dequeue fixed-size
// descriptors that identify sub-ranges within those regions. Enqueueing a
// descriptor transfers ownership of its sub-range to the peer; the sender
// must not touch the buffer until it comes back on the reverse direction.
// The library describes buffers, it never moves them.
//
// # Backends
//
// Three backends implement the same queue contract:
//
//   - FFQ: a cache-line-sized shared-memory ring. Each slot is six 64-bit
//     words whose first word doubles as the flow control state (all-ones
//     means empty), so there are no side-band counters at all.
//   - IPCQ: a shared-memory ring with explicit per-descriptor sequence
//     numbers and cache-line-isolated acknowledgement words. Larger
//     footprint, simpler correctness reasoning.
//   - Loopback: an in-process FIFO reflecting descriptors back to the
//     sender, the reference implementation of the contract.
//
// Both shared-memory backends are strictly single-producer/
// single-consumer per direction and lock-free on the data path.
//
// # Quick Start
//
//	// endpoint A (creator: start first, it initializes the mapping)
//	qa, err := cleanq.NewFFQ("/dev/shm/cleanq-demo")
//
//	// endpoint B (joiner)
//	qb, err := cleanq.NewFFQ("/dev/shm/cleanq-demo")
//
//	// A registers a region and hands the first buffer over
//	rid, err := qa.Register(cleanq.Region{Base: base, Phys: phys, Len: 1 << 20})
//	err = qa.Enqueue(&cleanq.Descriptor{
//		Region: rid, Offset: 0, Length: 2048, ValidLength: 2048,
//	})
//
//	// B picks it up; the registration is applied transparently first
//	d, err := qb.Dequeue()
//
// # Non-Blocking Operations
//
// Enqueue returns [ErrQueueFull] when the ring has no free slot and
// Dequeue returns [ErrQueueEmpty] when nothing is pending. Both wrap
// [code.hybscloud.com/iox]'s ErrWouldBlock and are control flow signals,
// not failures:
//
//	backoff := iox.Backoff{}
//	for {
//		err := q.Enqueue(&d)
//		if err == nil {
//			break
//		}
//		if !cleanq.IsWouldBlock(err) {
//			return err
//		}
//		backoff.Wait()
//	}
//
// The only operations that may spin are Register and Deregister on an
// IPCQ, which busy-wait for a free command slot.
//
// # Region Registration
//
// Registration is send-direction: the endpoint that wants to use a region
// registers it, obtains the ID immediately, and the command travels
// in-band to the peer, which applies it during its next Dequeue pass.
// Commands and data share a direction, so a registration is never
// reordered with the data descriptors enqueued after it. Callbacks
// installed with SetRegisterCallback/SetDeregisterCallback run
// synchronously inside Dequeue when peer commands are applied.
//
// Region IDs carry a high-entropy base chosen per endpoint, so stale IDs
// from a previous run are rejected rather than silently aliasing a live
// region.
//
// # Ownership Checking
//
// [DebugQueue] wraps any queue and maintains a shadow of the ownership
// protocol: per region the set of sub-ranges the local endpoint currently
// owns. Double enqueues, enqueues of foreign memory and peer returns of
// buffers never handed out are reported as errors before they corrupt
// anything:
//
//	dq := cleanq.NewDebug(cleanq.NewLoopback())
//	rid, _ := dq.Register(region)
//	_ = dq.Enqueue(&d)          // ok, range now in flight
//	err = dq.Enqueue(&d)        // ErrInvalidBufferArgs: double enqueue
//
// # Errors
//
// All conditions are reported through sentinel errors; see [ErrQueueFull],
// [ErrQueueEmpty], [ErrInvalidBufferArgs], [ErrInvalidRegionID],
// [ErrInvalidRegionArgs], [ErrRegionDestroy], [ErrBufferNotInUse],
// [ErrBufferAlreadyInUse], [ErrInitQueue], [ErrRegionsLeaked]. Protocol
// violations indicate bugs and should fail fast; full/empty are expected
// outcomes on every data path.
//
// # Thread Safety
//
// All operations are synchronous on the calling goroutine; there is no
// internal goroutine and no lock. Per endpoint, at most one goroutine may
// enqueue and at most one may dequeue at any time, and register/deregister
// must not run concurrently with the data path.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit memory
// ordering, [code.hybscloud.com/spin] for CPU pause instructions on the
// IPCQ command path, and golang.org/x/sys/unix for the shared mapping.
package cleanq
