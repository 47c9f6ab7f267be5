// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrQueueFull indicates that no free slot was available for an enqueue.
//
// ErrQueueFull is a control flow signal, not a failure: the peer has not
// consumed enough descriptors yet. The caller should retry later, typically
// after draining the reverse direction. It wraps [iox.ErrWouldBlock] for
// ecosystem consistency, so IsWouldBlock reports true for it.
var ErrQueueFull = fmt.Errorf("cleanq: queue full: %w", iox.ErrWouldBlock)

// ErrQueueEmpty indicates that no descriptor was pending for a dequeue.
//
// Like ErrQueueFull it is a non-failure outcome wrapping
// [iox.ErrWouldBlock]; callers poll again later.
var ErrQueueEmpty = fmt.Errorf("cleanq: queue empty: %w", iox.ErrWouldBlock)

// ErrInvalidBufferArgs indicates a descriptor that does not fit its region:
// the buffer leaves the region bounds, the valid sub-range leaves the
// buffer, or the ownership check of the debug layer failed. This is a
// protocol violation and should be treated as a bug in the caller or peer.
var ErrInvalidBufferArgs = errors.New("cleanq: invalid buffer arguments")

// ErrInvalidRegionID indicates a region ID that is not registered with the
// pool, or an in-band registration for an ID whose slot is already taken.
var ErrInvalidRegionID = errors.New("cleanq: invalid region id")

// ErrInvalidRegionArgs indicates a region that overlaps an already
// registered region or has zero length.
var ErrInvalidRegionArgs = errors.New("cleanq: invalid region arguments")

// ErrRegionDestroy indicates a deregistration while buffers of the region
// are still in flight (detected by the debug layer).
var ErrRegionDestroy = errors.New("cleanq: region has outstanding buffers")

// ErrBufferNotInUse indicates a dequeued buffer that the local endpoint
// believed it still owned. The peer returned something it was never given,
// a protocol violation.
var ErrBufferNotInUse = errors.New("cleanq: buffer not in use")

// ErrBufferAlreadyInUse indicates an enqueue while every buffer of the
// region is already in flight.
var ErrBufferAlreadyInUse = errors.New("cleanq: buffer already in use")

// ErrInitQueue indicates that a backend could not be constructed, e.g. the
// shared mapping could not be created or attached. Fatal for the queue
// instance, not for the process.
var ErrInitQueue = errors.New("cleanq: queue initialization failed")

// ErrRegionsLeaked indicates a queue or pool teardown while regions are
// still registered.
var ErrRegionsLeaked = errors.New("cleanq: regions still registered")

// IsWouldBlock reports whether err indicates a full or empty queue.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil, ErrQueueFull and ErrQueueEmpty.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
