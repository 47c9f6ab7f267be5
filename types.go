// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

// RegionID identifies a registered memory region within a queue pair.
//
// IDs are assigned by the local region pool and carry a high-entropy base,
// so a stale ID from a previous run is unlikely to alias a live region on
// the peer.
type RegionID uint32

// FlagLast marks the last descriptor of a chain. All other flag bits are
// opaque to the library and travel unmodified between the endpoints,
// except on FFQ, which frames its in-band commands in the two lowest bits
// and rejects data descriptors that set them.
const FlagLast uint64 = 1 << 30

// Region describes a contiguous span of memory registered with a queue.
//
// The library treats both addresses as opaque integers; it never
// dereferences them. Regions registered on the same queue must be pairwise
// non-overlapping in the physical address space.
type Region struct {
	// Base is the virtual base address of the region.
	Base uint64

	// Phys is the physical base address of the region.
	Phys uint64

	// Len is the length of the region in bytes.
	Len uint64
}

// Descriptor identifies a buffer inside a registered region.
//
// Enqueueing a descriptor transfers ownership of the sub-range
// [Offset, Offset+Length) to the peer; the sender must not touch it until
// it comes back on the reverse direction.
//
// Every descriptor must satisfy Length > 0, Offset+Length <= region length
// and ValidData+ValidLength <= Length.
type Descriptor struct {
	// Region is the ID of the region the buffer belongs to.
	Region RegionID

	// Offset is the byte offset of the buffer within the region.
	Offset uint64

	// Length is the total length of the buffer in bytes.
	Length uint64

	// ValidData is the offset within the buffer where valid data starts.
	ValidData uint64

	// ValidLength is the length of the valid data.
	ValidLength uint64

	// Flags carries opaque per-descriptor flags, see FlagLast.
	Flags uint64
}

// RegisterCallback is invoked synchronously inside Dequeue after a
// peer-originated registration has been applied to the local pool.
type RegisterCallback func(q *Queue, r Region, id RegionID) error

// DeregisterCallback is invoked synchronously inside Dequeue after a
// peer-originated deregistration has been applied to the local pool.
type DeregisterCallback func(q *Queue, id RegionID) error

// In-band command discriminators shared by the shared-memory backends.
// FFQ carries the command in the flags word of a descriptor frame, IPCQ in
// a dedicated cmd field.
const (
	cmdNone       uint64 = 0
	cmdRegister   uint64 = 1
	cmdDeregister uint64 = 2
	cmdMask       uint64 = 3
)

// backend is the capability interface each queue implementation provides.
//
// The generic Queue validates descriptors against its region pool and
// delegates the transport to these hooks. Hooks receive the owning queue so
// that in-band command processing can reach the pool and the user
// callbacks.
type backend interface {
	enqueue(q *Queue, d *Descriptor) error
	dequeue(q *Queue, d *Descriptor) error
	register(q *Queue, r Region, id RegionID) error
	deregister(q *Queue, id RegionID) error
	notify(q *Queue) error
	control(q *Queue, req, value uint64) (uint64, error)
	destroy(q *Queue) error
}
