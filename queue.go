// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cleanq

// Queue is one endpoint of a descriptor queue.
//
// A Queue binds a region pool to a backend. All operations run
// synchronously on the calling thread and never block, with the single
// exception of the IPCQ command path (see NewIPCQ). Each direction of a
// queue pair is strictly single-producer/single-consumer: at most one
// goroutine may call Enqueue and at most one may call Dequeue at any time.
// Register and Deregister are not safe relative to concurrent data-path
// calls on the same endpoint and must be serialized externally.
type Queue struct {
	pool *regionPool
	back backend

	state any

	onRegister   RegisterCallback
	onDeregister DeregisterCallback
}

// newQueue binds a backend to a fresh region pool.
func newQueue(b backend) *Queue {
	return &Queue{pool: newRegionPool(), back: b}
}

// Enqueue hands the buffer described by d to the peer.
//
// The descriptor is validated against the locally registered regions
// first; a buffer that leaves its region or an inconsistent valid range is
// rejected with ErrInvalidBufferArgs without touching the ring. On a full
// ring Enqueue returns ErrQueueFull and leaves all state unchanged, so the
// call can simply be retried.
func (q *Queue) Enqueue(d *Descriptor) error {
	if d.Length == 0 ||
		!q.pool.checkBounds(d.Region, d.Offset, d.Length, d.ValidData, d.ValidLength) {
		return ErrInvalidBufferArgs
	}
	return q.back.enqueue(q, d)
}

// Dequeue takes the next buffer the peer handed over.
//
// Pending in-band commands (peer registrations and deregistrations) are
// applied transparently, firing the installed callbacks, before the first
// data descriptor is returned. The returned descriptor is validated
// against the pool: a malformed descriptor from a buggy or malicious peer
// yields ErrInvalidBufferArgs, but the ring cursor has already advanced,
// so subsequent messages remain receivable. Returns ErrQueueEmpty when
// nothing is pending.
func (q *Queue) Dequeue() (Descriptor, error) {
	var d Descriptor
	if err := q.back.dequeue(q, &d); err != nil {
		return Descriptor{}, err
	}
	if !q.pool.checkBounds(d.Region, d.Offset, d.Length, d.ValidData, d.ValidLength) {
		return Descriptor{}, ErrInvalidBufferArgs
	}
	return d, nil
}

// Register makes r available for buffers on this queue and returns the
// assigned region ID.
//
// For the shared-memory backends this sends a registration command to the
// peer; the ID is valid for local use immediately, the peer catches up
// during its next Dequeue pass. If the backend cannot transmit the command
// (ErrQueueFull on FFQ), the pool insertion is rolled back and the call
// can be retried.
func (q *Queue) Register(r Region) (RegionID, error) {
	id, err := q.pool.add(r)
	if err != nil {
		return 0, err
	}
	if err := q.back.register(q, r, id); err != nil {
		_, _ = q.pool.remove(id)
		return 0, err
	}
	return id, nil
}

// Deregister removes the region with the given ID and returns it.
//
// The backend is notified (shared-memory backends send a deregistration
// command). If the backend refuses, e.g. the debug layer still sees
// buffers in flight, the region stays registered.
func (q *Queue) Deregister(id RegionID) (Region, error) {
	r, err := q.pool.remove(id)
	if err != nil {
		return Region{}, err
	}
	if err := q.back.deregister(q, id); err != nil {
		_ = q.pool.addWithID(r, id)
		return Region{}, err
	}
	return r, nil
}

// Notify signals the peer that new buffers are available. The
// shared-memory backends signal implicitly through the ring write and
// return immediately.
func (q *Queue) Notify() error {
	return q.back.notify(q)
}

// Control sends a backend-specific tuning request.
func (q *Queue) Control(req, value uint64) (uint64, error) {
	return q.back.control(q, req, value)
}

// Destroy tears the endpoint down: first the region pool, then the
// backend. Destroy fails with ErrRegionsLeaked while regions are still
// registered. A queue pair should only be destroyed once both endpoints
// stopped using it.
func (q *Queue) Destroy() error {
	if err := q.pool.destroy(); err != nil {
		return err
	}
	return q.back.destroy(q)
}

// SetState attaches an arbitrary caller value to the queue. It is
// typically read back inside the register callbacks.
func (q *Queue) SetState(state any) {
	q.state = state
}

// State returns the value set with SetState.
func (q *Queue) State() any {
	return q.state
}

// SetRegisterCallback installs cb to run after a peer-originated
// registration has been applied. The callback runs synchronously inside
// Dequeue.
func (q *Queue) SetRegisterCallback(cb RegisterCallback) {
	q.onRegister = cb
}

// SetDeregisterCallback installs cb to run after a peer-originated
// deregistration has been applied. The callback runs synchronously inside
// Dequeue.
func (q *Queue) SetDeregisterCallback(cb DeregisterCallback) {
	q.onDeregister = cb
}

// applyRegister mirrors a peer registration into the local pool and fires
// the callback. Called from backend command processing.
func (q *Queue) applyRegister(r Region, id RegionID) error {
	if err := q.pool.addWithID(r, id); err != nil {
		return err
	}
	if q.onRegister != nil {
		return q.onRegister(q, r, id)
	}
	return nil
}

// applyDeregister mirrors a peer deregistration into the local pool and
// fires the callback. Called from backend command processing.
func (q *Queue) applyDeregister(id RegionID) error {
	if _, err := q.pool.remove(id); err != nil {
		return err
	}
	if q.onDeregister != nil {
		return q.onDeregister(q, id)
	}
	return nil
}
