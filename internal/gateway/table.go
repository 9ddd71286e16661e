package gateway

import (
	"errors"
	"net/netip"

	"github.com/qingchen1984/tcpsocks/internal/poller"
)

// ErrCapacityExceeded is returned by allocate when the table is full. Callers
// abandon the specific accept/connect attempt; existing pairs are unaffected.
var ErrCapacityExceeded = errors.New("connection table full")

// record is the per-descriptor state everything in the gateway shares.
type record struct {
	fd     int
	handle poller.Handle

	// peer resolves to the paired record, or to the record itself while
	// unpaired. Purely a lookup; never owned.
	peer poller.Handle

	role  Role
	state State

	// Readiness reported by the reactor and not yet acted on.
	readReady  bool
	writeReady bool

	// Interest that should be registered on the next update.
	wantRead  bool
	wantWrite bool

	// addr is the remote address for clients and the destination to
	// request for upstreams.
	addr netip.AddrPort

	// pending holds bytes read from the peer but not yet written here.
	// Non-empty exactly while this descriptor owes debt; at most one
	// outstanding buffer exists per descriptor.
	pending []byte

	// hsBuf accumulates partial handshake replies.
	hsBuf []byte

	// bytesRelayed counts bytes this descriptor forwarded to its peer.
	bytesRelayed int64
}

// table is a fixed-capacity arena of records addressed by generation-checked
// handles, so a stale handle (or a reused descriptor number) can never reach
// another connection's slot.
type table struct {
	slots []record
	gens  []uint32
	free  []uint32
}

func newTable(capacity int) *table {
	t := &table{
		slots: make([]record, capacity),
		gens:  make([]uint32, capacity),
		free:  make([]uint32, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		t.gens[i] = 1
		t.free = append(t.free, uint32(i))
	}
	return t
}

// makeHandle packs slot index and generation into a poller payload. Handle 0
// never collides with a live record because generations start at 1.
func makeHandle(index, gen uint32) poller.Handle {
	return poller.Handle(index) | poller.Handle(gen)<<32
}

func handleIndex(h poller.Handle) uint32 { return uint32(h) }
func handleGen(h poller.Handle) uint32   { return uint32(h >> 32) }

// allocate claims a slot for fd. The returned record starts zeroed with its
// peer pointing at itself.
func (t *table) allocate(fd int) (*record, error) {
	if len(t.free) == 0 {
		return nil, ErrCapacityExceeded
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	h := makeHandle(idx, t.gens[idx])
	rec := &t.slots[idx]
	*rec = record{fd: fd, handle: h, peer: h}
	return rec, nil
}

// get resolves a handle, returning nil if the slot has since been released.
func (t *table) get(h poller.Handle) *record {
	idx := handleIndex(h)
	if int(idx) >= len(t.slots) || t.gens[idx] != handleGen(h) {
		return nil
	}
	return &t.slots[idx]
}

// release resets the slot to its zero state and invalidates all handles to
// it. Releasing an already-released handle is a no-op.
func (t *table) release(h poller.Handle) {
	idx := handleIndex(h)
	if int(idx) >= len(t.slots) || t.gens[idx] != handleGen(h) {
		return
	}
	t.slots[idx] = record{}
	t.gens[idx]++
	if t.gens[idx] == 0 {
		t.gens[idx] = 1
	}
	t.free = append(t.free, idx)
}

// each calls fn for every live record.
func (t *table) each(fn func(*record)) {
	for i := range t.slots {
		if t.slots[i].state != StateClosed {
			fn(&t.slots[i])
		}
	}
}
