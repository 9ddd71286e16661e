//go:build linux

package gateway

import (
	"golang.org/x/sys/unix"

	"github.com/qingchen1984/tcpsocks/internal/metrics"
)

// closePair tears down rec and its peer together: descriptors closed, both
// deregistered from the reactor, pending buffers dropped with the records,
// slots returned for reuse. Safe from any state; a side already closed is a
// no-op.
func (g *Gateway) closePair(rec *record) {
	peer := g.table.get(rec.peer)
	wasEstablished := rec.state.established() || (peer != nil && peer.state.established())

	g.closeOne(rec)
	if peer != nil && peer != rec {
		g.closeOne(peer)
	}

	if wasEstablished {
		metrics.ActivePairs.Add(-1)
	}
}

func (g *Gateway) closeOne(rec *record) {
	if rec == nil || rec.state == StateClosed {
		return
	}
	g.log.Debug("closing", "fd", rec.fd, "role", rec.role.String(), "state", rec.state.String(), "bytes_relayed", rec.bytesRelayed)

	_ = g.poller.Deregister(rec.fd)
	if rec.state != StateControl {
		// The control descriptor (stdin) is borrowed, not owned.
		_ = unix.Close(rec.fd)
	}
	g.table.release(rec.handle)
}
