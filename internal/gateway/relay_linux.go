//go:build linux

package gateway

import (
	"golang.org/x/sys/unix"

	"github.com/qingchen1984/tcpsocks/internal/metrics"
)

// processReadable moves one buffer's worth of bytes from rec to its peer.
// The caller has verified the preconditions: rec is read-ready and readable,
// peer is write-ready, writable, and debt-free.
func (g *Gateway) processReadable(rec, peer *record) {
	rec.readReady = false

	n, err := unix.Read(rec.fd, g.readBuf)
	switch {
	case err == unix.EAGAIN:
		// Not actually ready; wait again.
		rec.wantRead = true
		g.updateInterest(rec)
	case err != nil:
		g.log.Debug("relay read error", "fd", rec.fd, "error", err)
		g.closePair(rec)
	case n == 0:
		g.halfClose(rec, peer)
	default:
		g.forward(rec, peer, g.readBuf[:n])
	}
}

// forward attempts to deliver buf to peer immediately. A short write parks
// the remainder as peer's debt: peer then waits for write-only interest and
// rec stops reading until the debt drains, so at most one buffer is ever
// outstanding per descriptor.
func (g *Gateway) forward(rec, peer *record, buf []byte) {
	n, err := unix.Write(peer.fd, buf)
	if err == unix.EAGAIN {
		n, err = 0, nil
	}
	if err != nil {
		g.log.Debug("relay write error", "fd", peer.fd, "error", err)
		g.closePair(rec)
		return
	}

	rec.bytesRelayed += int64(len(buf))
	metrics.BytesRelayed.Add(int64(len(buf)))
	peer.writeReady = false

	if n == len(buf) {
		peer.wantWrite = true
		if !g.updateInterest(peer) {
			return
		}
		g.armRead(rec)
		return
	}

	peer.pending = append(peer.pending[:0], buf[n:]...)
	peer.wantRead = false
	peer.wantWrite = true
	rec.wantRead = false
	if !g.updateInterest(rec) {
		return
	}
	g.updateInterest(peer)
}

// processDebt flushes rec's pending buffer now that it is write-ready. A full
// flush restores normal interest on both sides and completes any half-close
// that was deferred while the debt was outstanding.
func (g *Gateway) processDebt(rec *record) {
	rec.writeReady = false

	n, err := unix.Write(rec.fd, rec.pending)
	if err == unix.EAGAIN {
		n, err = 0, nil
	}
	if err != nil {
		g.log.Debug("debt flush error", "fd", rec.fd, "error", err)
		g.closePair(rec)
		return
	}

	rec.pending = rec.pending[n:]
	if len(rec.pending) > 0 {
		rec.wantWrite = true
		g.updateInterest(rec)
		return
	}
	rec.pending = nil

	source := g.table.get(rec.peer)
	if source == nil || source == rec {
		g.closePair(rec)
		return
	}

	if source.state == StateWriteOnly || source.state == StateDraining {
		// The source reached EOF while this debt was outstanding. Every
		// byte is delivered now, so finish the deferred write shutdown.
		_ = unix.Shutdown(rec.fd, unix.SHUT_WR)
		if source.state == StateDraining || rec.state == StateWriteOnly {
			g.closePair(rec)
			return
		}
		rec.state = StateReadOnly
		rec.wantWrite = false
		g.armRead(rec)
		return
	}

	rec.wantWrite = false
	if !g.armRead(rec) {
		return
	}
	g.armRead(source)
}

// halfClose handles EOF from rec: the rec-to-peer direction is over, but the
// opposite direction keeps flowing until it also ends. The peer's write side
// is shut only once its debt has fully drained.
func (g *Gateway) halfClose(rec, peer *record) {
	g.log.Debug("eof", "fd", rec.fd, "state", rec.state)
	bothEnded := rec.state == StateReadOnly // our write side was already shut

	if len(peer.pending) > 0 {
		if bothEnded {
			rec.state = StateDraining
		} else {
			rec.state = StateWriteOnly
		}
		rec.wantRead = false
		g.updateInterest(rec)
		return
	}

	_ = unix.Shutdown(peer.fd, unix.SHUT_WR)
	if bothEnded || peer.state == StateWriteOnly {
		g.closePair(rec)
		return
	}

	rec.state = StateWriteOnly
	rec.wantRead = false
	if !g.updateInterest(rec) {
		return
	}
	peer.state = StateReadOnly
	g.armRead(peer)
}

// armRead enables reading from rec and, because a read is only dispatched
// once the peer is known writable, makes sure the peer is waiting for write
// readiness when its last report has been consumed.
func (g *Gateway) armRead(rec *record) bool {
	rec.wantRead = rec.state.readable()
	if !g.updateInterest(rec) {
		return false
	}
	peer := g.table.get(rec.peer)
	if peer == nil || peer == rec {
		return true
	}
	if peer.state.writable() && !peer.writeReady && !peer.wantWrite && len(peer.pending) == 0 {
		peer.wantWrite = true
		return g.updateInterest(peer)
	}
	return true
}
