//go:build linux

package gateway

import (
	"golang.org/x/sys/unix"

	"github.com/qingchen1984/tcpsocks/internal/metrics"
	"github.com/qingchen1984/tcpsocks/internal/originaldst"
)

// processAccept takes one pending client connection, chooses its destination,
// starts the nonblocking upstream connect, and seeds both table records. Any
// failure abandons only this client; the listener and existing pairs are
// untouched.
func (g *Gateway) processAccept() {
	nfd, sa, err := unix.Accept4(g.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return // spurious wakeup, nothing pending
		}
		g.log.Warn("accept failed", "error", err)
		metrics.AcceptRejected.Add(1)
		return
	}
	clientAddr := addrPortFromSockaddr(sa)
	applyKeepAlive(nfd, g.cfg.KeepAlive)

	dest := g.destAddr
	if g.cfg.Transparent {
		dest, err = originaldst.Lookup(nfd)
		if err != nil {
			g.log.Warn("original destination unavailable", "client", clientAddr.String(), "error", err)
			metrics.AcceptRejected.Add(1)
			_ = unix.Close(nfd)
			return
		}
	}

	client, err := g.table.allocate(nfd)
	if err != nil {
		g.log.Warn("rejecting client", "client", clientAddr.String(), "error", err)
		metrics.AcceptRejected.Add(1)
		_ = unix.Close(nfd)
		return
	}
	client.role = RoleClient
	client.state = StateAccepted
	client.addr = clientAddr

	ufd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		g.log.Warn("upstream socket failed", "error", err)
		metrics.AcceptRejected.Add(1)
		g.abandonClient(client)
		return
	}
	applyKeepAlive(ufd, g.cfg.KeepAlive)

	if err := unix.Connect(ufd, g.socksSA); err != nil && err != unix.EINPROGRESS {
		g.log.Warn("upstream connect failed", "error", err)
		metrics.AcceptRejected.Add(1)
		_ = unix.Close(ufd)
		g.abandonClient(client)
		return
	}

	up, err := g.table.allocate(ufd)
	if err != nil {
		g.log.Warn("rejecting client", "client", clientAddr.String(), "error", err)
		metrics.AcceptRejected.Add(1)
		_ = unix.Close(ufd)
		g.abandonClient(client)
		return
	}
	up.role = RoleUpstream
	up.state = StateConnecting
	up.addr = dest
	up.peer = client.handle
	client.peer = up.handle
	up.wantWrite = true // connect completion reports as write readiness

	if err := g.poller.Register(client.fd, client.handle, false, false); err != nil {
		g.log.Warn("register client failed", "error", err)
		metrics.AcceptRejected.Add(1)
		g.closePair(client)
		return
	}
	if err := g.poller.Register(up.fd, up.handle, false, true); err != nil {
		g.log.Warn("register upstream failed", "error", err)
		metrics.AcceptRejected.Add(1)
		g.closePair(client)
		return
	}

	metrics.Accepted.Add(1)
	g.log.Debug("accepted", "client", clientAddr.String(), "destination", dest.String())
}

// abandonClient undoes a partially-seeded accept before the pair is linked.
func (g *Gateway) abandonClient(client *record) {
	_ = unix.Close(client.fd)
	g.table.release(client.handle)
}
