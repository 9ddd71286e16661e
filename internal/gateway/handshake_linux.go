//go:build linux

package gateway

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/qingchen1984/tcpsocks/internal/metrics"
	"github.com/qingchen1984/tcpsocks/internal/socks5"
)

// stepHandshake advances the upstream record through the SOCKS5 client
// protocol when the state's readiness precondition holds. forced runs the
// pending phase regardless, for error/hang-up routing.
func (g *Gateway) stepHandshake(rec *record, forced bool) {
	switch rec.state {
	case StateConnecting:
		if rec.writeReady || forced {
			g.finishConnect(rec)
		}
	case StateGreetingSent:
		if rec.readReady || forced {
			g.readGreetingReply(rec)
		}
	case StateAuthSent:
		if rec.readReady || forced {
			g.readAuthReply(rec)
		}
	case StateConnectSent:
		if rec.readReady || forced {
			g.readConnectReply(rec)
		}
	}
}

// finishConnect fires when the nonblocking connect resolves. Write readiness
// alone does not mean success; SO_ERROR holds the verdict.
func (g *Gateway) finishConnect(rec *record) {
	rec.writeReady = false

	soerr, err := unix.GetsockoptInt(rec.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soerr != 0 {
		err = unix.Errno(soerr)
	}
	if err != nil {
		g.failHandshake(rec, "connect", err)
		return
	}

	if !g.sendHandshake(rec, socks5.EncodeGreeting(g.cfg.Auth), "greeting") {
		return
	}
	rec.state = StateGreetingSent
	rec.wantRead = true
	g.updateInterest(rec)
}

func (g *Gateway) readGreetingReply(rec *record) {
	buf, ok := g.readHandshake(rec, socks5.MethodReplyLen)
	if !ok {
		return
	}
	method, err := socks5.ParseMethodReply(buf)
	rec.hsBuf = rec.hsBuf[:0]
	if err != nil {
		g.failHandshake(rec, "method selection", err)
		return
	}

	switch method {
	case socks5.MethodNone:
		g.sendConnect(rec)
	case socks5.MethodUserPass:
		if !g.cfg.Auth.Enabled() {
			g.failHandshake(rec, "method selection", fmt.Errorf("server demands credentials, none configured"))
			return
		}
		msg, err := socks5.EncodeUserPass(g.cfg.Auth)
		if err != nil {
			g.failHandshake(rec, "auth", err)
			return
		}
		if !g.sendHandshake(rec, msg, "auth") {
			return
		}
		rec.state = StateAuthSent
		rec.wantRead = true
		g.updateInterest(rec)
	default:
		g.failHandshake(rec, "method selection", fmt.Errorf("unsupported method %#02x", method))
	}
}

func (g *Gateway) readAuthReply(rec *record) {
	buf, ok := g.readHandshake(rec, socks5.UserPassReplyLen)
	if !ok {
		return
	}
	err := socks5.ParseUserPassReply(buf)
	rec.hsBuf = rec.hsBuf[:0]
	if err != nil {
		g.failHandshake(rec, "auth", err)
		return
	}
	g.sendConnect(rec)
}

func (g *Gateway) sendConnect(rec *record) {
	msg, err := socks5.EncodeConnect(rec.addr)
	if err != nil {
		g.failHandshake(rec, "connect request", err)
		return
	}
	if !g.sendHandshake(rec, msg, "connect request") {
		return
	}
	rec.state = StateConnectSent
	rec.wantRead = true
	g.updateInterest(rec)
}

func (g *Gateway) readConnectReply(rec *record) {
	need := socks5.ConnectReplyHeaderLen
	for {
		buf, ok := g.readHandshake(rec, need)
		if !ok {
			return
		}
		n, err := socks5.ConnectReplyLen(buf)
		if err != nil {
			g.failHandshake(rec, "connect reply", err)
			return
		}
		if n <= len(buf) {
			break
		}
		need = n
	}

	if err := socks5.ParseConnectReply(rec.hsBuf); err != nil {
		g.failHandshake(rec, "connect reply", err)
		return
	}
	g.promote(rec)
}

// promote switches the handshaken pair into the relay state and arms both
// ends for bidirectional interest.
func (g *Gateway) promote(rec *record) {
	peer := g.table.get(rec.peer)
	if peer == nil || peer == rec {
		g.closePair(rec)
		return
	}

	rec.hsBuf = nil
	rec.state = StateRelaying
	peer.state = StateRelaying
	metrics.ActivePairs.Add(1)
	g.log.Debug("pair established", "client", peer.addr.String(), "destination", rec.addr.String())

	if !g.armRead(rec) {
		return
	}
	g.armRead(peer)
}

// sendHandshake writes one complete handshake message. The messages are at
// most 262 bytes into a fresh socket buffer, so a short write only happens on
// a connection that is already doomed and counts as failure.
func (g *Gateway) sendHandshake(rec *record, msg []byte, phase string) bool {
	n, err := unix.Write(rec.fd, msg)
	if err != nil {
		g.failHandshake(rec, phase, err)
		return false
	}
	if n != len(msg) {
		g.failHandshake(rec, phase, io.ErrShortWrite)
		return false
	}
	return true
}

// readHandshake accumulates reply bytes into rec.hsBuf until need are
// buffered. A would-block re-arms read interest and reports not-ready; any
// other shortfall tears the pair down.
func (g *Gateway) readHandshake(rec *record, need int) ([]byte, bool) {
	rec.readReady = false
	var tmp [262]byte
	for len(rec.hsBuf) < need {
		n, err := unix.Read(rec.fd, tmp[:need-len(rec.hsBuf)])
		if err == unix.EAGAIN {
			rec.wantRead = true
			g.updateInterest(rec)
			return nil, false
		}
		if err != nil {
			g.failHandshake(rec, "reply read", err)
			return nil, false
		}
		if n == 0 {
			g.failHandshake(rec, "reply read", io.ErrUnexpectedEOF)
			return nil, false
		}
		rec.hsBuf = append(rec.hsBuf, tmp[:n]...)
	}
	return rec.hsBuf, true
}

// failHandshake tears down a pair that never reached the relay state.
func (g *Gateway) failHandshake(rec *record, phase string, err error) {
	metrics.HandshakeFailures.Add(1)
	g.log.Warn("handshake failed", "phase", phase, "destination", rec.addr.String(), "error", err)
	g.closePair(rec)
}
