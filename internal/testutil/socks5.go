package testutil

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/qingchen1984/tcpsocks/internal/socks5"
)

// SOCKS5Server is a scripted in-process SOCKS5 server for gateway tests. The
// zero value negotiates no authentication, accepts every CONNECT, and echoes
// the connection afterwards.
type SOCKS5Server struct {
	// Auth, when enabled, requires username/password authentication.
	Auth socks5.Auth

	// RejectMethods answers the greeting with "no acceptable methods" and
	// hangs up.
	RejectMethods bool

	// ConnectReply is the CONNECT reply code. The zero value is success.
	ConnectReply byte

	// Handler, when set, takes over the connection after a successful
	// handshake instead of echoing.
	Handler func(net.Conn)
}

func (s *SOCKS5Server) Start(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(c)
		}
	}()

	return ln
}

func (s *SOCKS5Server) handle(c net.Conn) {
	defer c.Close()

	if s.RejectMethods {
		_ = socks5.ServerRejectMethods(c)
		return
	}
	if err := socks5.ServerNegotiate(c, s.Auth); err != nil {
		return
	}
	if _, err := socks5.ServerReadConnect(c); err != nil {
		return
	}
	if err := socks5.ServerWriteReply(c, s.ConnectReply); err != nil {
		return
	}
	if s.ConnectReply != socks5.RepSuccess {
		return
	}

	if s.Handler != nil {
		s.Handler(c)
		return
	}
	_, _ = io.Copy(c, c)
}
