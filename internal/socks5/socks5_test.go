package socks5

import (
	"bytes"
	"io"
	"net"
	"net/netip"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestEncodeGreeting(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
		want []byte
	}{
		{name: "no_auth", want: []byte{0x05, 0x01, 0x00}},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}, want: []byte{0x05, 0x02, 0x00, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeGreeting(tt.auth); !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeGreeting = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestEncodeConnect(t *testing.T) {
	got, err := EncodeConnect(netip.MustParseAddrPort("10.1.2.3:8080"))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x05, 0x01, 0x00, 0x01, 10, 1, 2, 3, 0x1f, 0x90}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeConnect = % x, want % x", got, want)
	}

	if _, err := EncodeConnect(netip.MustParseAddrPort("[::1]:80")); err == nil {
		t.Error("expected error for IPv6 destination")
	}
}

func TestParseMethodReply(t *testing.T) {
	if m, err := ParseMethodReply([]byte{0x05, 0x00}); err != nil || m != MethodNone {
		t.Errorf("got method %#02x, err %v", m, err)
	}
	if m, err := ParseMethodReply([]byte{0x05, 0x02}); err != nil || m != MethodUserPass {
		t.Errorf("got method %#02x, err %v", m, err)
	}
	if _, err := ParseMethodReply([]byte{0x05, 0xff}); err != ErrNoAcceptableMethod {
		t.Errorf("expected ErrNoAcceptableMethod, got %v", err)
	}
	if _, err := ParseMethodReply([]byte{0x04, 0x00}); err == nil {
		t.Error("expected error for bad version")
	}
}

func TestConnectReplyLen(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want int
	}{
		{name: "short_header", b: []byte{0x05}, want: 4},
		{name: "ipv4", b: []byte{0x05, 0x00, 0x00, 0x01}, want: 10},
		{name: "ipv6", b: []byte{0x05, 0x00, 0x00, 0x04}, want: 22},
		{name: "domain_need_len", b: []byte{0x05, 0x00, 0x00, 0x03}, want: 5},
		{name: "domain", b: []byte{0x05, 0x00, 0x00, 0x03, 9}, want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConnectReplyLen(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ConnectReplyLen(% x) = %d, want %d", tt.b, got, tt.want)
			}
		})
	}

	if _, err := ConnectReplyLen([]byte{0x05, 0x00, 0x00, 0x09}); err == nil {
		t.Error("expected error for bad address type")
	}
}

// TestClientBytesAgainstServer drives the byte-level client encoders through
// a pipe against the stream-based server side, the way the gateway's
// handshake state machine uses them.
func TestClientBytesAgainstServer(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				if err := ServerNegotiate(serverConn, tt.auth); err != nil {
					return err
				}
				if _, err := ServerReadConnect(serverConn); err != nil {
					return err
				}
				return ServerWriteReply(serverConn, RepSuccess)
			})

			if _, err := clientConn.Write(EncodeGreeting(tt.auth)); err != nil {
				t.Fatal(err)
			}
			buf := make([]byte, MethodReplyLen)
			if _, err := io.ReadFull(clientConn, buf); err != nil {
				t.Fatal(err)
			}
			method, err := ParseMethodReply(buf)
			if err != nil {
				t.Fatal(err)
			}

			if method == MethodUserPass {
				up, err := EncodeUserPass(tt.auth)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := clientConn.Write(up); err != nil {
					t.Fatal(err)
				}
				rep := make([]byte, UserPassReplyLen)
				if _, err := io.ReadFull(clientConn, rep); err != nil {
					t.Fatal(err)
				}
				if err := ParseUserPassReply(rep); err != nil {
					t.Fatal(err)
				}
			}

			req, err := EncodeConnect(netip.MustParseAddrPort("127.0.0.1:80"))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := clientConn.Write(req); err != nil {
				t.Fatal(err)
			}

			// Accumulate the reply the same way the nonblocking caller
			// does: grow the buffer until ConnectReplyLen is satisfied.
			reply := make([]byte, 0, 22)
			need := ConnectReplyHeaderLen
			for len(reply) < need {
				chunk := make([]byte, need-len(reply))
				if _, err := io.ReadFull(clientConn, chunk); err != nil {
					t.Fatal(err)
				}
				reply = append(reply, chunk...)
				need, err = ConnectReplyLen(reply)
				if err != nil {
					t.Fatal(err)
				}
			}
			if err := ParseConnectReply(reply); err != nil {
				t.Fatal(err)
			}

			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestParseConnectReplyFailure(t *testing.T) {
	reply := []byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if err := ParseConnectReply(reply); err == nil {
		t.Error("expected error for refused reply")
	}
}
