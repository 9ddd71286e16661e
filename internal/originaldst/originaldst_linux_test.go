//go:build linux

package originaldst

import (
	"net"
	"net/netip"
	"os"
	"strings"
	"testing"
)

func TestLookupNonSocket(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	_, err = Lookup(int(r.Fd()))
	if err == nil {
		t.Fatal("Lookup on a pipe succeeded")
	}
	if !strings.Contains(err.Error(), "SO_ORIGINAL_DST") {
		t.Errorf("error %q does not name the failing sockopt", err)
	}
}

func TestLookupDirectConnection(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	client, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sc, err := conn.(*net.TCPConn).SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var got netip.AddrPort
	var lookupErr error
	if err := sc.Control(func(fd uintptr) {
		got, lookupErr = Lookup(int(fd))
	}); err != nil {
		t.Fatal(err)
	}

	// Without a REDIRECT rule the kernel either has no translation entry
	// for the connection or reports the address the client actually
	// dialed, depending on whether conntrack covers loopback.
	if lookupErr != nil {
		if !strings.Contains(lookupErr.Error(), "SO_ORIGINAL_DST") {
			t.Errorf("error %q does not name the failing sockopt", lookupErr)
		}
		return
	}
	want := netip.MustParseAddrPort(ln.Addr().String())
	if got != want {
		t.Errorf("Lookup = %s, want %s", got, want)
	}
}
