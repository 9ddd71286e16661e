//go:build linux

// Package originaldst recovers the original destination of a TCP connection
// that was redirected to this process at the network layer.
//
// On Linux it queries SO_ORIGINAL_DST, which iptables/nftables REDIRECT and
// DNAT rules populate with the address the client actually dialed. Callers
// still need the firewall rules in place; a connection that was not
// redirected reports the listener's own address.
package originaldst

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Lookup returns the pre-redirect destination of the connection on fd.
func Lookup(fd int) (netip.AddrPort, error) {
	// The result is a raw sockaddr_in; IPv6Mreq is the customary
	// getsockopt carrier with a big enough payload.
	mreq, err := unix.GetsockoptIPv6Mreq(fd, unix.IPPROTO_IP, unix.SO_ORIGINAL_DST)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockopt SO_ORIGINAL_DST: %w", err)
	}

	family := binary.NativeEndian.Uint16(mreq.Multiaddr[0:2])
	if family != unix.AF_INET {
		return netip.AddrPort{}, fmt.Errorf("unexpected address family %d", family)
	}

	port := binary.BigEndian.Uint16(mreq.Multiaddr[2:4])
	addr := netip.AddrFrom4([4]byte(mreq.Multiaddr[4:8]))
	return netip.AddrPortFrom(addr, port), nil
}
