//go:build linux

package gateway

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

const listenBacklog = 128

// listenTCP4 opens a nonblocking IPv4 listening socket on ap.
func listenTCP4(ap netip.AddrPort) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	sa, err := sockaddr4(ap)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", ap, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", ap, err)
	}
	return fd, nil
}

// applyKeepAlive configures TCP keepalive probing on fd. Best effort, like
// the keepalive listeners this replaces.
func applyKeepAlive(fd int, ka KeepAlive) {
	if !ka.Enable {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0)
		return
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	if ka.Idle > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(ka.Idle.Seconds()))
	}
	if ka.Interval > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(ka.Interval.Seconds()))
	}
	if ka.Count > 0 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, ka.Count)
	}
}

func sockaddr4(ap netip.AddrPort) (*unix.SockaddrInet4, error) {
	addr := ap.Addr().Unmap()
	if !addr.Is4() {
		return nil, fmt.Errorf("address %s is not IPv4", ap)
	}
	return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
}

func addrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

func localAddrPort(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return addrPortFromSockaddr(sa), nil
}

// resolveIPv4 parses or resolves host:port to an IPv4 address and port.
func resolveIPv4(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		if !ap.Addr().Unmap().Is4() {
			return netip.AddrPort{}, fmt.Errorf("address %s is not IPv4", s)
		}
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	}
	ta, err := net.ResolveTCPAddr("tcp4", s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", s, err)
	}
	ap := ta.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
