package gateway

import (
	"log/slog"
	"time"

	"github.com/qingchen1984/tcpsocks/internal/socks5"
)

// DefaultMaxConns bounds the connection table when Config.MaxConns is unset.
const DefaultMaxConns = 1024

// KeepAlive configures TCP keepalive probing on client and upstream sockets.
type KeepAlive struct {
	Enable   bool
	Idle     time.Duration
	Interval time.Duration
	Count    int
}

// Config describes one gateway instance.
type Config struct {
	// Listen is the client-facing listen address (IPv4 host:port).
	Listen string

	// SOCKS5Server is the upstream SOCKS5 server address.
	SOCKS5Server string

	// Auth carries optional RFC 1929 credentials for the upstream.
	Auth socks5.Auth

	// Destination is the fixed destination requested for every client
	// when Transparent is off.
	Destination string

	// Transparent recovers each client's original destination from the
	// kernel's redirection metadata instead of Destination.
	Transparent bool

	// MaxConns bounds the connection table, counting the listening and
	// control descriptors.
	MaxConns int

	// ControlFD, when >= 0, is registered with the reactor; any input on
	// it dumps per-connection diagnostics. Typically stdin.
	ControlFD int

	KeepAlive KeepAlive

	// Log defaults to slog.Default.
	Log *slog.Logger
}
