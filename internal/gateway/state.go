package gateway

// Role distinguishes which half of a pair a record is.
type Role uint8

const (
	// RoleClient is the accepted inbound connection.
	RoleClient Role = iota
	// RoleUpstream is the outbound connection to the SOCKS5 server.
	RoleUpstream
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// State is the protocol/relay state of one record. Every live record is in
// exactly one state; StateClosed is the zero value so released slots are
// closed by construction.
type State uint8

const (
	// StateClosed marks a free or torn-down slot.
	StateClosed State = iota
	// StateListening is the listening descriptor.
	StateListening
	// StateControl is the control descriptor (stdin diagnostics dump).
	StateControl
	// StateAccepted is a client waiting for its upstream handshake.
	StateAccepted

	// Handshake progression of the upstream record.
	StateConnecting
	StateGreetingSent
	StateAuthSent
	StateConnectSent

	// StateRelaying is an established pair moving bytes both ways.
	StateRelaying
	// StateReadOnly means this descriptor's write side is shut; bytes may
	// still be read from it.
	StateReadOnly
	// StateWriteOnly means this descriptor reported EOF; bytes may still
	// be written to it.
	StateWriteOnly
	// StateDraining means both directions have ended and the pair only
	// survives until the peer's debt buffer flushes.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateListening:
		return "listening"
	case StateControl:
		return "control"
	case StateAccepted:
		return "accepted"
	case StateConnecting:
		return "connecting"
	case StateGreetingSent:
		return "greeting-sent"
	case StateAuthSent:
		return "auth-sent"
	case StateConnectSent:
		return "connect-sent"
	case StateRelaying:
		return "relaying"
	case StateReadOnly:
		return "read-only"
	case StateWriteOnly:
		return "write-only"
	case StateDraining:
		return "draining"
	default:
		return "invalid"
	}
}

// handshaking reports whether the record is an upstream mid-handshake.
func (s State) handshaking() bool {
	return s >= StateConnecting && s <= StateConnectSent
}

// readable reports whether bytes may still be read from this descriptor.
func (s State) readable() bool {
	return s == StateRelaying || s == StateReadOnly
}

// writable reports whether bytes may still be written to this descriptor.
func (s State) writable() bool {
	return s == StateRelaying || s == StateWriteOnly
}

// established reports whether the record belongs to a promoted relay pair.
func (s State) established() bool {
	return s == StateRelaying || s == StateReadOnly || s == StateWriteOnly || s == StateDraining
}
