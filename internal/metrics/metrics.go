// Package metrics publishes gateway counters through expvar, which the
// debug HTTP listener serves at /debug/vars.
package metrics

import "expvar"

var (
	// Accepted counts client connections accepted by the listener.
	Accepted = expvar.NewInt("tcpsocks_accepted_total")
	// AcceptRejected counts accepts abandoned for capacity or resource
	// exhaustion.
	AcceptRejected = expvar.NewInt("tcpsocks_accept_rejected_total")
	// ActivePairs tracks pairs currently promoted to relaying.
	ActivePairs = expvar.NewInt("tcpsocks_active_pairs")
	// HandshakeFailures counts upstream SOCKS5 handshakes that did not
	// reach the relay state.
	HandshakeFailures = expvar.NewInt("tcpsocks_handshake_failures_total")
	// BytesRelayed counts payload bytes forwarded in either direction.
	BytesRelayed = expvar.NewInt("tcpsocks_bytes_relayed_total")
)
