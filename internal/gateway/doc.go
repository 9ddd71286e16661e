// Package gateway implements the connection reactor at the heart of
// tcpsocks: a single-threaded, readiness-driven event loop that accepts
// plaintext TCP clients, walks an outbound connection through the SOCKS5
// client handshake on their behalf, and then relays bytes both ways until
// either side closes.
//
// All state lives in a fixed-capacity connection table shared by the
// acceptor, handshake state machine, relay engine, and teardown; every
// mutation happens inside the dispatch of one readiness event, so nothing is
// locked. Socket operations never block: would-block means "re-arm and wait
// again". A short write parks the unwritten remainder as the destination
// descriptor's debt; while debt is outstanding that descriptor waits for
// write-only interest and its peer stops reading, bounding buffering to one
// outstanding buffer per descriptor.
//
// No handshake or idle timeouts are enforced; a stuck peer holds its pair's
// two table slots until either side goes away.
package gateway
