// Package socks5 builds and parses the client-side SOCKS5 handshake messages
// (RFC 1928 greeting and CONNECT, RFC 1929 username/password).
//
// It wraps the low-level protocol types in github.com/txthinking/socks5.
// Unlike a stream-oriented client, the encode functions return complete wire
// messages as byte slices and the parse functions consume already-accumulated
// bytes, so a nonblocking caller can drive the exchange from a readiness
// loop without ever blocking on partial I/O.
//
// The server-side helpers exist to stand up in-process SOCKS5 servers for
// tests; they are not a production server.
package socks5
