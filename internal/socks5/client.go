package socks5

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth configures optional username/password authentication for SOCKS5
// negotiation.
type Auth struct {
	Username string
	Password string
}

// Enabled reports whether credentials are configured.
func (a Auth) Enabled() bool { return a.Username != "" }

const (
	// MethodNone is the no-authentication method.
	MethodNone = txsocks5.MethodNone
	// MethodUserPass is the RFC 1929 username/password method.
	MethodUserPass = txsocks5.MethodUsernamePassword
)

var (
	// ErrNoAcceptableMethod means the server rejected every offered
	// authentication method.
	ErrNoAcceptableMethod = errors.New("no acceptable authentication method")
	// ErrAuthFailed means the server rejected the supplied credentials.
	ErrAuthFailed = errors.New("authentication failed")
)

// EncodeGreeting returns the wire bytes of the method-negotiation greeting.
// The no-auth method is always offered; username/password is offered as well
// when credentials are configured.
func EncodeGreeting(auth Auth) []byte {
	methods := []byte{txsocks5.MethodNone}
	if auth.Enabled() {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	var b bytes.Buffer
	_, _ = txsocks5.NewNegotiationRequest(methods).WriteTo(&b)
	return b.Bytes()
}

// MethodReplyLen is the wire length of a method-selection reply.
const MethodReplyLen = 2

// ParseMethodReply decodes the 2-byte method-selection reply and returns the
// selected method.
func ParseMethodReply(b []byte) (byte, error) {
	rep, err := txsocks5.NewNegotiationReplyFrom(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("negotiation reply: %w", err)
	}
	if rep.Method == txsocks5.MethodUnsupportAll {
		return 0, ErrNoAcceptableMethod
	}
	return rep.Method, nil
}

// EncodeUserPass returns the wire bytes of the RFC 1929 auth sub-negotiation
// request.
func EncodeUserPass(auth Auth) ([]byte, error) {
	if len(auth.Username) == 0 || len(auth.Username) > 255 || len(auth.Password) > 255 {
		return nil, errors.New("username/password length out of range")
	}

	var b bytes.Buffer
	_, _ = txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(&b)
	return b.Bytes(), nil
}

// UserPassReplyLen is the wire length of an auth sub-negotiation reply.
const UserPassReplyLen = 2

// ParseUserPassReply decodes the 2-byte auth result.
func ParseUserPassReply(b []byte) error {
	rep, err := txsocks5.NewUserPassNegotiationReplyFrom(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("userpass reply: %w", err)
	}
	if rep.Status != txsocks5.UserPassStatusSuccess {
		return ErrAuthFailed
	}
	return nil
}

// EncodeConnect returns the wire bytes of a CONNECT request for an IPv4
// destination.
func EncodeConnect(dst netip.AddrPort) ([]byte, error) {
	addr := dst.Addr().Unmap()
	if !addr.Is4() {
		return nil, fmt.Errorf("destination %s is not IPv4", dst)
	}
	a4 := addr.As4()

	var port [2]byte
	binary.BigEndian.PutUint16(port[:], dst.Port())

	var b bytes.Buffer
	_, _ = txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPIPv4, a4[:], port[:]).WriteTo(&b)
	return b.Bytes(), nil
}

// ConnectReplyHeaderLen is the fixed prefix of a CONNECT reply; the rest is
// the variable-length bound address.
const ConnectReplyHeaderLen = 4

// ConnectReplyLen reports the total wire length of the CONNECT reply
// beginning in b, which must hold at least the 4-byte header. When the
// address type needs more bytes before the length is known (domain replies
// carry their own length octet), it returns the minimum prefix to accumulate
// before asking again.
func ConnectReplyLen(b []byte) (int, error) {
	if len(b) < ConnectReplyHeaderLen {
		return ConnectReplyHeaderLen, nil
	}
	if b[0] != txsocks5.Ver {
		return 0, fmt.Errorf("bad reply version %#02x", b[0])
	}
	switch b[3] {
	case txsocks5.ATYPIPv4:
		return 4 + 4 + 2, nil
	case txsocks5.ATYPIPv6:
		return 4 + 16 + 2, nil
	case txsocks5.ATYPDomain:
		if len(b) < 5 {
			return 5, nil
		}
		return 4 + 1 + int(b[4]) + 2, nil
	default:
		return 0, fmt.Errorf("bad reply address type %#02x", b[3])
	}
}

// ParseConnectReply decodes a complete CONNECT reply and returns an error
// unless the reply status indicates success.
func ParseConnectReply(b []byte) error {
	rep, err := txsocks5.NewReplyFrom(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("connect reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect rejected: %s", repString(rep.Rep))
	}
	return nil
}

func repString(rep byte) string {
	switch rep {
	case txsocks5.RepServerFailure:
		return "general server failure"
	case txsocks5.RepNotAllowed:
		return "connection not allowed by ruleset"
	case txsocks5.RepNetworkUnreachable:
		return "network unreachable"
	case txsocks5.RepHostUnreachable:
		return "host unreachable"
	case txsocks5.RepConnectionRefused:
		return "connection refused"
	case txsocks5.RepTTLExpired:
		return "TTL expired"
	case txsocks5.RepCommandNotSupported:
		return "command not supported"
	case txsocks5.RepAddressNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("reply code %#02x", rep)
	}
}
