package socks5

import (
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate performs the server side of method negotiation on conn,
// requiring username/password when auth has credentials and no-auth
// otherwise.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if !auth.Enabled() {
		if !containsMethod(neg.Methods, txsocks5.MethodNone) {
			_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
			return fmt.Errorf("client does not offer no-auth")
		}
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
			return fmt.Errorf("negotiation reply: %w", err)
		}
		return nil
	}

	if !containsMethod(neg.Methods, txsocks5.MethodUsernamePassword) {
		_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
		return fmt.Errorf("client does not offer username/password")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}

	req, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if string(req.Uname) != auth.Username || string(req.Passwd) != auth.Password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	return nil
}

// ServerRejectMethods replies 0xFF (no acceptable methods) to whatever
// greeting the client sends, without inspecting it.
func ServerRejectMethods(conn net.Conn) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(conn); err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadConnect reads a request from conn and verifies it is a CONNECT.
func ServerReadConnect(conn net.Conn) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if req.Cmd != txsocks5.CmdConnect {
		_ = ServerWriteReply(conn, txsocks5.RepCommandNotSupported)
		return nil, fmt.Errorf("unexpected command %#02x", req.Cmd)
	}
	return req, nil
}

// ServerWriteReply writes a reply with the given status and a zero IPv4 bound
// address, the shape this gateway's scope expects.
func ServerWriteReply(conn net.Conn, rep byte) error {
	reply := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0})
	if _, err := reply.WriteTo(conn); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// RepSuccess and friends re-export the reply codes tests care about.
const (
	RepSuccess           = txsocks5.RepSuccess
	RepConnectionRefused = txsocks5.RepConnectionRefused
	RepHostUnreachable   = txsocks5.RepHostUnreachable
)

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
