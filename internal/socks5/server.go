package socks5

import (
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Request is a parsed client command request.
type Request struct {
	Cmd  byte
	Atyp byte
	// Address is the requested destination as host:port.
	Address string
}

// ServerNegotiate answers the client's method negotiation, then checks its
// credentials when auth requires them. A server with credentials does not
// fall back to anonymous access.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5: read negotiation: %w", err)
	}

	method := auth.method()
	if !slices.Contains(neg.Methods, method) {
		_, _ = txsocks5.NewNegotiationReply(methodNoAcceptable).WriteTo(conn)
		return ErrNoAcceptableMethod
	}
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: write negotiation: %w", err)
	}
	if !auth.required() {
		return nil
	}

	creds, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5: read credentials: %w", err)
	}
	status := txsocks5.UserPassStatusSuccess
	if !auth.matches(creds.Uname, creds.Passwd) {
		status = txsocks5.UserPassStatusFailure
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(status).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: write credentials reply: %w", err)
	}
	if status != txsocks5.UserPassStatusSuccess {
		return ErrAuthFailed
	}
	return nil
}

// ServerReadRequest reads the client's command request.
func ServerReadRequest(conn net.Conn) (*Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("socks5: read request: %w", err)
	}
	return &Request{Cmd: req.Cmd, Atyp: req.Atyp, Address: req.Address()}, nil
}
