package socks5

import (
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect

	// RFC 1928 reply codes.
	RepNotAllowed          byte = 0x02
	RepHostUnreachable          = txsocks5.RepHostUnreachable
	RepConnectionRefused        = txsocks5.RepConnectionRefused
	RepCommandNotSupported      = txsocks5.RepCommandNotSupported
)

// WriteFailureReply writes a reply carrying rep and a zero bound address of
// the same family as atyp.
func WriteFailureReply(conn net.Conn, rep, atyp byte) error {
	r := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
	if atyp == txsocks5.ATYPIPv6 {
		r = txsocks5.NewReply(rep, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00})
	}
	if _, err := r.WriteTo(conn); err != nil {
		return fmt.Errorf("failure reply: %w", err)
	}
	return nil
}

// WriteSuccessReply writes a success reply using localAddr as the bound
// address.
func WriteSuccessReply(conn net.Conn, localAddr net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(localAddr.String())
	if err != nil {
		return fmt.Errorf("parse local address %q: %w", localAddr.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}
