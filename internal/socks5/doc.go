// Package socks5 holds the SOCKS5 handshake pieces gatekeep needs on both
// sides of a connection: the client handshake used by the upstream SOCKS5
// dialer, and the server handshake and replies used by the SOCKS5 listener.
//
// It is a thin layer over the wire types in github.com/txthinking/socks5.
package socks5
