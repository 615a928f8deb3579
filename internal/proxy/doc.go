// Package proxy implements the gatekeep listeners and their per-connection
// handling.
//
// Server is the acceptor shared by every front door. It runs one goroutine
// per accepted connection and coordinates graceful shutdown. The HTTP front
// door checks the blacklist before dialing the origin, then either answers a
// CONNECT with a raw tunnel or forwards the plain HTTP request and streams
// the response back. The optional SOCKS5 front door applies the same
// blacklist to CONNECT destinations.
package proxy
