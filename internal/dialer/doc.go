// Package dialer provides the outbound connectors used by gatekeep to reach
// origin servers.
//
// The direct dialer resolves the destination itself and reports resolution
// and connection failures as distinct error types. Upstream dialers tunnel
// the connection through another HTTP (CONNECT) or SOCKS5 proxy. None of them
// retry: failures surface to the caller immediately.
package dialer
