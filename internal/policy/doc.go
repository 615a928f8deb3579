// Package policy implements the host blacklist consulted by the proxy
// listeners before any outbound connection is made.
//
// Entries and lookups go through the same normalization, so a domain
// addressed with or without a scheme, path, port or leading "www." maps to
// the same key. Matching is exact after normalization: there is no subdomain
// wildcarding. Hostnames are compared case-insensitively.
package policy
