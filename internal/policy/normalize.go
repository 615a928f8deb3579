package policy

import (
	"strings"

	"golang.org/x/net/idna"
)

// Normalize reduces a URL, host:port or bare host to the canonical key used
// for blacklist membership.
//
// It strips a leading "scheme://", anything from the first "/", any
// "userinfo@" prefix, a trailing ":port", a trailing root dot and a leading
// "www.", and maps the remainder to its lowercase ASCII (punycode) form.
func Normalize(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	s = stripPort(s)
	s = strings.TrimSuffix(s, ".")
	s = canonicalCase(s)
	s = strings.TrimPrefix(s, "www.")

	return s
}

// stripPort removes a ":port" suffix. Bracketed IPv6 literals lose their
// brackets; bare IPv6 literals (more than one colon) are left alone.
func stripPort(s string) string {
	if strings.HasPrefix(s, "[") {
		if i := strings.IndexByte(s, ']'); i > 0 {
			return s[1:i]
		}
		return s
	}
	if strings.Count(s, ":") == 1 {
		return s[:strings.IndexByte(s, ':')]
	}
	return s
}

func canonicalCase(s string) string {
	if s == "" {
		return s
	}
	if a, err := idna.Lookup.ToASCII(s); err == nil {
		return a
	}
	// Not a valid IDNA name (underscores, IPv6 literals, ...); still fold
	// ASCII case so lookups stay case-insensitive.
	return strings.ToLower(s)
}
