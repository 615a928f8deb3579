package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Upstream is a parsed --upstream value.
type Upstream struct {
	// Scheme is one of direct, http, https or socks5.
	Scheme string
	// Addr is the proxy's host:port, with the scheme's default port applied.
	// It is empty for direct.
	Addr     string
	Username string
	Password string
}

// ParseUpstream parses one of:
//   - direct://
//   - http://[user:pass@]host[:port]
//   - https://[user:pass@]host[:port]
//   - socks5://[user:pass@]host[:port]
func ParseUpstream(s string) (Upstream, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Upstream{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Path != "" && u.Path != "/" {
		return Upstream{}, errors.New("invalid url: path should be empty")
	}

	up := Upstream{Scheme: strings.ToLower(u.Scheme)}
	switch up.Scheme {
	case "":
		return Upstream{}, errors.New("invalid url: missing scheme")
	case "direct":
		return up, nil
	case "http", "https", "socks5":
	default:
		return Upstream{}, fmt.Errorf("invalid url scheme: %q", up.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Upstream{}, fmt.Errorf("invalid url: %s upstream needs a host", up.Scheme)
	}
	port := u.Port()
	if port == "" {
		port = defaultPortForScheme(up.Scheme)
	}
	up.Addr = net.JoinHostPort(host, port)

	if u.User != nil {
		up.Username = u.User.Username()
		up.Password, _ = u.User.Password()
	}
	return up, nil
}

// String returns the upstream as a URL with the password redacted, for logs.
func (u Upstream) String() string {
	if u.Scheme == "direct" {
		return "direct://"
	}
	out := &url.URL{Scheme: u.Scheme, Host: u.Addr}
	switch {
	case u.Password != "":
		out.User = url.UserPassword(u.Username, "xxxxx")
	case u.Username != "":
		out.User = url.User(u.Username)
	}
	return out.String()
}

// New parses upstream and constructs the matching outbound Dialer.
func New(cfg Config, upstream string) (Dialer, error) {
	up, err := ParseUpstream(upstream)
	if err != nil {
		return nil, err
	}

	switch up.Scheme {
	case "http", "https":
		d, err := NewHTTPProxyDialer(cfg, up)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "socks5":
		d, err := NewSOCKS5ProxyDialer(cfg, up)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return NewDirectDialer(cfg)
	}
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	case "socks5":
		return "1080"
	default:
		return ""
	}
}
