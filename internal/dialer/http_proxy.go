package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPProxyDialer reaches origins through an HTTP or HTTPS proxy using
// CONNECT.
type HTTPProxyDialer struct {
	cfg      Config
	upstream Upstream
	// authHeader is the Proxy-Authorization value, empty without
	// credentials.
	authHeader string
	direct     Dialer
	logger     *zap.Logger
}

func NewHTTPProxyDialer(cfg Config, up Upstream) (*HTTPProxyDialer, error) {
	if up.Scheme != "http" && up.Scheme != "https" {
		return nil, fmt.Errorf("http proxy dialer: unsupported scheme: %q", up.Scheme)
	}
	if _, _, err := net.SplitHostPort(up.Addr); err != nil {
		return nil, fmt.Errorf("http proxy dialer: invalid proxy address: %w", err)
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	d := &HTTPProxyDialer{
		cfg:      cfg,
		upstream: up,
		direct:   direct,
		logger:   cfg.logger().With(zap.Stringer("upstream", up)),
	}
	if up.Username != "" {
		d.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(up.Username+":"+up.Password))
	}
	return d, nil
}

// Upstream returns the proxy this dialer goes through.
func (d *HTTPProxyDialer) Upstream() Upstream {
	return d.upstream
}

// DialContext connects to the proxy, upgrades to TLS for https, and asks the
// proxy to CONNECT to address. Failures after the proxy itself was reached
// are returned as a *ConnectError.
func (d *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	c, err := d.direct.DialContext(ctx, network, d.upstream.Addr)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	if d.upstream.Scheme == "https" {
		tc, err := d.handshake(ctx, c)
		if err != nil {
			_ = c.Close()
			return nil, &ConnectError{Address: address, Err: err}
		}
		c = tc
	}

	br, err := d.connect(c, address)
	if err != nil {
		_ = c.Close()
		d.logger.Debug("upstream refused connect", zap.String("target", address), zap.Error(err))
		return nil, &ConnectError{Address: address, Err: err}
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: c, r: br}, nil
	}
	return c, nil
}

func (d *HTTPProxyDialer) handshake(ctx context.Context, c net.Conn) (net.Conn, error) {
	host, _, _ := net.SplitHostPort(d.upstream.Addr)
	tc := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host})
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("http proxy tls handshake: %w", err)
	}
	return tc, nil
}

// connect sends CONNECT and reads the reply. The returned reader may hold
// bytes the proxy sent right behind its reply.
func (d *HTTPProxyDialer) connect(c net.Conn, address string) (*bufio.Reader, error) {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if d.authHeader != "" {
		req.Header.Set("Proxy-Authorization", d.authHeader)
	}

	if err := req.Write(c); err != nil {
		return nil, fmt.Errorf("http proxy connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, errors.New("http proxy connect failed: " + resp.Status)
	}
	return br, nil
}

// bufferedConn drains bytes the proxy sent right after its CONNECT reply
// before reading from the connection again.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
