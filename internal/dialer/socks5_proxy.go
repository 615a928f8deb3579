package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/gatekeep/internal/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through a SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
	logger    *zap.Logger
}

func NewSOCKS5ProxyDialer(cfg Config, up Upstream) (*SOCKS5ProxyDialer, error) {
	if up.Addr == "" {
		return nil, errors.New("socks5 proxy dialer: missing proxy address")
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: up.Addr,
		auth:      socks5.Auth{Username: up.Username, Password: up.Password},
		direct:    direct,
		logger:    cfg.logger().With(zap.Stringer("upstream", up)),
	}, nil
}

// DialContext connects to the proxy and asks it to CONNECT to address. A
// negotiation failure or a non-success reply is returned as a *ConnectError.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	// Close c if ctx is canceled during negotiation.
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if err := socks5.ClientDial(c, f.auth, address); err != nil {
		_ = c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Debug("upstream refused connect", zap.String("target", address), zap.Error(err))
		return nil, &ConnectError{Address: address, Err: fmt.Errorf("socks5 proxy: %w", err)}
	}

	if !stop() {
		// ctx ended as negotiation finished; c is already closed.
		return nil, ctx.Err()
	}
	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}
