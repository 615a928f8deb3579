package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type lookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// directDialer connects straight to the origin. Concurrent lookups of the
// same hostname share one resolver query.
type directDialer struct {
	cfg    Config
	lookup lookupFunc
	sf     singleflight.Group
	logger *zap.Logger
}

func NewDirectDialer(cfg Config) (Dialer, error) {
	return &directDialer{cfg: cfg, lookup: systemLookup, logger: cfg.logger()}, nil
}

func systemLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// DialContext resolves the host part of address and tries each resulting
// address in order until one connects. A lookup failure is returned as a
// *ResolutionError, a connect failure as a *ConnectError.
func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	addrs, err := d.resolve(ctx, host)
	if err != nil {
		return nil, &ResolutionError{Host: host, Err: err}
	}

	dd := net.Dialer{Timeout: d.cfg.DialTimeout}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dd.DialContext(ctx, network, net.JoinHostPort(addr.Unmap().String(), port))
		if err != nil {
			d.logger.Debug("connect attempt failed", zap.String("address", address), zap.Stringer("ip", addr), zap.Error(err))
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAliveConfig(d.cfg.KeepAlive)
		}
		return conn, nil
	}

	return nil, &ConnectError{Address: address, Err: lastErr}
}

// resolve returns literal IPs as-is and otherwise looks host up.
//
// The shared lookup runs on a background context bounded by DialTimeout so
// one canceled caller does not fail the others waiting on it.
func (d *directDialer) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}

	ch := d.sf.DoChan(host, func() (any, error) {
		lctx := context.Background()
		if d.cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, d.cfg.DialTimeout)
			defer cancel()
		}
		addrs, err := d.lookup(lctx, host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, errors.New("no addresses")
		}
		return addrs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]netip.Addr), nil
	}
}
