package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/gatekeep/internal/dialer"
	"github.com/die-net/gatekeep/internal/metrics"
	"github.com/die-net/gatekeep/internal/policy"
)

const (
	// DefaultMaxHeaderBytes bounds a request head (request line plus
	// headers).
	DefaultMaxHeaderBytes = 8192

	// DefaultAcceptPollInterval bounds how long the accept loop waits before
	// rechecking whether the server is shutting down.
	DefaultAcceptPollInterval = time.Second

	relayBufferSize = 8192
)

type Config struct {
	Dialer  dialer.Dialer
	Policy  *policy.Engine
	Logger  *zap.Logger
	Metrics *metrics.Proxy

	MaxHeaderBytes     int
	AcceptPollInterval time.Duration

	// NegotiationTimeout bounds reading a request head or a SOCKS5
	// handshake. Zero means no limit.
	NegotiationTimeout time.Duration
	// IdleTimeout closes a relay or response stream when no bytes move in
	// either direction for this long. Zero means no limit.
	IdleTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Policy == nil {
		c.Policy = policy.New(c.Logger, false)
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.AcceptPollInterval <= 0 {
		c.AcceptPollInterval = DefaultAcceptPollInterval
	}
	return c
}
