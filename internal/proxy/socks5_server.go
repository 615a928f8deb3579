package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/gatekeep/internal/dialer"
	"github.com/die-net/gatekeep/internal/socks5"
)

// NewSOCKS5Server returns a Server speaking SOCKS5 (CONNECT only). The
// requested destination goes through the same blacklist as HTTP requests.
// If auth.Username is set, clients must authenticate with username/password.
func NewSOCKS5Server(cfg Config, auth socks5.Auth) *Server {
	cfg = cfg.withDefaults()
	h := &socks5Handler{cfg: cfg, auth: auth, logger: cfg.Logger.With(zap.String("listener", "socks5"))}
	return newServer("socks5", cfg, h.serveConn)
}

type socks5Handler struct {
	cfg    Config
	auth   socks5.Auth
	logger *zap.Logger
}

func (h *socks5Handler) serveConn(ctx context.Context, conn net.Conn) {
	log := h.logger.With(zap.Stringer("client", conn.RemoteAddr()))

	if h.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(h.cfg.NegotiationTimeout))
	}

	if err := socks5.ServerNegotiate(conn, h.auth); err != nil {
		log.Debug("negotiation failed", zap.Error(err))
		return
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		log.Debug("reading request failed", zap.Error(err))
		return
	}
	if req.Cmd != socks5.CmdConnect {
		_ = socks5.WriteFailureReply(conn, socks5.RepCommandNotSupported, req.Atyp)
		return
	}

	const kind = "socks5"
	h.cfg.Metrics.Request(kind)
	log = log.With(zap.String("target", req.Address))

	host, _, err := net.SplitHostPort(req.Address)
	if err != nil {
		log.Debug("malformed destination", zap.Error(err))
		_ = socks5.WriteFailureReply(conn, socks5.RepHostUnreachable, req.Atyp)
		return
	}

	if h.cfg.Policy.IsBlocked(host) {
		h.cfg.Metrics.Blocked(kind)
		_ = socks5.WriteFailureReply(conn, socks5.RepNotAllowed, req.Atyp)
		return
	}

	origin, err := h.cfg.Dialer.DialContext(ctx, "tcp", req.Address)
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		rep := socks5.RepConnectionRefused
		var resErr *dialer.ResolutionError
		if errors.As(err, &resErr) {
			rep = socks5.RepHostUnreachable
		}
		_ = socks5.WriteFailureReply(conn, rep, req.Atyp)
		return
	}
	up := own(origin)
	defer up.Close()

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		log.Debug("writing success reply failed", zap.Error(err))
		return
	}
	if h.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	log.Debug("tunnel established")
	err = Relay(ctx, conn, up, h.cfg.IdleTimeout)
	log.Debug("tunnel closed", zap.Error(err))
}
