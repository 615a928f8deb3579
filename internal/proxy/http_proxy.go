package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// NewHTTPProxyServer returns a Server speaking the HTTP forward-proxy
// protocol: CONNECT tunnels and plain HTTP requests with absolute or
// origin-form targets.
//
// The blacklist is always consulted before the origin is dialed, so a
// blocked host is never contacted.
func NewHTTPProxyServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	h := &httpHandler{cfg: cfg, logger: cfg.Logger.With(zap.String("listener", "http"))}
	return newServer("http", cfg, h.serveConn)
}

type httpHandler struct {
	cfg    Config
	logger *zap.Logger
}

// serveConn handles requests on client until it closes, a request fails, or
// the connection turns into a tunnel.
func (h *httpHandler) serveConn(ctx context.Context, client net.Conn) {
	log := h.logger.With(zap.Stringer("client", client.RemoteAddr()))
	br := bufio.NewReaderSize(client, relayBufferSize)

	for {
		req, err := h.readRequest(client, br)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				h.fail(client, log, err)
			} else if !errors.Is(err, io.EOF) {
				log.Debug("reading request failed", zap.Error(err))
			}
			return
		}

		if req.IsConnect() {
			h.tunnel(ctx, client, br, req, log)
			return
		}
		if !h.forward(ctx, client, br, req, log) {
			return
		}
	}
}

func (h *httpHandler) readRequest(client net.Conn, br *bufio.Reader) (*Request, error) {
	if h.cfg.NegotiationTimeout > 0 {
		_ = client.SetReadDeadline(time.Now().Add(h.cfg.NegotiationTimeout))
		defer func() { _ = client.SetReadDeadline(time.Time{}) }()
	}

	head, err := readRequestHead(br, h.cfg.MaxHeaderBytes)
	if err != nil {
		return nil, err
	}
	return parseRequest(head)
}

// tunnel answers a CONNECT: policy check, dial, 200, then relay until either
// side closes.
func (h *httpHandler) tunnel(ctx context.Context, client net.Conn, br *bufio.Reader, req *Request, log *zap.Logger) {
	const kind = "connect"
	h.cfg.Metrics.Request(kind)
	log = log.With(zap.String("target", req.Address()))

	if h.cfg.Policy.IsBlocked(req.Host) {
		h.cfg.Metrics.Blocked(kind)
		h.fail(client, log, ErrBlocked)
		return
	}

	origin, err := h.cfg.Dialer.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		h.fail(client, log, err)
		return
	}
	up := own(origin)
	defer up.Close()

	if _, err := io.WriteString(client, connectEstablished); err != nil {
		log.Debug("writing connect reply failed", zap.Error(err))
		return
	}

	log.Debug("tunnel established")
	err = Relay(ctx, &bufferedConn{Conn: client, r: br}, up, h.cfg.IdleTimeout)
	log.Debug("tunnel closed", zap.Error(err))
}

// forward sends one plain HTTP request to its origin and streams the response
// back until the origin closes. It reports whether client can be read for
// another request.
func (h *httpHandler) forward(ctx context.Context, client net.Conn, br *bufio.Reader, req *Request, log *zap.Logger) bool {
	const kind = "http"
	h.cfg.Metrics.Request(kind)
	log = log.With(zap.String("method", req.Method), zap.String("target", req.Address()))

	if h.cfg.Policy.IsBlocked(req.Host) {
		h.cfg.Metrics.Blocked(kind)
		h.fail(client, log, ErrBlocked)
		return false
	}

	origin, err := h.cfg.Dialer.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		h.fail(client, log, err)
		return false
	}
	up := own(origin)
	defer up.Close()

	if err := sendRequest(up, br, req); err != nil {
		log.Warn("forwarding request failed", zap.Error(err))
		h.fail(client, log, fmt.Errorf("forward request: %w", err))
		return false
	}

	if req.Chunked {
		// Chunk boundaries are not tracked, so the rest of the connection
		// is passed through untouched.
		log.Debug("relaying chunked request")
		err := Relay(ctx, &bufferedConn{Conn: client, r: br}, up, h.cfg.IdleTimeout)
		log.Debug("chunked relay closed", zap.Error(err))
		return false
	}

	log.Debug("forwarding request")
	return h.streamResponse(ctx, client, up, log)
}

// sendRequest writes the head verbatim, followed by a Content-Length body
// read from br.
func sendRequest(origin io.Writer, br *bufio.Reader, req *Request) error {
	if _, err := origin.Write(req.Raw); err != nil {
		return err
	}
	if req.ContentLength > 0 {
		if _, err := io.CopyN(origin, br, req.ContentLength); err != nil {
			return err
		}
	}
	return nil
}

// streamResponse copies the origin's bytes to client chunk by chunk until the
// origin closes.
func (h *httpHandler) streamResponse(ctx context.Context, client net.Conn, origin net.Conn, log *zap.Logger) bool {
	stop := context.AfterFunc(ctx, func() {
		_ = origin.Close()
	})
	defer stop()

	touch := idleToucher(h.cfg.IdleTimeout, client, origin)
	touch()

	n, err := copyChunks(client, origin, touch)
	if h.cfg.IdleTimeout > 0 {
		_ = client.SetDeadline(time.Time{})
	}
	if err != nil {
		log.Debug("response stream failed", zap.Int64("bytes", n), zap.Error(err))
		return false
	}

	log.Debug("response forwarded", zap.Int64("bytes", n))
	return true
}

// fail writes the error response matching err.
func (h *httpHandler) fail(client net.Conn, log *zap.Logger, err error) {
	code := statusFor(err)
	h.cfg.Metrics.Error(code)
	log.Debug("rejecting request", zap.Int("status", code), zap.Error(err))
	if werr := writeError(client, code); werr != nil {
		log.Debug("writing error response failed", zap.Error(werr))
	}
}
