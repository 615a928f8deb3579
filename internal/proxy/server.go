package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = errors.New("proxy: server closed")

// connHandler owns conn for the duration of the call. conn is closed by the
// server once the handler returns.
type connHandler func(ctx context.Context, conn net.Conn)

// Server accepts connections and runs one handler goroutine per connection.
type Server struct {
	name   string
	cfg    Config
	logger *zap.Logger
	handle connHandler

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	tasks   *taskSet

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	serving  sync.WaitGroup
}

func newServer(name string, cfg Config, handle connHandler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		name:   name,
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("listener", name)),
		handle: handle,
		ctx:    ctx,
		cancel: cancel,
		tasks:  newTaskSet(),
	}
}

// ListenAndServe binds addr and serves it until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := ListenTCP("tcp", addr, s.cfg.KeepAlive)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown or Close is called, and then
// returns ErrServerClosed. Serve takes ownership of ln.
//
// Each Accept waits at most AcceptPollInterval (when ln supports deadlines)
// so the loop notices a shutdown promptly even if closing the listener does
// not unblock it.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("proxy: server already serving")
	}
	s.listener = ln
	s.serving.Add(1)
	s.running.Store(true)
	s.mu.Unlock()
	defer s.serving.Done()

	s.logger.Info("listening", zap.Stringer("addr", ln.Addr()))

	dl, _ := ln.(deadlineListener)
	var backoff time.Duration

	for s.running.Load() {
		s.Reap()

		if dl != nil {
			_ = dl.SetDeadline(time.Now().Add(s.cfg.AcceptPollInterval))
		}

		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				s.running.Store(false)
				return fmt.Errorf("accept: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, time.Second)
			}
			s.logger.Error("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.running.Load() {
			_ = c.Close()
			break
		}
		s.spawn(c)
	}

	return ErrServerClosed
}

func (s *Server) spawn(c net.Conn) {
	conn := own(c)
	s.cfg.Metrics.ConnOpened()
	s.tasks.Go(conn, func() {
		defer s.cfg.Metrics.ConnClosed()
		defer conn.Close()
		s.handle(s.ctx, conn)
	})
}

// Running reports whether the server is accepting new connections. Handlers
// may still be active after it turns false.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Tracked returns the number of handler goroutines being tracked, including
// finished ones that have not been reaped yet.
func (s *Server) Tracked() int {
	return s.tasks.Len()
}

// Reap stops tracking finished handlers and returns how many were dropped.
// The accept loop calls it on every iteration.
func (s *Server) Reap() int {
	return s.tasks.Reap()
}

// Shutdown stops accepting connections, closes the listener and waits for
// every in-flight handler to finish on its own.
//
// If ctx ends first, the remaining client connections are closed, Shutdown
// waits for their handlers to unwind and returns ctx.Err().
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopAccepting()

	err := s.tasks.Wait(ctx)
	if err != nil {
		s.logger.Warn("shutdown deadline reached, closing active connections", zap.Int("active", s.tasks.Len()))
		s.forceClose()
		_ = s.tasks.Wait(context.Background())
	}
	s.cancel()

	s.logger.Info("stopped")
	return err
}

// Close stops accepting connections and immediately closes every active
// connection, then waits for the handlers to return.
func (s *Server) Close() error {
	s.stopAccepting()
	s.forceClose()
	return s.tasks.Wait(context.Background())
}

func (s *Server) stopAccepting() {
	s.running.Store(false)

	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	// No spawn can race with the waits below once the accept loop is gone.
	s.serving.Wait()
}

func (s *Server) forceClose() {
	s.cancel()
	s.tasks.CloseAll()
}
