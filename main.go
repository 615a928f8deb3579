package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/gatekeep/internal/admin"
	"github.com/die-net/gatekeep/internal/dialer"
	"github.com/die-net/gatekeep/internal/logging"
	"github.com/die-net/gatekeep/internal/metrics"
	"github.com/die-net/gatekeep/internal/policy"
	"github.com/die-net/gatekeep/internal/proxy"
	"github.com/die-net/gatekeep/internal/socks5"
)

const logTailLines = 1000

type proxyListener struct {
	srv *proxy.Server
	ln  net.Listener
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen       = pflag.String("listen", "127.0.0.1:8080", "HTTP proxy listen address")
		socksListen  = pflag.String("socks5-listen", "", "SOCKS5 proxy listen address (e.g. 127.0.0.1:1080). Empty disables.")
		socksAuth    = pflag.String("socks5-auth", "", "Require SOCKS5 clients to authenticate as user:pass. Empty allows anonymous clients.")
		adminListen  = pflag.String("admin-listen", "", "Admin dashboard and API listen address (e.g. 127.0.0.1:8081). Empty disables.")
		debugListen  = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		upstream     = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")
		blacklist    = pflag.StringArray("blacklist", nil, "Domain to block (repeatable)")
		blockEnabled = pflag.Bool("blacklist-enabled", true, "Enforce the blacklist")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for reading a request head or SOCKS5 handshake. 0 disables.")
		idleTimeout        = pflag.Duration("idle-timeout", 0, "Close relays with no traffic in either direction for this long. 0 disables.")
		acceptPoll         = pflag.Duration("accept-poll", proxy.DefaultAcceptPollInterval, "How often the accept loop checks for shutdown")
		maxHeaderBytes     = pflag.Int("max-header-bytes", proxy.DefaultMaxHeaderBytes, "Maximum size of a request head")
		shutdownTimeout    = pflag.Duration("shutdown-timeout", 0, "How long shutdown waits for active connections before closing them. 0 waits forever.")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

		logLevel = pflag.String("log-level", "info", "Minimum log level: debug, info, warning, error")
		logFile  = pflag.String("log-file", "", "Also append log lines to this file")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}
	auth, err := parseSOCKS5Auth(*socksAuth)
	if err != nil {
		return fmt.Errorf("invalid --socks5-auth: %w", err)
	}

	tail := logging.NewTail(logTailLines)
	logger, closeLog, err := logging.New(logging.Config{Level: *logLevel, File: *logFile}, tail)
	if err != nil {
		return err
	}
	defer closeLog()
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pol := policy.New(logger.Named("policy"), *blockEnabled)
	for _, entry := range *blacklist {
		pol.Add(entry)
	}

	up, err := dialer.ParseUpstream(*upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}
	d, err := dialer.New(dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		Logger:             logger.Named("dialer"),
	}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}
	logger.Info("forwarding", zap.Stringer("upstream", up))

	cfg := proxy.Config{
		Dialer:             d,
		Policy:             pol,
		Logger:             logger,
		Metrics:            metrics.NewProxy(reg),
		MaxHeaderBytes:     *maxHeaderBytes,
		AcceptPollInterval: *acceptPoll,
		NegotiationTimeout: *negotiationTimeout,
		IdleTimeout:        *idleTimeout,
		KeepAlive:          ka,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Bind everything before serving anything so a bad address fails startup.
	httpLn, err := proxy.ListenTCP("tcp", *listen, ka)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	servers := []proxyListener{{proxy.NewHTTPProxyServer(cfg), httpLn}}

	if *socksListen != "" {
		ln, err := proxy.ListenTCP("tcp", *socksListen, ka)
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("socks5 listen: %w", err)
		}
		servers = append(servers, proxyListener{proxy.NewSOCKS5Server(cfg, auth), ln})
	}

	var httpServers []*http.Server
	var httpListeners []net.Listener
	closeAll := func() {
		for _, s := range servers {
			_ = s.ln.Close()
		}
		for _, ln := range httpListeners {
			_ = ln.Close()
		}
	}

	if *adminListen != "" {
		ln, err := listenHTTP(ctx, *adminListen, ka)
		if err != nil {
			closeAll()
			return fmt.Errorf("admin listen: %w", err)
		}
		httpListeners = append(httpListeners, ln)
		httpServers = append(httpServers, &http.Server{
			Handler:           admin.NewHandler(admin.Options{Policy: pol, Logs: tail, Gatherer: reg, Logger: logger}),
			ReadHeaderTimeout: *negotiationTimeout,
		})
		logger.Info("admin listening", zap.String("addr", ln.Addr().String()))
	}

	if *debugListen != "" {
		ln, err := listenHTTP(ctx, *debugListen, ka)
		if err != nil {
			closeAll()
			return fmt.Errorf("debug listen: %w", err)
		}
		httpListeners = append(httpListeners, ln)
		httpServers = append(httpServers, &http.Server{Handler: http.DefaultServeMux}) //nolint:gosec // Not concerned about timeouts on debug port.
		logger.Info("debug listening", zap.String("addr", ln.Addr().String()))
	}

	for _, s := range servers {
		g.Go(func() error {
			if err := s.srv.Serve(s.ln); !errors.Is(err, proxy.ErrServerClosed) {
				return fmt.Errorf("proxy serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := shutdownContext(*shutdownTimeout)
			defer cancel()
			if err := s.srv.Shutdown(sctx); err != nil {
				logger.Warn("forced shutdown", zap.Error(err))
			}
			return nil
		})
	}

	for i, srv := range httpServers {
		ln := httpListeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := shutdownContext(*shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				_ = srv.Close()
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shut down")
	return err
}

func listenHTTP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: ka}
	return lc.Listen(ctx, "tcp", addr)
}

// shutdownContext bounds a graceful shutdown by timeout; zero means no bound.
func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func parseSOCKS5Auth(s string) (socks5.Auth, error) {
	if s == "" {
		return socks5.Auth{}, nil
	}
	user, pass, ok := strings.Cut(s, ":")
	if !ok || user == "" {
		return socks5.Auth{}, errors.New("expected user:pass")
	}
	return socks5.Auth{Username: user, Password: pass}, nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveInt(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveInt(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(keepIdle) * time.Second,
		Interval: time.Duration(keepIntvl) * time.Second,
		Count:    keepCnt,
	}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	for _, env := range []string{"ALL_PROXY", "all_proxy"} {
		if p := os.Getenv(env); p != "" {
			return p
		}
	}
	return "direct://"
}
