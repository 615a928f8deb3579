package socks5

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				if err := ServerNegotiate(serverConn, tt.auth); err != nil {
					return err
				}

				req, err := ServerReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return fmt.Errorf("unexpected command: %d", req.Cmd)
				}
				if req.Address != "example.com:443" {
					return fmt.Errorf("unexpected address: %s", req.Address)
				}

				return WriteSuccessReply(serverConn, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
			})

			if err := ClientDial(clientConn, tt.auth, "example.com:443"); err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientDialFailureReply(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if err := ServerNegotiate(serverConn, Auth{}); err != nil {
			return err
		}
		req, err := ServerReadRequest(serverConn)
		if err != nil {
			return err
		}
		return WriteFailureReply(serverConn, RepNotAllowed, req.Atyp)
	})

	err := ClientDial(clientConn, Auth{}, "127.0.0.1:80")
	var repErr *ReplyError
	if !errors.As(err, &repErr) {
		t.Fatalf("expected *ReplyError, got %v", err)
	}
	if repErr.Rep != RepNotAllowed {
		t.Fatalf("expected rep %#x got %#x", RepNotAllowed, repErr.Rep)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestServerRejectsWrongPassword(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		return ServerNegotiate(serverConn, Auth{Username: "user", Password: "pass"})
	})

	if err := ClientNegotiate(clientConn, Auth{Username: "user", Password: "wrong"}); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("client: expected ErrAuthFailed, got %v", err)
	}
	if err := g.Wait(); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("server: expected ErrAuthFailed, got %v", err)
	}
}

func TestServerRequiresCredentials(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		return ServerNegotiate(serverConn, Auth{Username: "user", Password: "pass"})
	})

	if err := ClientNegotiate(clientConn, Auth{}); !errors.Is(err, ErrNoAcceptableMethod) {
		t.Fatalf("client: expected ErrNoAcceptableMethod, got %v", err)
	}
	if err := g.Wait(); !errors.Is(err, ErrNoAcceptableMethod) {
		t.Fatalf("server: expected ErrNoAcceptableMethod, got %v", err)
	}
}

func TestAuthMatches(t *testing.T) {
	a := Auth{Username: "user", Password: "pass"}
	if !a.matches([]byte("user"), []byte("pass")) {
		t.Fatal("expected match")
	}
	for _, c := range [][2]string{{"user", "pas"}, {"usr", "pass"}, {"", ""}} {
		if a.matches([]byte(c[0]), []byte(c[1])) {
			t.Fatalf("unexpected match for %q", c)
		}
	}
}
