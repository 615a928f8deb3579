package testutil

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
)

// StartSingleAcceptServer runs handler on the first accepted connection. The
// returned func closes the listener and waits for handler to return.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}
	t.Cleanup(wait)

	return ln, wait
}

// StubOrigin is a one-shot HTTP origin: it reads one request head, writes a
// canned reply verbatim and closes the connection.
type StubOrigin struct {
	Listener net.Listener

	mu       sync.Mutex
	received []byte
	done     chan struct{}
}

func StartStubOrigin(t *testing.T, ctx context.Context, reply string) *StubOrigin {
	t.Helper()

	o := &StubOrigin{done: make(chan struct{})}
	o.Listener, _ = StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		defer close(o.done)

		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		body, _ := io.ReadAll(req.Body)

		o.mu.Lock()
		o.received = append([]byte(req.Method+" "+req.RequestURI+" "+req.Host+"\n"), body...)
		o.mu.Unlock()

		_, _ = io.WriteString(c, reply)
	})
	return o
}

// StartRawOrigin is like StartStubOrigin but records the request head
// exactly as it arrived on the wire, through the terminating blank line.
// Received returns those bytes untouched.
func StartRawOrigin(t *testing.T, ctx context.Context, reply string) *StubOrigin {
	t.Helper()

	o := &StubOrigin{done: make(chan struct{})}
	o.Listener, _ = StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		defer close(o.done)

		var head []byte
		br := bufio.NewReader(c)
		for {
			line, err := br.ReadBytes('\n')
			head = append(head, line...)
			if err != nil {
				return
			}
			if bytes.Equal(line, []byte("\r\n")) || bytes.Equal(line, []byte("\n")) {
				break
			}
		}

		o.mu.Lock()
		o.received = head
		o.mu.Unlock()

		_, _ = io.WriteString(c, reply)
	})
	return o
}

// Addr is the origin's host:port.
func (o *StubOrigin) Addr() string {
	return o.Listener.Addr().String()
}

// Received waits for the origin to finish and returns the request line
// summary ("METHOD URI HOST\n") followed by the request body.
func (o *StubOrigin) Received(ctx context.Context) []byte {
	select {
	case <-o.done:
	case <-ctx.Done():
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.received
}
