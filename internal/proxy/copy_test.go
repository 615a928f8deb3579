package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

// relayFixture wires client <-> left, Relay(left, right), right <-> origin.
type relayFixture struct {
	client, origin net.Conn
	done           chan error
}

func startRelay(t *testing.T, ctx context.Context, idle time.Duration) *relayFixture {
	t.Helper()

	client, left := net.Pipe()
	right, origin := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = origin.Close()
	})

	f := &relayFixture{client: client, origin: origin, done: make(chan error, 1)}
	go func() { f.done <- Relay(ctx, left, right, idle) }()
	return f
}

func (f *relayFixture) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish")
		return nil
	}
}

func TestRelayBothDirections(t *testing.T) {
	f := startRelay(t, context.Background(), 0)

	go func() { _, _ = f.client.Write([]byte("X")) }()
	if got := readExactly(t, f.origin, 1); got != "X" {
		t.Fatalf("origin got %q", got)
	}
	go func() { _, _ = f.origin.Write([]byte("Y")) }()
	if got := readExactly(t, f.client, 1); got != "Y" {
		t.Fatalf("client got %q", got)
	}

	_ = f.origin.Close()
	if err := f.wait(t); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	// Closing one side closes the other.
	if _, err := f.client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("client read after relay: %v", err)
	}
}

func TestRelayClientClose(t *testing.T) {
	f := startRelay(t, context.Background(), 0)

	_ = f.client.Close()
	if err := f.wait(t); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if _, err := f.origin.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("origin read after relay: %v", err)
	}
}

func TestRelayContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := startRelay(t, ctx, 0)

	cancel()
	if err := f.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Relay returned %v, want context.Canceled", err)
	}
}

func TestRelayIdleTimeout(t *testing.T) {
	f := startRelay(t, context.Background(), 50*time.Millisecond)

	if err := f.wait(t); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Relay returned %v, want a deadline error", err)
	}
}

type countingWriter struct {
	writes int
	data   []byte
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	w.data = append(w.data, p...)
	return len(p), nil
}

func TestCopyChunksTouchesEveryRead(t *testing.T) {
	src := io.MultiReader(
		&chunkReader{s: "abc"},
		&chunkReader{s: "defg"},
	)
	var touched int
	w := &countingWriter{}

	n, err := copyChunks(w, src, func() { touched++ })
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 || string(w.data) != "abcdefg" {
		t.Fatalf("copied %d bytes %q", n, w.data)
	}
	if touched != 2 || w.writes != 2 {
		t.Fatalf("touched %d times, %d writes; want 2 and 2", touched, w.writes)
	}
}

// chunkReader returns s in a single Read.
type chunkReader struct {
	s    string
	done bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.s), nil
}
