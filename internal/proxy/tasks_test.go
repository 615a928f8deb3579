package proxy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestTaskSetReap(t *testing.T) {
	ts := newTaskSet()

	release := make(chan struct{})
	c1, c2 := net.Pipe()
	defer c2.Close()

	ts.Go(own(c1), func() { <-release })
	if n := ts.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	if n := ts.Reap(); n != 0 {
		t.Fatalf("Reap = %d while running, want 0", n)
	}

	close(release)
	if err := ts.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := ts.Reap(); n != 1 {
		t.Fatalf("Reap = %d after finish, want 1", n)
	}
	if n := ts.Len(); n != 0 {
		t.Fatalf("Len = %d after reap, want 0", n)
	}
}

func TestTaskSetWaitDeadline(t *testing.T) {
	ts := newTaskSet()

	release := make(chan struct{})
	c1, c2 := net.Pipe()
	defer c2.Close()
	ts.Go(own(c1), func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ts.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait returned %v, want DeadlineExceeded", err)
	}

	close(release)
	if err := ts.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestTaskSetCloseAll(t *testing.T) {
	ts := newTaskSet()

	c1, c2 := net.Pipe()
	defer c2.Close()
	conn := own(c1)

	readErr := make(chan error, 1)
	ts.Go(conn, func() {
		_, err := conn.Read(make([]byte, 1))
		readErr <- err
	})

	ts.CloseAll()
	if err := ts.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := <-readErr; err == nil {
		t.Fatal("expected the read to fail once the connection was closed")
	}
	// Closing again through the owner is harmless.
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
