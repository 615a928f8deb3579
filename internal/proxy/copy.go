package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Relay copies bytes between left and right in both directions until either
// side reaches end-of-stream or fails, then closes both. The first transport
// error, if any, is returned; a clean close by either peer returns nil.
//
// Canceling ctx closes both connections. If idleTimeout is positive, the
// relay also ends once no bytes have moved in either direction for that long.
func Relay(ctx context.Context, left, right net.Conn, idleTimeout time.Duration) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	touch := idleToucher(idleTimeout, left, right)
	touch()

	pump := func(dst, src net.Conn) error {
		_, err := copyChunks(dst, src, touch)
		// Either direction finishing ends the relay.
		closeBoth()
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return pump(right, left) })
	g.Go(func() error { return pump(left, right) })

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// copyChunks copies src to dst one bounded buffer at a time, calling touch
// after every successful read. Unlike io.Copy it never hands the copy off to
// ReaderFrom/WriterTo, so every chunk passes through touch.
func copyChunks(dst io.Writer, src io.Reader, touch func()) (int64, error) {
	bufp := getBuffer()
	defer putBuffer(bufp)
	buf := *bufp

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			touch()
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}

// idleToucher returns a func that pushes the deadline of every conn out by
// timeout. It is a no-op when timeout is not positive.
func idleToucher(timeout time.Duration, conns ...net.Conn) func() {
	if timeout <= 0 {
		return func() {}
	}
	return func() {
		dl := time.Now().Add(timeout)
		for _, c := range conns {
			_ = c.SetDeadline(dl)
		}
	}
}
