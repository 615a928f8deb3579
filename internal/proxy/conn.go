package proxy

import (
	"bufio"
	"net"
	"sync"
)

// ownedConn closes the underlying connection exactly once no matter how many
// exit paths call Close.
type ownedConn struct {
	net.Conn
	once sync.Once
	err  error
}

func own(c net.Conn) *ownedConn {
	return &ownedConn{Conn: c}
}

func (c *ownedConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}

// bufferedConn reads through r first so bytes the client pipelined behind a
// request head are not lost when the connection switches to relaying.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
