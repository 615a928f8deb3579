package testutil

import (
	"context"
	"net"
	"sync"
)

// RecordingDialer records every address it is asked to dial. If Err is set
// it fails every dial with Err; otherwise it dials Target when set, or the
// requested address.
type RecordingDialer struct {
	Target string
	Err    error

	mu    sync.Mutex
	calls []string
}

func (d *RecordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, address)
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.Target != "" {
		address = d.Target
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

// Calls returns the addresses dialed so far.
func (d *RecordingDialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
