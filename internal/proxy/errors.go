package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

var (
	// ErrBlocked reports a destination refused by the blacklist.
	ErrBlocked = errors.New("blocked by policy")

	ErrMissingHost     = &ParseError{Reason: "no Host header found"}
	ErrHeaderTooLarge  = &ParseError{Reason: "request head too large"}
	errMalformedLine   = &ParseError{Reason: "malformed request line"}
	errConnectNoPort   = &ParseError{Reason: "CONNECT target missing port"}
	errInvalidPort     = &ParseError{Reason: "invalid port"}
	errTruncatedHead   = &ParseError{Reason: "request head truncated"}
	errContentLength   = &ParseError{Reason: "invalid Content-Length"}
	errEmptyTargetHost = &ParseError{Reason: "empty target host"}
)

// ParseError reports a request head the proxy cannot act on.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "bad request: " + e.Reason
}

// statusFor maps a handler error to the status code sent to the client.
func statusFor(err error) int {
	var parseErr *ParseError

	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrBlocked):
		return http.StatusForbidden
	default:
		// dialer.ResolutionError, dialer.ConnectError and failures writing
		// the request to the origin.
		return http.StatusBadGateway
	}
}

// writeError writes a minimal text/plain response whose body is the status
// text itself, e.g. "403 Forbidden".
func writeError(w io.Writer, code int) error {
	status := strconv.Itoa(code) + " " + http.StatusText(code)
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintf(bw, "HTTP/1.1 %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s", status, len(status), status)
	return bw.Flush()
}
