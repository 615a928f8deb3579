package proxy

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const defaultHTTPPort = 80

// Request is the part of a request head the proxy acts on.
type Request struct {
	Method  string
	Target  string
	Version string

	// Host and Port identify the origin: from the CONNECT target, or from
	// the Host header for other methods.
	Host string
	Port int

	// ContentLength is the declared body length, or -1 when the head has no
	// Content-Length.
	ContentLength int64
	// Chunked is set when the body is framed by Transfer-Encoding.
	Chunked bool

	// Raw is the head exactly as received, blank line included.
	Raw []byte
}

// IsConnect reports whether the request asks for a tunnel.
func (r *Request) IsConnect() bool {
	return r.Method == http.MethodConnect
}

// Address is the origin as host:port.
func (r *Request) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// readRequestHead reads from br up to and including the blank line ending a
// request head. Empty lines before the request line are skipped. It returns
// io.EOF if the peer closed before sending anything.
func readRequestHead(br *bufio.Reader, maxBytes int) ([]byte, error) {
	var head []byte
	// ReadSlice hands back long lines in pieces; only a piece starting a
	// line can be the terminating blank line.
	lineStart := true
	for {
		line, err := br.ReadSlice('\n')
		blank := lineStart && err == nil && isBlankLine(line)
		if len(head) == 0 && blank {
			continue
		}
		head = append(head, line...)
		if len(head) > maxBytes {
			return nil, ErrHeaderTooLarge
		}

		switch {
		case err == nil:
			if blank {
				return head, nil
			}
			lineStart = true
		case errors.Is(err, bufio.ErrBufferFull):
			lineStart = false
		case errors.Is(err, io.EOF):
			if len(head) == 0 {
				return nil, io.EOF
			}
			return nil, errTruncatedHead
		default:
			return nil, err
		}
	}
}

func isBlankLine(line []byte) bool {
	return len(line) == 1 && line[0] == '\n' || len(line) == 2 && line[0] == '\r' && line[1] == '\n'
}

// parseRequest extracts the request line and origin from a raw head.
func parseRequest(raw []byte) (*Request, error) {
	lines := strings.Split(strings.TrimRight(string(raw), "\r\n"), "\n")

	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return nil, errMalformedLine
	}

	req := &Request{
		Method:        fields[0],
		Target:        fields[1],
		ContentLength: -1,
		Raw:           raw,
	}
	if len(fields) > 2 {
		req.Version = fields[2]
	}

	var hostHeader string
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(name, "Host"):
			if hostHeader == "" {
				hostHeader = value
			}
		case strings.EqualFold(name, "Content-Length"):
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return nil, errContentLength
			}
			req.ContentLength = n
		case strings.EqualFold(name, "Transfer-Encoding"):
			if !strings.EqualFold(value, "identity") {
				req.Chunked = true
			}
		}
	}

	var err error
	if req.IsConnect() {
		req.Host, req.Port, err = splitConnectTarget(req.Target)
	} else {
		req.Host, req.Port, err = splitHostHeader(hostHeader)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// splitConnectTarget splits host:port on the last colon. The port is
// mandatory.
func splitConnectTarget(target string) (string, int, error) {
	i := strings.LastIndexByte(target, ':')
	if i < 0 {
		return "", 0, errConnectNoPort
	}
	port, err := parsePort(target[i+1:])
	if err != nil {
		return "", 0, err
	}
	host := trimBrackets(target[:i])
	if host == "" {
		return "", 0, errEmptyTargetHost
	}
	return host, port, nil
}

// splitHostHeader splits a Host header value, defaulting the port to 80.
func splitHostHeader(value string) (string, int, error) {
	if value == "" {
		return "", 0, ErrMissingHost
	}

	host, portStr := value, ""
	if strings.HasPrefix(value, "[") {
		if end := strings.IndexByte(value, ']'); end > 0 {
			host = value[:end+1]
			portStr, _ = strings.CutPrefix(value[end+1:], ":")
		}
	} else if i := strings.LastIndexByte(value, ':'); i >= 0 {
		host, portStr = value[:i], value[i+1:]
	}
	host = trimBrackets(host)
	if host == "" {
		return "", 0, ErrMissingHost
	}

	if portStr == "" {
		return host, defaultHTTPPort, nil
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, errInvalidPort
	}
	return port, nil
}

func trimBrackets(host string) string {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host[1 : len(host)-1]
	}
	return host
}
