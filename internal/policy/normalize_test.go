package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "example.com"},
		{in: "http://example.com/path", want: "example.com"},
		{in: "https://example.com:443/", want: "example.com"},
		{in: "www.example.com", want: "example.com"},
		{in: "http://www.example.com:8080/a/b?c=d", want: "example.com"},
		{in: "WWW.Example.COM", want: "example.com"},
		{in: "example.com.", want: "example.com"},
		{in: "  example.com  ", want: "example.com"},
		{in: "sub.example.com", want: "sub.example.com"},
		{in: "127.0.0.1:80", want: "127.0.0.1"},
		{in: "[::1]:8080", want: "::1"},
		{in: "bücher.de", want: "xn--bcher-kva.de"},
		{in: "my_host.local", want: "my_host.local"},
		{in: "wwwexample.com", want: "wwwexample.com"},
		{in: "http://user@blocked.com/", want: "blocked.com"},
		{in: "https://user:p@ss@www.blocked.com:8443/x", want: "blocked.com"},
		{in: "http://example.com/login@other.com", want: "example.com"},
		{in: "", want: ""},
		{in: "http://", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
