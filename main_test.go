package main

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/die-net/gatekeep/internal/socks5"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:15:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 15 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "45:15", wantErr: true},
		{in: "0:15:3", wantErr: true},
		{in: "a:b:c", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTCPKeepAlive(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSOCKS5Auth(t *testing.T) {
	auth, err := parseSOCKS5Auth("")
	require.NoError(t, err)
	require.Equal(t, socks5.Auth{}, auth)

	auth, err = parseSOCKS5Auth("user:p:ss")
	require.NoError(t, err)
	require.Equal(t, socks5.Auth{Username: "user", Password: "p:ss"}, auth)

	_, err = parseSOCKS5Auth("nopassword")
	require.Error(t, err)
	_, err = parseSOCKS5Auth(":pass")
	require.Error(t, err)
}
