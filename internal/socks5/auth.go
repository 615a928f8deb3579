package socks5

import (
	"crypto/subtle"
	"errors"

	txsocks5 "github.com/txthinking/socks5"
)

// methodNoAcceptable is the RFC 1928 method value meaning none of the
// client's methods is acceptable.
const methodNoAcceptable byte = 0xff

var (
	// ErrNoAcceptableMethod is returned when the peers share no
	// authentication method.
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable authentication method")
	// ErrAuthFailed is returned when username/password authentication is
	// rejected.
	ErrAuthFailed = errors.New("socks5: authentication failed")
)

// Auth configures optional username/password authentication. The zero value
// means anonymous.
type Auth struct {
	Username string
	Password string
}

func (a Auth) required() bool {
	return a.Username != ""
}

// method is the single method a server configured with a offers.
func (a Auth) method() byte {
	if a.required() {
		return txsocks5.MethodUsernamePassword
	}
	return txsocks5.MethodNone
}

// methods lists what a client configured with a offers. A client with
// credentials still offers anonymous access.
func (a Auth) methods() []byte {
	if a.required() {
		return []byte{txsocks5.MethodNone, txsocks5.MethodUsernamePassword}
	}
	return []byte{txsocks5.MethodNone}
}

func (a Auth) matches(username, password []byte) bool {
	userOK := subtle.ConstantTimeCompare(username, []byte(a.Username)) == 1
	passOK := subtle.ConstantTimeCompare(password, []byte(a.Password)) == 1
	return userOK && passOK
}
