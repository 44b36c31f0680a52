// Package server defines shared connection types, hub events and utility
// helpers that are reused across client and hub logic.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// Version is reported in the registration burst.
const Version = "1.0.0"

// Phase is the registration state of a connection.
type Phase int

const (
	// PhaseAwaitingPassword accepts only PASS and QUIT. It is entered only
	// when the server requires a connection password.
	PhaseAwaitingPassword Phase = iota
	// PhaseUnregistered accepts NICK, USER and QUIT until both are known.
	PhaseUnregistered
	// PhaseRegistered accepts the full command set.
	PhaseRegistered
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPassword:
		return "awaiting-password"
	case PhaseUnregistered:
		return "unregistered"
	case PhaseRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// Transport kinds, used in logs.
const (
	KindTCP       = "tcp"
	KindTLS       = "tls"
	KindWebSocket = "websocket"
)

// transport is the byte stream behind a client. net.Conn satisfies it; the
// websocket gateway adapts a *websocket.Conn to it.
type transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetWriteDeadline(t time.Time) error
}

// inboundData carries bytes read by a client's read pump to the hub.
type inboundData struct {
	client *Client
	data   []byte
}

// hangup asks the hub to disconnect a client with the given quit message.
type hangup struct {
	client *Client
	reason string
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
