package nem

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrConnectionLost marks a dropped push transport.
var ErrConnectionLost = errors.New("lost connection")

// ErrNotConnected is returned when an operation needs a live transport.
var ErrNotConnected = errors.New("not connected")

// ErrClientClosed is returned after Close.
var ErrClientClosed = errors.New("client closed")

var lostConnectionPatterns = []string{
	"lost connection",
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"unexpected eof",
	"connection closed",
	"whoops! lost connection",
}

// IsConnectionLost classifies transport errors. Dropped connections are
// retried against the same endpoint; everything else goes to the owner.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range lostConnectionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
