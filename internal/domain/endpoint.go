package domain

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultWSPort is the NIS websocket (SockJS/STOMP) port.
const DefaultWSPort = 7778

// Endpoint identifies a NIS node. Immutable value.
type Endpoint struct {
	Host   string // hostname or IP
	Port   int    // REST port (7890 on standard nodes)
	WSPort int    // push port; 0 means DefaultWSPort
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the REST base URL.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s", e.String())
}

// WSURL returns the SockJS base URL of the node's push endpoint.
func (e Endpoint) WSURL() string {
	port := e.WSPort
	if port == 0 {
		port = DefaultWSPort
	}
	return fmt.Sprintf("ws://%s/w/messages", net.JoinHostPort(e.Host, strconv.Itoa(port)))
}

// ParseEndpoint parses "host:port" or "host" (port defaults to defaultPort).
func ParseEndpoint(s string, defaultPort int) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port present
		if s == "" {
			return Endpoint{}, fmt.Errorf("empty endpoint")
		}
		return Endpoint{Host: s, Port: defaultPort}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint %q", s)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("empty host in endpoint %q", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}
