package config

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is one operating mode of the service.
type Capability string

// Capabilities.
const (
	// CapRead runs the push subscription and the fallback poller.
	CapRead Capability = "read"
	// CapSign lets the engine sign and broadcast. Without it candidates are verified only.
	CapSign Capability = "sign"
	// CapTip runs the height recorder and staleness monitor.
	CapTip Capability = "tip"
)

var knownCapabilities = []Capability{CapRead, CapSign, CapTip}

// Capabilities is a set of enabled capabilities.
type Capabilities map[Capability]struct{}

// ParseCapabilities parses a comma list such as "read,sign". "all" enables everything.
func ParseCapabilities(s string) (Capabilities, error) {
	caps := make(Capabilities)
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '+' }) {
		name := Capability(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, c := range knownCapabilities {
				caps[c] = struct{}{}
			}
			continue
		}
		if !isKnown(name) {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		caps[name] = struct{}{}
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("no capabilities in %q", s)
	}
	return caps, nil
}

// Has reports whether c is enabled.
func (cs Capabilities) Has(c Capability) bool {
	_, ok := cs[c]
	return ok
}

// String returns the enabled capabilities in a stable order.
func (cs Capabilities) String() string {
	names := make([]string, 0, len(cs))
	for c := range cs {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func isKnown(c Capability) bool {
	for _, k := range knownCapabilities {
		if k == c {
			return true
		}
	}
	return false
}
