// Package endpoint holds the candidate NIS nodes and the active one.
package endpoint

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"nem-cosigner/internal/domain"
)

// ErrNoAlternative is returned by PickDifferent when no candidate has a
// host different from the current one.
var ErrNoAlternative = errors.New("no alternative endpoint configured")

// ErrUnknownEndpoint is returned by SetCurrent for endpoints outside the candidate list.
var ErrUnknownEndpoint = errors.New("endpoint not in candidate list")

// maxPickAttempts bounds random selection before the deterministic scan.
const maxPickAttempts = 16

// Registry owns the candidate list and the active endpoint.
// The active endpoint is always one of the candidates.
type Registry struct {
	mu         sync.RWMutex
	candidates []domain.Endpoint
	current    domain.Endpoint
	intn       func(n int) int
}

// Option configures Registry.
type Option func(*Registry)

// WithRand sets the index source used by PickDifferent. Used by tests.
func WithRand(intn func(n int) int) Option {
	return func(r *Registry) {
		r.intn = intn
	}
}

// NewRegistry creates a registry over candidates. Duplicate host:port
// entries are dropped, order is kept, and the first candidate becomes current.
func NewRegistry(candidates []domain.Endpoint, opts ...Option) (*Registry, error) {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.Endpoint, 0, len(candidates))
	for _, c := range candidates {
		if c.Host == "" {
			return nil, fmt.Errorf("endpoint with empty host")
		}
		key := c.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	r := &Registry{
		candidates: unique,
		current:    unique[0],
		intn:       rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Current returns the active endpoint.
func (r *Registry) Current() domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Candidates returns a copy of the candidate list.
func (r *Registry) Candidates() []domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Endpoint, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// DistinctHosts returns the number of distinct candidate hosts.
func (r *Registry) DistinctHosts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make(map[string]struct{}, len(r.candidates))
	for _, c := range r.candidates {
		hosts[c.Host] = struct{}{}
	}
	return len(hosts)
}

// PickDifferent selects a candidate uniformly at random among those whose
// host differs from the current host. It does not change the current endpoint.
func (r *Registry) PickDifferent() (domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.candidates)
	for i := 0; i < maxPickAttempts; i++ {
		c := r.candidates[r.intn(n)]
		if c.Host != r.current.Host {
			return c, nil
		}
	}

	// Random picks kept hitting the current host; scan from a random offset.
	start := r.intn(n)
	for i := 0; i < n; i++ {
		c := r.candidates[(start+i)%n]
		if c.Host != r.current.Host {
			return c, nil
		}
	}
	return domain.Endpoint{}, ErrNoAlternative
}

// SetCurrent replaces the active endpoint.
func (r *Registry) SetCurrent(e domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.candidates {
		if c == e {
			r.current = e
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEndpoint, e)
}
