// Package upstream implements the upstream resolver pool: an ordered,
// thread-safe list of resolver endpoints with round-robin and random
// selection, and source-address classification for the dispatcher.
//
// Grounded on mostfunkyduck-funkyd's upstream.go for the Go shape of an
// upstream endpoint, and on
// _examples/original_source/src/websocket/upstream_config.c
// (upstream_pool_load_from_file / upstream_pool_add_server) for the
// load-from-file and duplicate-rejection semantics.
package upstream

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
)

// DefaultPort is used when an endpoint is given without an explicit port.
const DefaultPort = 53

// ErrDuplicate is returned by Add when the address is already in the pool.
var ErrDuplicate = errors.New("upstream: address already in pool")

// ErrEmpty is returned by Next/Random when the pool has no endpoints.
var ErrEmpty = errors.New("upstream: pool is empty")

// Pool is a thread-safe, ordered set of upstream resolver endpoints.
type Pool struct {
	mu        sync.RWMutex
	endpoints []string
	seen      map[string]struct{}

	cursor atomic.Uint64
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{seen: make(map[string]struct{})}
}

// Add appends address to the pool, normalizing it to host:port form if
// it lacks a port. Duplicates are rejected with ErrDuplicate.
func (p *Pool) Add(address string) error {
	normalized, err := normalize(address)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.seen[normalized]; dup {
		return ErrDuplicate
	}
	p.seen[normalized] = struct{}{}
	p.endpoints = append(p.endpoints, normalized)
	return nil
}

// Reset clears the pool, used before a hot reload repopulates it from a
// changed upstream config file so stale endpoints don't linger.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = nil
	p.seen = make(map[string]struct{})
	p.cursor.Store(0)
}

// Next returns the next endpoint in round-robin order.
func (p *Pool) Next() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.endpoints)
	if n == 0 {
		return "", ErrEmpty
	}
	i := p.cursor.Add(1) - 1
	return p.endpoints[int(i%uint64(n))], nil
}

// Random returns an arbitrary endpoint, useful for cache-locality
// insensitive workloads: unlike Next it does not advance the
// round-robin cursor, so mixing Random and Next calls doesn't skew the
// round-robin sequence. Grounded on funkyd/mutex_server.go's
// math/rand-based resolver shuffle.
func (p *Pool) Random() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.endpoints)
	if n == 0 {
		return "", ErrEmpty
	}
	return p.endpoints[rand.Intn(n)], nil
}

// Contains reports whether address (in host:port form) names a known
// upstream, used by the dispatcher to classify an incoming datagram's
// source as an upstream reply rather than a client query.
func (p *Pool) Contains(address string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.seen[address]
	return ok
}

// Len returns the number of distinct endpoints currently loaded.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// Endpoints returns a snapshot copy of the pool's endpoint list, in
// round-robin order.
func (p *Pool) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

func normalize(address string) (string, error) {
	host, port, err := splitHostPort(address)
	if err != nil {
		return "", err
	}
	if port == "" {
		port = fmt.Sprintf("%d", DefaultPort)
	}
	return net.JoinHostPort(host, port), nil
}
