// client/registry.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package client

import (
	"sync"

	"github.com/openfsd/openfsd/log"
)

// Registry is the directory of live clients, keyed by callsign. It is the
// one structure shared across connection workers: lookups and broadcast
// snapshots take the read lock, add/remove take the write lock.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	lg      *log.Logger
}

func NewRegistry(lg *log.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		lg:      lg,
	}
}

// Add registers a client; it returns false if the callsign is already
// live.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.Callsign]; ok {
		return false
	}
	r.clients[c.Callsign] = c
	return true
}

func (r *Registry) Remove(callsign string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, callsign)
}

func (r *Registry) Get(callsign string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[callsign]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the current set of clients. Broadcasts iterate the
// snapshot so that concurrent add/remove never trips them up; a client
// added mid-broadcast simply doesn't get that payload.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		s = append(s, c)
	}
	return s
}

// SendTo writes payload to the named client; it reports whether the
// callsign was live.
func (r *Registry) SendTo(callsign string, payload []byte) bool {
	c, ok := r.Get(callsign)
	if !ok {
		return false
	}
	if err := c.Transport.WriteLine(payload); err != nil {
		r.lg.Warnf("%s: write failed: %v", callsign, err)
	}
	return true
}

// Broadcast writes payload to every client other than from for which check
// passes, returning whether anyone received it. A nil check matches
// everyone.
func (r *Registry) Broadcast(payload []byte, check Checker, from *Client) bool {
	sent := false
	for _, c := range r.Snapshot() {
		if c == from {
			continue
		}
		if check != nil && !check(from, c) {
			continue
		}
		if err := c.Transport.WriteLine(payload); err != nil {
			r.lg.Warnf("%s: write failed: %v", c.Callsign, err)
			continue
		}
		sent = true
	}
	return sent
}
