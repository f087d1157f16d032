// plugin/plugin.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package plugin lets compiled-in extensions observe the server life
// cycle and intercept protocol lines before the built-in handlers see
// them. Plugins register at startup and are dispatched strictly in
// registration order.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfsd/openfsd/client"
	"github.com/openfsd/openfsd/log"
)

// APILevel is the dispatch contract version. A plugin built against a
// different level is rejected at registration rather than misbehaving
// at runtime.
const APILevel = 2

// Plugin is the mandatory surface. Event delivery is by optional
// interface: a plugin receives only the events it declares methods for.
type Plugin interface {
	Name() string
	APILevel() int
	Version() string
}

// Configurable plugins receive their subtree of the server configuration
// before any event fires.
type Configurable interface {
	Configure(cfg json.RawMessage) error
}

type Starter interface {
	BeforeStart(ctx context.Context) error
}

type Stopper interface {
	BeforeStop()
}

// ConnectionObserver fires when a TCP connection is accepted, before any
// protocol exchange.
type ConnectionObserver interface {
	ConnectionEstablished(remoteAddr string)
}

// ClientObserver fires when a login completes and the client record
// enters the registry.
type ClientObserver interface {
	ClientCreated(c *client.Client)
}

// LineHandler sees every protocol line before the built-in handlers. A
// handler that returns handled=true preempts both later plugins and the
// server's own handling; result, if non-nil, is written back to the
// client.
type LineHandler interface {
	LineReceived(c *client.Client, line []byte) (handled bool, result []byte)
}

// PacketResult summarizes how one protocol line was disposed of; it is
// delivered to auditors exactly once per line.
type PacketResult struct {
	HandledByPlugin bool
	Success         bool
	PacketOK        bool
	HasResult       bool
}

type Auditor interface {
	AuditLine(c *client.Client, line []byte, res PacketResult)
}

type DisconnectObserver interface {
	ClientDisconnected(c *client.Client)
}

///////////////////////////////////////////////////////////////////////////
// Dispatcher

// Dispatcher fans server events out to the registered plugins. A panic
// in a plugin is logged and swallowed; an extension must not be able to
// take the server down.
type Dispatcher struct {
	plugins []Plugin
	lg      *log.Logger
}

func NewDispatcher(lg *log.Logger) *Dispatcher {
	return &Dispatcher{lg: lg}
}

// Register adds p to the dispatch order after checking its API level and
// handing it its configuration subtree.
func (d *Dispatcher) Register(p Plugin, cfg json.RawMessage) error {
	if p.APILevel() != APILevel {
		return fmt.Errorf("plugin %s: API level %d, want %d", p.Name(), p.APILevel(), APILevel)
	}
	if c, ok := p.(Configurable); ok {
		if err := c.Configure(cfg); err != nil {
			return fmt.Errorf("plugin %s: configure: %w", p.Name(), err)
		}
	}
	d.plugins = append(d.plugins, p)
	d.lg.Infof("plugin %s %s registered", p.Name(), p.Version())
	return nil
}

func (d *Dispatcher) Plugins() []Plugin {
	return d.plugins
}

func (d *Dispatcher) safely(p Plugin, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.lg.Errorf("plugin %s: panic in %s: %v", p.Name(), event, r)
		}
	}()
	fn()
}

// BeforeStart runs every Starter; a returned error aborts server
// startup, since a plugin that can't initialize was asked for by the
// operator.
func (d *Dispatcher) BeforeStart(ctx context.Context) error {
	for _, p := range d.plugins {
		s, ok := p.(Starter)
		if !ok {
			continue
		}
		var err error
		d.safely(p, "BeforeStart", func() { err = s.BeforeStart(ctx) })
		if err != nil {
			return fmt.Errorf("plugin %s: start: %w", p.Name(), err)
		}
	}
	return nil
}

func (d *Dispatcher) BeforeStop() {
	for _, p := range d.plugins {
		if s, ok := p.(Stopper); ok {
			d.safely(p, "BeforeStop", s.BeforeStop)
		}
	}
}

func (d *Dispatcher) ConnectionEstablished(remoteAddr string) {
	for _, p := range d.plugins {
		if o, ok := p.(ConnectionObserver); ok {
			d.safely(p, "ConnectionEstablished", func() { o.ConnectionEstablished(remoteAddr) })
		}
	}
}

func (d *Dispatcher) ClientCreated(c *client.Client) {
	for _, p := range d.plugins {
		if o, ok := p.(ClientObserver); ok {
			d.safely(p, "ClientCreated", func() { o.ClientCreated(c) })
		}
	}
}

// LineReceived offers the line to each LineHandler in order; the first
// to claim it wins. A handler that panics is treated as not having
// claimed the line.
func (d *Dispatcher) LineReceived(c *client.Client, line []byte) (handled bool, result []byte) {
	for _, p := range d.plugins {
		h, ok := p.(LineHandler)
		if !ok {
			continue
		}
		var claimed bool
		var res []byte
		d.safely(p, "LineReceived", func() { claimed, res = h.LineReceived(c, line) })
		if claimed {
			return true, res
		}
	}
	return false, nil
}

func (d *Dispatcher) AuditLine(c *client.Client, line []byte, res PacketResult) {
	for _, p := range d.plugins {
		if a, ok := p.(Auditor); ok {
			d.safely(p, "AuditLine", func() { a.AuditLine(c, line, res) })
		}
	}
}

func (d *Dispatcher) ClientDisconnected(c *client.Client) {
	for _, p := range d.plugins {
		if o, ok := p.(DisconnectObserver); ok {
			d.safely(p, "ClientDisconnected", func() { o.ClientDisconnected(c) })
		}
	}
}
