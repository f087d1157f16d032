// server/transport.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"net"
	"sync"

	"github.com/openfsd/openfsd/fsd"
)

// conn wraps a TCP connection as the transport a client record writes
// to. Packets from many sessions are interleaved onto one connection
// during broadcasts, so every write takes the mutex and carries its own
// CRLF framing.
type conn struct {
	nc net.Conn

	mu     sync.Mutex
	closed bool
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc}
}

func (c *conn) WriteLine(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}

	buf := make([]byte, 0, len(p)+2)
	buf = append(buf, p...)
	buf = append(buf, fsd.LineEnding...)
	_, err := c.nc.Write(buf)
	return err
}

func (c *conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.nc.Close()
	}
}

func (c *conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}
