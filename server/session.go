// server/session.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/openfsd/openfsd/client"
	"github.com/openfsd/openfsd/fsd"
	"github.com/openfsd/openfsd/log"
	"github.com/openfsd/openfsd/plugin"
)

// A client that sends nothing for this long is presumed gone; the
// historical value is 800 seconds, not a round 15 minutes.
const idleTimeout = 800 * time.Second

// session owns one TCP connection from accept to cleanup. All protocol
// lines from the connection are handled on the session's goroutine, so
// handlers never race each other; only broadcasts from other sessions
// touch the connection concurrently, through the locked transport.
type session struct {
	srv *Server
	nc  net.Conn
	tr  client.Transport
	lg  *log.Logger
	ctx context.Context

	client *client.Client

	// departed is set once the client has been removed from the
	// registry and announced, so disconnect cleanup doesn't announce
	// twice.
	departed bool
}

func (s *session) run(ctx context.Context) {
	s.ctx = ctx
	defer s.cleanup()

	rd := bufio.NewReader(s.nc)
	for {
		s.nc.SetReadDeadline(time.Now().Add(idleTimeout))
		line, err := rd.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				s.handleLine(line)
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.tr.WriteLine([]byte("# Timeout"))
				s.lg.Infof("%s: idle timeout", s.describe())
			}
			return
		}
	}
}

func (s *session) describe() string {
	if s.client != nil {
		return s.client.Callsign
	}
	return s.tr.RemoteAddr()
}

// protoError pairs a wire error with the environment string echoed in
// the $ER packet.
type protoError struct {
	fsd.Error
	env string
}

func perr(e fsd.Error, env string) *protoError {
	return &protoError{Error: e, env: env}
}

// handleLine disposes of one protocol line: plugins first, then the
// built-in handler table. The audit event fires exactly once per line no
// matter which path the line took.
func (s *session) handleLine(line []byte) {
	handled, result := s.srv.plugins.LineReceived(s.client, line)
	head, fields, ok := fsd.BreakPacket(line)

	res := plugin.PacketResult{
		HandledByPlugin: handled,
		PacketOK:        ok,
		HasResult:       result != nil,
	}

	var ferr *protoError
	switch {
	case handled:
		if result != nil {
			s.tr.WriteLine(result)
		}
		res.Success = true
	case !ok:
		ferr = perr(fsd.ErrSyntax, fields[0])
	default:
		ferr = s.dispatch(head, fields, line)
		res.Success = ferr == nil
	}

	s.srv.plugins.AuditLine(s.client, line, res)

	if ferr != nil {
		s.sendError(ferr)
	}
}

func (s *session) sendError(e *protoError) {
	callsign := ""
	if s.client != nil {
		callsign = s.client.Callsign
	}
	s.tr.WriteLine(e.Packet(callsign, e.env))
	if e.Fatal {
		s.tr.Close()
	}
}

// dispatch validates arity and packet source against the handler table
// before running the handler proper.
func (s *session) dispatch(head string, fields []string, line []byte) *protoError {
	ent, ok := handlers[head]
	if !ok {
		return perr(fsd.ErrSyntax, head)
	}
	if len(fields) < ent.minFields {
		return perr(fsd.ErrSyntax, head)
	}
	if ent.srcField >= 0 {
		// Packets that need a login are dropped silently before one;
		// only a logged-in client lying about its source is answered.
		if s.client == nil {
			return nil
		}
		if fields[ent.srcField] != s.client.Callsign {
			return perr(fsd.ErrSrcInvalid, fields[ent.srcField])
		}
	}
	return ent.fn(s, head, fields, line)
}

// cleanup announces a lost client to the rest of the network and fires
// the disconnect hooks. It is a no-op for sessions that never logged in
// or that already departed via an explicit remove packet.
func (s *session) cleanup() {
	s.tr.Close()
	s.srv.dropSession(s)

	if s.client == nil || s.departed {
		return
	}
	s.depart()
	s.lg.Infof("%s: connection lost", s.client.Callsign)
}

// depart removes the client from the registry and tells everyone else.
func (s *session) depart() {
	c := s.client
	head := fsd.CmdRemovePilot
	if c.Type == client.ATC {
		head = fsd.CmdRemoveATC
	}
	s.srv.registry.Broadcast(fsd.MakePacket(head, c.Callsign, c.CID), nil, c)
	s.srv.plugins.ClientDisconnected(c)
	s.srv.registry.Remove(c.Callsign)
	s.departed = true
}
