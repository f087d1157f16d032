// server/server.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server accepts simulator connections and runs the FSD protocol
// over them: one session goroutine per connection, a shared client
// registry for broadcasts, and the weather and plugin subsystems behind
// them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/openfsd/openfsd/auth"
	"github.com/openfsd/openfsd/client"
	"github.com/openfsd/openfsd/config"
	"github.com/openfsd/openfsd/fsd"
	"github.com/openfsd/openfsd/log"
	"github.com/openfsd/openfsd/plugin"
	"github.com/openfsd/openfsd/rand"
	"github.com/openfsd/openfsd/wx"
)

// Heartbeats carry a small random wind delta to every client; the
// interval is inherited from the original daemon.
const heartbeatInterval = 70 * time.Second

type Server struct {
	cfg      *config.Config
	lg       *log.Logger
	registry *client.Registry
	store    auth.Store
	wx       *wx.Manager
	plugins  *plugin.Dispatcher
	rnd      rand.Rand

	motd      []string
	blacklist map[string]bool

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*session]struct{}
	stopping bool
}

func New(cfg *config.Config, store auth.Store, wxm *wx.Manager, plugins *plugin.Dispatcher, lg *log.Logger) (*Server, error) {
	motd, err := encodeMOTD(cfg.Client.MOTD, cfg.Client.MOTDEncoding)
	if err != nil {
		return nil, err
	}

	blacklist := make(map[string]bool)
	for _, addr := range cfg.Client.Blacklist {
		blacklist[addr] = true
	}

	return &Server{
		cfg:       cfg,
		lg:        lg,
		registry:  client.NewRegistry(lg),
		store:     store,
		wx:        wxm,
		plugins:   plugins,
		rnd:       rand.New(),
		motd:      motd,
		blacklist: blacklist,
		sessions:  make(map[*session]struct{}),
	}, nil
}

// encodeMOTD transcodes the configured MOTD lines into the charset
// legacy clients expect; the wire has no notion of UTF-8.
func encodeMOTD(lines []string, charset string) ([]string, error) {
	if charset == "" {
		return lines, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown motd encoding %q", charset)
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		encoded, err := enc.NewEncoder().String(line)
		if err != nil {
			return nil, fmt.Errorf("encode motd line %q: %w", line, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

func (s *Server) sendMOTD(c *client.Client) {
	for _, line := range s.motd {
		c.Transport.WriteLine(fsd.MakePacket(fsd.CmdMessage, "server", c.Callsign, line))
	}
}

// Run brings the server up and blocks until the context is canceled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.plugins.BeforeStart(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Client.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.lg.Infof("listening on %s", ln.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.wx.Run(ctx) })
	g.Go(func() error { return s.heartbeat(ctx) })
	g.Go(func() error { return s.acceptLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return ctx.Err()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		addr := nc.RemoteAddr().String()
		host, _, _ := net.SplitHostPort(addr)
		if s.blacklist[host] {
			s.lg.Infof("%s: blacklisted, dropping connection", addr)
			nc.Close()
			continue
		}

		s.plugins.ConnectionEstablished(addr)
		s.lg.Debugf("%s: connected", addr)

		sess := &session{
			srv: s,
			nc:  nc,
			tr:  newConn(nc),
			lg:  s.lg,
		}
		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
		go sess.run(ctx)
	}
}

func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// heartbeat broadcasts a #DL wind-delta packet so clients see the server
// is alive and their local winds drift a little.
func (s *Server) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			speed := s.rnd.Int31()%11 - 5
			dir := s.rnd.Int31()%21 - 10
			pkt := fsd.MakePacket(fsd.CmdWindDelta, fsd.ServerCallsign, "*",
				strconv.Itoa(int(speed)), strconv.Itoa(int(dir)))
			s.registry.Broadcast(pkt, nil, nil)
		}
	}
}

// shutdown stops accepting, lets plugins wind down, then drops every
// live session. Session cleanup takes care of the registry.
func (s *Server) shutdown() {
	s.mu.Lock()
	s.stopping = true
	ln := s.ln
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.plugins.BeforeStop()
	for _, sess := range sessions {
		sess.tr.Close()
	}
	s.lg.Info("server stopped")
}

// Registry exposes the live-client directory, mainly for plugins and
// tests.
func (s *Server) Registry() *client.Registry {
	return s.registry
}
