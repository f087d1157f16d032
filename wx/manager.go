// wx/manager.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/openfsd/openfsd/log"
)

type Mode string

const (
	// ModeCron refreshes the whole cache on an interval and serves
	// queries from it.
	ModeCron Mode = "cron"
	// ModeOnce fetches each station on demand.
	ModeOnce Mode = "once"
)

type ManagerConfig struct {
	Mode                Mode
	Fallback            Mode // optional second chance when the primary mode comes up empty
	Fetchers            []string
	CronInterval        time.Duration
	SkipPreviousFetcher bool   // don't re-ask the fetcher that already failed us this query
	CaseSensitive       bool   // look stations up exactly as sent instead of upper-casing
	CacheFile           string // optional snapshot path, e.g. cache/metar.msgpack.zst
}

// Manager answers METAR queries by whatever combination of bulk cycle
// downloads and per-station fetches the configuration asks for. The
// cache is an immutable map swapped atomically on refresh so queries
// never take a lock.
type Manager struct {
	cfg      ManagerConfig
	fetchers []Fetcher
	lg       *log.Logger

	cache atomic.Pointer[map[string]*METAR]

	mu           sync.Mutex
	bulkBroken   map[string]bool // fetchers that raised ErrNotImplemented for FetchAll
	singleBroken map[string]bool // likewise for Fetch
	cacheSource  string          // fetcher that produced the current cache

	profiles *lru.Cache[string, *Profile]
}

// NewManager resolves the configured fetcher names against the available
// implementations. Unknown names and an empty chain are configuration
// errors; a bad config should stop the server at startup, not at the
// first weather request.
func NewManager(cfg ManagerConfig, available []Fetcher, lg *log.Logger) (*Manager, error) {
	switch cfg.Mode {
	case ModeCron, ModeOnce:
	default:
		return nil, fmt.Errorf("unknown metar mode %q", cfg.Mode)
	}
	switch cfg.Fallback {
	case "", ModeCron, ModeOnce:
	default:
		return nil, fmt.Errorf("unknown metar fallback mode %q", cfg.Fallback)
	}
	if cfg.Fallback == cfg.Mode {
		cfg.Fallback = ""
	}
	if cfg.CronInterval <= 0 {
		cfg.CronInterval = time.Hour
	}

	byName := make(map[string]Fetcher)
	for _, f := range available {
		byName[strings.ToUpper(f.Name())] = f
	}
	var fetchers []Fetcher
	for _, name := range cfg.Fetchers {
		f, ok := byName[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("unknown metar fetcher %q", name)
		}
		fetchers = append(fetchers, f)
	}
	if len(fetchers) == 0 {
		return nil, fmt.Errorf("no metar fetchers configured")
	}

	profiles, err := lru.New[string, *Profile](256)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		fetchers:     fetchers,
		lg:           lg,
		bulkBroken:   make(map[string]bool),
		singleBroken: make(map[string]bool),
		profiles:     profiles,
	}
	empty := make(map[string]*METAR)
	m.cache.Store(&empty)

	if cfg.CacheFile != "" {
		if err := m.loadSnapshot(); err != nil {
			lg.Warnf("metar: snapshot %s not loaded: %v", cfg.CacheFile, err)
		}
	}
	return m, nil
}

// Run drives the cron refresh until the context is canceled. In pure
// once mode there is nothing to drive and Run returns immediately.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.Mode != ModeCron && m.cfg.Fallback != ModeCron {
		return nil
	}

	m.refresh(ctx)

	ticker := time.NewTicker(m.cfg.CronInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// refresh walks the fetcher chain for a full cycle download and swaps
// the cache in on the first success.
func (m *Manager) refresh(ctx context.Context) {
	for _, f := range m.fetchers {
		m.mu.Lock()
		broken := m.bulkBroken[f.Name()]
		m.mu.Unlock()
		if broken {
			continue
		}

		metars, err := f.FetchAll(ctx)
		if errors.Is(err, ErrNotImplemented) {
			m.mu.Lock()
			m.bulkBroken[f.Name()] = true
			m.mu.Unlock()
			continue
		}
		if err != nil {
			m.lg.Warnf("metar: %s: cycle fetch failed: %v", f.Name(), err)
			continue
		}
		if len(metars) == 0 {
			continue
		}

		m.cache.Store(&metars)
		m.mu.Lock()
		m.cacheSource = f.Name()
		m.mu.Unlock()
		m.lg.Infof("metar: cache refreshed from %s, %d stations", f.Name(), len(metars))

		if m.cfg.CacheFile != "" {
			if err := m.saveSnapshot(metars); err != nil {
				m.lg.Warnf("metar: snapshot not saved: %v", err)
			}
		}
		return
	}
	m.lg.Warn("metar: every fetcher failed the cycle refresh")
}

// fetchOne walks the fetcher chain for a single station, optionally
// skipping the fetcher whose cache already missed.
func (m *Manager) fetchOne(ctx context.Context, icao, skip string) *METAR {
	for _, f := range m.fetchers {
		if m.cfg.SkipPreviousFetcher && f.Name() == skip {
			continue
		}
		m.mu.Lock()
		broken := m.singleBroken[f.Name()]
		m.mu.Unlock()
		if broken {
			continue
		}

		metar, err := f.Fetch(ctx, icao)
		if errors.Is(err, ErrNotImplemented) {
			m.mu.Lock()
			m.singleBroken[f.Name()] = true
			m.mu.Unlock()
			continue
		}
		if err != nil {
			m.lg.Warnf("metar: %s: fetch %s failed: %v", f.Name(), icao, err)
			continue
		}
		if metar != nil {
			return metar
		}
	}
	return nil
}

// Query returns the freshest observation for icao, or nil when no source
// has one. Station identifiers are case-insensitive on the wire unless
// the manager is configured case sensitive.
func (m *Manager) Query(ctx context.Context, icao string) *METAR {
	if !m.cfg.CaseSensitive {
		icao = strings.ToUpper(icao)
	}

	lookup := func(mode Mode, skip string) *METAR {
		switch mode {
		case ModeCron:
			return (*m.cache.Load())[icao]
		case ModeOnce:
			return m.fetchOne(ctx, icao, skip)
		}
		return nil
	}

	if metar := lookup(m.cfg.Mode, ""); metar != nil {
		return metar
	}
	if m.cfg.Fallback != "" {
		m.mu.Lock()
		source := m.cacheSource
		m.mu.Unlock()
		return lookup(m.cfg.Fallback, source)
	}
	return nil
}

// Profile returns a copy of the layered profile for icao, synthesized
// from the current observation, or nil when there is no weather. The
// caller localizes the copy with Fix; the cached original stays pristine.
func (m *Manager) Profile(ctx context.Context, icao string) *Profile {
	metar := m.Query(ctx, icao)
	if metar == nil {
		return nil
	}

	if p, ok := m.profiles.Get(metar.ICAO); ok && p.METAR != nil && p.METAR.Raw == metar.Raw {
		cp := *p
		return &cp
	}

	p := NewProfile()
	p.FeedMETAR(metar)
	m.profiles.Add(metar.ICAO, p)
	cp := *p
	return &cp
}

///////////////////////////////////////////////////////////////////////////
// Cache snapshots

// Snapshots let a restarted server answer weather queries before the
// first cycle download lands.

func (m *Manager) saveSnapshot(metars map[string]*METAR) error {
	tmp := m.cfg.CacheFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	err = msgpack.NewEncoder(zw).Encode(metars)
	if err2 := zw.Close(); err == nil {
		err = err2
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.cfg.CacheFile)
}

func (m *Manager) loadSnapshot() error {
	f, err := os.Open(m.cfg.CacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	var metars map[string]*METAR
	if err := msgpack.NewDecoder(zr).Decode(&metars); err != nil {
		return err
	}
	if len(metars) == 0 {
		return nil
	}
	m.cache.Store(&metars)
	m.lg.Infof("metar: loaded %d stations from %s", len(metars), filepath.Base(m.cfg.CacheFile))
	return nil
}
