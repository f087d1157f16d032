// wx/noaa.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openfsd/openfsd/log"
)

const (
	noaaStationURL = "https://tgftp.nws.noaa.gov/data/observations/metar/stations/%s.TXT"
	noaaCycleURL   = "https://tgftp.nws.noaa.gov/data/observations/metar/cycles/%02dZ.TXT"

	// Layout of the timestamp line NOAA prepends to each observation.
	noaaTimeLayout = "2006/01/02 15:04"
)

// NOAAFetcher pulls observations from the NWS text server, either one
// station at a time or a whole hourly cycle file. Requests are rate
// limited so a burst of cache misses doesn't hammer tgftp.
type NOAAFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	lg      *log.Logger
}

func NewNOAAFetcher(lg *log.Logger) *NOAAFetcher {
	return &NOAAFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 5),
		lg:      lg,
	}
}

func (f *NOAAFetcher) Name() string { return "NOAA" }

func (f *NOAAFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return f.client.Do(req)
}

func (f *NOAAFetcher) Fetch(ctx context.Context, icao string) (*METAR, error) {
	resp, err := f.get(ctx, fmt.Sprintf(noaaStationURL, strings.ToUpper(icao)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NOAA: %s: %s", icao, resp.Status)
	}

	metars, err := parseNOAABody(resp.Body)
	if err != nil {
		return nil, err
	}
	if m, ok := metars[strings.ToUpper(icao)]; ok {
		return m, nil
	}
	return nil, nil
}

func (f *NOAAFetcher) FetchAll(ctx context.Context) (map[string]*METAR, error) {
	url := fmt.Sprintf(noaaCycleURL, time.Now().UTC().Hour())
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NOAA: cycle file: %s", resp.Status)
	}

	start := time.Now()
	metars, err := parseNOAABody(resp.Body)
	if err != nil {
		return nil, err
	}
	f.lg.Infof("NOAA: fetched %d observations from %s in %s", len(metars), url,
		time.Since(start).Round(time.Millisecond))
	return metars, nil
}

// parseNOAABody reads the tgftp text format: observation lines, each
// optionally preceded by a YYYY/MM/DD HH:MM line that anchors the
// report's day-of-month to a real year and month. Reports that don't
// parse are dropped; the rest of the file is still good.
func parseNOAABody(r io.Reader) (map[string]*METAR, error) {
	metars := make(map[string]*METAR)
	ref := time.Time{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if t, err := time.ParseInLocation(noaaTimeLayout, line, time.UTC); err == nil {
			ref = t
			continue
		}
		m, err := ParseMETAR(line, ref)
		if err != nil {
			continue
		}
		metars[m.ICAO] = m
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("NOAA: read body: %w", err)
	}
	return metars, nil
}
