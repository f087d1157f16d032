// wx/fetcher.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"context"
	"errors"
)

// ErrNotImplemented is returned by a Fetcher for the acquisition style it
// doesn't support; the manager remembers and stops asking.
var ErrNotImplemented = errors.New("fetch mode not implemented")

// A Fetcher acquires observations from one upstream source. Fetch returns
// (nil, nil) when the source has no report for the station; FetchAll
// returns every report the source publishes for the current cycle.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, icao string) (*METAR, error)
	FetchAll(ctx context.Context) (map[string]*METAR, error)
}
