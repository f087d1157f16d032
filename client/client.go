// client/client.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package client holds the per-session state for each connected ATC or
// pilot, the registry of live clients, and the visibility predicates used
// to pick broadcast recipients.
package client

import (
	gomath "math"
	"sync"
	"time"

	"github.com/openfsd/openfsd/math"
)

type Type int

const (
	ATC Type = iota
	Pilot
)

func (t Type) String() string {
	if t == ATC {
		return "ATC"
	}
	return "PILOT"
}

// Transport is the connection-facing side of a session; WriteLine appends
// the CRLF framing and is safe for concurrent use.
type Transport interface {
	WriteLine([]byte) error
	Close()
	RemoteAddr() string
}

// Client is the record for one live callsign. Identity fields (Type,
// Callsign, CID, Rating, ...) are immutable after login; the mutable
// position and plan state is only written by the owning session but read
// during broadcasts from other sessions, hence the mutex.
type Client struct {
	Type     Type
	Callsign string
	Rating   int
	CID      string
	Protocol int
	Realname string
	SimType  int // pilots only; -1 for ATC

	Transport Transport

	StartTime int64 // unix seconds

	mu          sync.Mutex
	position    math.Point2LL
	altitude    int
	groundSpeed int
	transponder int
	pbh         uint32
	flags       int
	frequency   int
	facility    int
	visualRange int
	identFlag   string
	flightPlan  *FlightPlan
	lastUpdated int64
}

func New(ty Type, callsign, cid, realname string, rating, simType int, tr Transport) *Client {
	return &Client{
		Type:      ty,
		Callsign:  callsign,
		CID:       cid,
		Realname:  realname,
		Rating:    rating,
		SimType:   simType,
		Protocol:  9,
		Transport: tr,
		StartTime: time.Now().Unix(),
	}
}

// UpdatePilotPosition stores a pilot position report. The pbh attitude
// word is masked to 32 bits by the caller's parse; lat/lon validity is the
// session's business (out-of-range values are logged there but stored
// anyway, as the historical server did).
func (c *Client) UpdatePilotPosition(ident string, transponder int, lat, lon float64, alt, speed int, pbh uint32, flags int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identFlag = ident
	c.transponder = transponder
	c.position = math.MakePoint2LL(float32(lat), float32(lon))
	c.altitude = alt
	c.groundSpeed = speed
	c.pbh = pbh
	c.flags = flags
	c.lastUpdated = time.Now().Unix()
}

// UpdateATCPosition stores a controller position report.
func (c *Client) UpdateATCPosition(frequency, facility, visualRange int, lat, lon float64, alt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frequency = frequency
	c.facility = facility
	c.visualRange = visualRange
	c.position = math.MakePoint2LL(float32(lat), float32(lon))
	c.altitude = alt
	c.lastUpdated = time.Now().Unix()
}

// UpdatePlan replaces the flight plan, bumping the revision counter by one
// per update (first filing is revision 0).
func (c *Client) UpdatePlan(plan FlightPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flightPlan != nil {
		plan.Revision = c.flightPlan.Revision + 1
	}
	c.flightPlan = &plan
}

func (c *Client) Plan() *FlightPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flightPlan
}

// Position returns a snapshot of the client's position and whether it is
// usable for distance computations. (0,0) means "never reported" and
// absurd altitudes mark a bogus report.
func (c *Client) Position() (math.Point2LL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, !c.position.IsZero() && c.altitude < 100000
}

func (c *Client) Altitude() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.altitude
}

func (c *Client) VisualRange() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visualRange
}

func (c *Client) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency
}

func (c *Client) LastUpdated() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// atcRanges maps facility type to the visibility range in nm used for ATC
// clients; these constants are inherited from the original FSD tables.
var atcRanges = map[int]float32{
	1: 1500,
	2: 5,
	3: 5,
	4: 30,
	5: 100,
	6: 400,
	7: 1500,
}

// Range returns the client's visibility range in nautical miles. Pilots
// see farther the higher they fly; controllers get a fixed range by
// facility type.
func (c *Client) Range() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Type == Pilot {
		alt := max(c.altitude, 0)
		return float32(gomath.Floor(10 + 1.414*gomath.Sqrt(float64(alt))))
	}
	if r, ok := atcRanges[c.facility]; ok {
		return r
	}
	return 40
}
