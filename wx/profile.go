// wx/profile.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	gomath "math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openfsd/openfsd/math"
)

// Variation array indices. The legacy daemon drew one pseudo-random
// number per slot at the top of each UTC hour and every station shared
// them, so all stations drift the same way within an hour.
const (
	varUpDirection = iota
	varMidCor
	varLowCor
	varMidDirection
	varMidSpeed
	varLowDirection
	varLowSpeed
	varUpTemp
	varMidTemp
	varLowTemp
	numVariations
)

type WindLayer struct {
	Ceiling    int
	Floor      int
	Direction  int
	Speed      int
	Gusting    int
	Turbulence int
}

type TempLayer struct {
	Ceiling int
	Temp    int
}

type CloudLayer struct {
	Ceiling    int
	Floor      int
	Coverage   int
	Icing      int
	Turbulence int
}

// Profile is the layered weather a position request is answered with:
// four wind layers, four temperature layers, two cloud layers plus a
// thunderstorm layer, and the scalar groups. FeedMETAR fills in the
// surface layers from an observation; Fix then synthesizes the upper
// layers for a particular position.
type Profile struct {
	METAR *METAR

	Winds  [4]WindLayer
	Temps  [4]TempLayer
	Clouds [2]CloudLayer
	TStorm CloudLayer

	DewPoint   int
	Visibility float64
	Barometer  int
}

var cloudCoverage = map[string]int{
	"CLR": 0,
	"SKC": 0,
	"NSC": 0,
	"FEW": 1,
	"SCT": 3,
	"BKN": 5,
	"OVC": 8,
	"VV":  8,
}

// NewProfile returns a profile with every layer at its unset sentinel.
func NewProfile() *Profile {
	p := &Profile{Visibility: 15, Barometer: 2992}
	for i := range p.Winds {
		p.Winds[i] = WindLayer{Ceiling: -1, Floor: -1}
	}
	p.Temps = [4]TempLayer{{Ceiling: 100}, {Ceiling: 10000}, {Ceiling: 18000}, {Ceiling: 35000}}
	for i := range p.Clouds {
		p.Clouds[i] = CloudLayer{Ceiling: -1, Floor: -1}
	}
	p.TStorm = CloudLayer{Ceiling: -1, Floor: -1}
	return p
}

// FeedMETAR derives the observation-driven parts of the profile: the
// surface wind layer, the cloud layers, the surface temperature, the
// visibility, and the barometer.
func (p *Profile) FeedMETAR(m *METAR) {
	p.METAR = m

	// Variable winds leave the surface layer at its unset sentinel.
	if m.WindSpeed != nil && m.WindDir != nil {
		p.Winds[0] = WindLayer{
			Ceiling:   2500,
			Floor:     0,
			Direction: *m.WindDir,
			Speed:     *m.WindSpeed,
		}
		if m.WindGust != nil {
			p.Winds[0].Gusting = 1
		}
	}

	switch {
	case m.VisibilityM != nil && *m.VisibilityM == 10000:
		p.Visibility = 15
		if !strings.Contains(m.Raw, "9999") {
			// CAVOK and friends: fair-weather cirrus high above
			// everything, exactly as the old daemon invented it.
			p.Clouds[1] = CloudLayer{Ceiling: 26000, Floor: 24000, Coverage: 1}
		}
	case strings.Contains(m.Raw, "M1/4SM"):
		p.Visibility = 0.15
	case m.Visibility != nil:
		p.Visibility = *m.Visibility
	case m.VisibilityM != nil:
		p.Visibility = *m.VisibilityM / 1609.344
	}

	var bases []SkyLayer
	for _, layer := range m.Sky {
		cov, ok := cloudCoverage[layer.Cover]
		if !ok || cov == 0 {
			continue
		}
		bases = append(bases, SkyLayer{Cover: layer.Cover, Base: layer.Base})
		if len(bases) == 2 {
			break
		}
	}
	for i, layer := range bases {
		floor := layer.Base
		var ceiling int
		if i+1 < len(bases) {
			// Halfway up to the next deck.
			ceiling = floor + (bases[i+1].Base-floor)/2
		} else {
			ceiling = floor + 3000
		}
		p.Clouds[i] = CloudLayer{
			Ceiling:    ceiling,
			Floor:      floor,
			Coverage:   cloudCoverage[layer.Cover],
			Turbulence: (ceiling - floor) / 175,
		}
	}

	if m.Temperature != nil {
		t := *m.Temperature
		p.Temps[0].Temp = int(gomath.Floor(t))
		if t > -10 && t < 10 {
			for i := range p.Clouds {
				if p.Clouds[i].Floor >= 0 && p.Clouds[i].Ceiling < 12000 {
					p.Clouds[i].Icing = 1
				}
			}
		}
	}
	if m.Dewpoint != nil {
		p.DewPoint = int(gomath.Floor(*m.Dewpoint))
	}

	if m.HasThunderstorm() && p.Clouds[0].Floor >= 0 {
		p.TStorm = CloudLayer{
			Ceiling:    p.Clouds[0].Floor + 8000,
			Floor:      p.Clouds[0].Floor,
			Coverage:   p.Clouds[0].Coverage,
			Turbulence: 45,
		}
	}

	if m.Altimeter != nil {
		p.Barometer = int(gomath.Round(*m.Altimeter * 100))
	} else {
		p.Barometer = 2992
	}
}

///////////////////////////////////////////////////////////////////////////
// Hourly variations

// The variation generator is a faithful port of the legacy daemon's,
// including the 32-bit overflow: the seed is hour*(year-1900)*month and
// each draw xors in a constant and then a rotate-left of itself.
type variationState struct {
	mu   sync.Mutex
	hour int
	vars [numVariations]int32
}

var varState = variationState{hour: -1}

func variationsAt(now time.Time) [numVariations]int32 {
	varState.mu.Lock()
	defer varState.mu.Unlock()

	if now.Hour() != varState.hour {
		varState.hour = now.Hour()
		seed := int32(now.Hour() * (now.Year() - 1900) * int(now.Month()))
		for i := range varState.vars {
			seed ^= 0x22591D8C
			seed ^= seed<<1 | (seed>>31)&1
			varState.vars[i] = seed
		}
	}
	return varState.vars
}

func variation(vars [numVariations]int32, k, min, max int) int {
	v := int(vars[k])
	if v < 0 {
		v = -v
	}
	return v%(max-min+1) + min
}

func season(now time.Time, southern bool) int {
	var s int
	switch now.Month() {
	case time.December, time.January, time.February:
		s = 0
	case time.June, time.July, time.August:
		s = 2
	default:
		s = 1
	}
	if southern {
		s = 2 - s
	}
	return s
}

// Winter jetstreams are the strongest.
var seasonMaxVelocity = [3]int{120, 80, 50}

// Fix localizes the upper wind and temperature layers to a position,
// using the shared hourly variations so every client over the same spot
// sees the same sky.
func (p *Profile) Fix(pos math.Point2LL) {
	p.fixAt(pos, time.Now().UTC())
}

func (p *Profile) fixAt(pos math.Point2LL, now time.Time) {
	vars := variationsAt(now)
	lat := float64(pos.Latitude())
	lon := float64(pos.Longitude())

	coriolis := 6.0
	if lat < 0 {
		coriolis = -6
	}
	maxVel := seasonMaxVelocity[season(now, lat < 0)]

	upper := &p.Winds[3]
	mid := &p.Winds[2]
	low := &p.Winds[1]

	upper.Floor, upper.Ceiling = 22600, 90000
	mid.Floor, mid.Ceiling = 10400, 22600
	low.Floor, low.Ceiling = 2500, 10400

	// The layer boundaries wander a little each hour.
	mid.Ceiling += 100 * variation(vars, varMidCor, -3, 3)
	upper.Floor = mid.Ceiling
	low.Ceiling += 100 * variation(vars, varLowCor, -3, 3)
	mid.Floor = low.Ceiling

	dir := gomath.Round(coriolis*lat + float64(variation(vars, varUpDirection, -25, 25)) + gomath.Abs(lon/18))
	upper.Direction = (int(dir)%360 + 360) % 360
	upper.Speed = int(gomath.Round(gomath.Abs(gomath.Sin(lat*gomath.Pi/180)) * float64(maxVel)))

	mid.Direction = (upper.Direction + variation(vars, varMidDirection, 10, 45)) % 360
	mid.Speed = max(0, upper.Speed-variation(vars, varMidSpeed, 5, 20))

	low.Direction = (mid.Direction + variation(vars, varLowDirection, 10, 45)) % 360
	low.Speed = max(0, mid.Speed-variation(vars, varLowSpeed, 5, 20))

	p.Temps[3].Temp = -57 + variation(vars, varUpTemp, -7, 7)
	p.Temps[2].Temp = -21 + variation(vars, varMidTemp, -5, 5)
	p.Temps[1].Temp = -5 + variation(vars, varLowTemp, -5, 5)
}

///////////////////////////////////////////////////////////////////////////
// Wire rendering

// TempFields renders the four temperature layers plus barometer the way
// a #TD packet carries them.
func (p *Profile) TempFields() []string {
	fields := make([]string, 0, 9)
	for _, t := range p.Temps {
		fields = append(fields, strconv.Itoa(t.Ceiling), strconv.Itoa(t.Temp))
	}
	return append(fields, strconv.Itoa(p.Barometer))
}

// WindFields renders the four wind layers for a #WD packet.
func (p *Profile) WindFields() []string {
	fields := make([]string, 0, 24)
	for _, w := range p.Winds {
		fields = append(fields,
			strconv.Itoa(w.Ceiling), strconv.Itoa(w.Floor),
			strconv.Itoa(w.Direction), strconv.Itoa(w.Speed),
			strconv.Itoa(w.Gusting), strconv.Itoa(w.Turbulence))
	}
	return fields
}

// CloudFields renders the cloud layers, the thunderstorm layer, and the
// visibility for a #CD packet.
func (p *Profile) CloudFields() []string {
	fields := make([]string, 0, 16)
	for _, c := range []CloudLayer{p.Clouds[0], p.Clouds[1], p.TStorm} {
		fields = append(fields,
			strconv.Itoa(c.Ceiling), strconv.Itoa(c.Floor),
			strconv.Itoa(c.Coverage), strconv.Itoa(c.Icing),
			strconv.Itoa(c.Turbulence))
	}
	return append(fields, strconv.FormatFloat(p.Visibility, 'f', -1, 64))
}
