// wx/metar.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package wx acquires METAR observations and synthesizes the layered
// wind/temperature/cloud profiles that FSD clients consume.
package wx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// This is as much of the METAR as the profile synthesizer needs. Pointer
// fields are nil when the corresponding group is absent from the report.
type METAR struct {
	ICAO string
	Time time.Time
	Raw  string

	WindDir   *int // nil for variable winds, otherwise heading 0-360
	WindSpeed *int // knots
	WindGust  *int // knots

	Visibility  *float64 // statute miles
	VisibilityM *float64 // meters, set when the report was metric

	Sky []SkyLayer

	Temperature *float64 // Celsius
	Dewpoint    *float64 // Celsius
	Altimeter   *float64 // inches of mercury
}

// SkyLayer is one cloud group: a coverage word and a base in feet AGL.
type SkyLayer struct {
	Cover string
	Base  int
}

var (
	windRe = regexp.MustCompile(`^(\d{3}|VRB)(\d{2,3})(?:G(\d{2,3}))?(KT|MPS)$`)
	visMRe = regexp.MustCompile(`^(\d{4})(?:NDV)?$`)
	visSRe = regexp.MustCompile(`^(M)?(\d{1,2})(?:/(\d{1,2}))?SM$`)
	skyRe  = regexp.MustCompile(`^(SKC|CLR|NSC|FEW|SCT|BKN|OVC|VV)(\d{3})?`)
	tempRe = regexp.MustCompile(`^(M)?(\d{2})/(M)?(\d{2})?$`)
	altRe  = regexp.MustCompile(`^([AQ])(\d{4})$`)
)

// ParseMETAR decodes the groups of a raw observation that matter to the
// weather profile. ref supplies the year and month for the embedded
// day-hour-minute timestamp; pass a zero time to use the current UTC
// clock. Unrecognized groups are skipped, as a report with a mangled
// remarks section is still perfectly good weather.
func ParseMETAR(raw string, ref time.Time) (*METAR, error) {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	m := &METAR{Raw: raw, Time: ref}

	fields := strings.Fields(raw)
	i := 0
	next := func() string {
		if i == len(fields) {
			return ""
		}
		s := fields[i]
		i++
		return s
	}

	// Station identifier, optionally preceded by a report type tag.
	tok := next()
	for tok == "METAR" || tok == "SPECI" || tok == "COR" {
		tok = next()
	}
	if len(tok) != 4 {
		return nil, fmt.Errorf("%q: expected 4-letter station identifier", tok)
	}
	m.ICAO = strings.ToUpper(tok)

	for {
		tok = next()
		if tok == "" || tok == "RMK" {
			break
		}
		if tok == "AUTO" || tok == "COR" || tok == "NIL" {
			continue
		}

		if strings.HasSuffix(tok, "Z") && len(tok) == 7 {
			if day, err := strconv.Atoi(tok[0:2]); err == nil {
				hour, _ := strconv.Atoi(tok[2:4])
				minute, _ := strconv.Atoi(tok[4:6])
				m.Time = time.Date(ref.Year(), ref.Month(), day, hour, minute, 0, 0, time.UTC)
			}
			continue
		}

		if gr := windRe.FindStringSubmatch(tok); gr != nil {
			speed, _ := strconv.Atoi(gr[2])
			if gr[4] == "MPS" {
				speed = int(float64(speed)*1.94384 + 0.5)
			}
			m.WindSpeed = &speed
			if gr[1] != "VRB" {
				dir, _ := strconv.Atoi(gr[1])
				m.WindDir = &dir
			}
			if gr[3] != "" {
				gust, _ := strconv.Atoi(gr[3])
				if gr[4] == "MPS" {
					gust = int(float64(gust)*1.94384 + 0.5)
				}
				m.WindGust = &gust
			}
			continue
		}

		if tok == "CAVOK" {
			v := 10000.0
			m.VisibilityM = &v
			continue
		}

		if gr := visMRe.FindStringSubmatch(tok); gr != nil && m.VisibilityM == nil && m.Visibility == nil {
			v, _ := strconv.Atoi(gr[1])
			if v == 9999 {
				v = 10000
			}
			vm := float64(v)
			m.VisibilityM = &vm
			continue
		}

		if gr := visSRe.FindStringSubmatch(tok); gr != nil {
			num, _ := strconv.Atoi(gr[2])
			v := float64(num)
			if gr[3] != "" {
				if denom, _ := strconv.Atoi(gr[3]); denom != 0 {
					v = float64(num) / float64(denom)
				}
			}
			m.Visibility = &v
			continue
		}

		if gr := skyRe.FindStringSubmatch(tok); gr != nil {
			layer := SkyLayer{Cover: gr[1]}
			if gr[2] != "" {
				base, _ := strconv.Atoi(gr[2])
				layer.Base = base * 100
			}
			m.Sky = append(m.Sky, layer)
			continue
		}

		if gr := tempRe.FindStringSubmatch(tok); gr != nil {
			t, _ := strconv.Atoi(gr[2])
			if gr[1] == "M" {
				t = -t
			}
			tf := float64(t)
			m.Temperature = &tf
			if gr[4] != "" {
				d, _ := strconv.Atoi(gr[4])
				if gr[3] == "M" {
					d = -d
				}
				df := float64(d)
				m.Dewpoint = &df
			}
			continue
		}

		if gr := altRe.FindStringSubmatch(tok); gr != nil {
			v, _ := strconv.Atoi(gr[2])
			var inHg float64
			if gr[1] == "A" {
				inHg = float64(v) / 100
			} else {
				// Conversion formula (hectoPascal to inch of mercury)
				inHg = float64(v) * 0.02953
			}
			m.Altimeter = &inHg
			continue
		}
	}

	return m, nil
}

// HasThunderstorm reports whether any present-weather group mentions a
// thunderstorm.
func (m *METAR) HasThunderstorm() bool {
	for _, f := range strings.Fields(m.Raw) {
		f = strings.TrimPrefix(f, "+")
		f = strings.TrimPrefix(f, "-")
		if strings.HasPrefix(f, "TS") || strings.HasPrefix(f, "VCTS") {
			return true
		}
	}
	return false
}
