// client/flightplan.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package client

// FlightPlan mirrors the fields of the $FP packet. Everything is kept as
// the raw wire strings; the server never interprets route or times, it
// just stores and relays them.
type FlightPlan struct {
	Rules          string // "I" or "V"
	Aircraft       string
	TASCruise      string
	DepAirport     string
	DepTime        string
	ActDepTime     string
	Altitude       string
	DestAirport    string
	HoursEnroute   string
	MinutesEnroute string
	HoursFuel      string
	MinutesFuel    string
	AltAirport     string
	Remarks        string
	Route          string

	Revision int
}

// Fields returns the plan in $FP field order, ready for rebroadcast.
func (fp *FlightPlan) Fields() []string {
	return []string{
		fp.Rules, fp.Aircraft, fp.TASCruise, fp.DepAirport, fp.DepTime,
		fp.ActDepTime, fp.Altitude, fp.DestAirport, fp.HoursEnroute,
		fp.MinutesEnroute, fp.HoursFuel, fp.MinutesFuel, fp.AltAirport,
		fp.Remarks, fp.Route,
	}
}
