// server/handlers.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openfsd/openfsd/auth"
	"github.com/openfsd/openfsd/client"
	"github.com/openfsd/openfsd/fsd"
	"github.com/openfsd/openfsd/util"
)

// Supervisor rating; anything below may not kill other clients.
const killRating = 11

type handlerFunc func(s *session, head string, fields []string, line []byte) *protoError

// handlerEntry declares a command's minimum arity and which field names
// the packet source. srcField -1 skips the source check; everything else
// requires a logged-in client whose callsign matches that field.
type handlerEntry struct {
	minFields int
	srcField  int
	fn        handlerFunc
}

var handlers = map[string]handlerEntry{
	fsd.CmdAddATC:         {7, -1, handleAddATC},
	fsd.CmdAddPilot:       {8, -1, handleAddPilot},
	fsd.CmdRemoveATC:      {1, 0, handleRemove},
	fsd.CmdRemovePilot:    {1, 0, handleRemove},
	fsd.CmdPilotPosition:  {10, 1, handlePilotPosition},
	fsd.CmdATCPosition:    {8, 0, handleATCPosition},
	fsd.CmdPlan:           {17, 0, handlePlan},
	fsd.CmdPing:           {2, 0, handlePing},
	fsd.CmdPong:           {2, 0, handleRelay},
	fsd.CmdMessage:        {3, 0, handleMessage},
	fsd.CmdRequestHandoff: {3, 0, handleRelay},
	fsd.CmdAcHandoff:      {3, 0, handleRelay},
	fsd.CmdSB:             {2, 0, handleRelay},
	fsd.CmdPC:             {2, 0, handleRelay},
	fsd.CmdRequestComm:    {2, 0, handleRelay},
	fsd.CmdReplyComm:      {2, 0, handleRelay},
	fsd.CmdCR:             {3, 0, handleRelay},
	fsd.CmdRequestWeather: {2, 0, handleRequestWeather},
	fsd.CmdWeather:        {2, 0, handleRequestWeather},
	fsd.CmdRequestAcars:   {3, 0, handleAcars},
	fsd.CmdCQ:             {3, 0, handleCQ},
	fsd.CmdKill:           {3, 0, handleKill},
}

// cast delivers a packet to its destination field: a single callsign, or
// one of the multicast destinations "*", "*A", "*P", and "@frequency".
// atCheck is the visibility predicate used for frequency destinations.
func (s *session) cast(dest string, line []byte, allowMulticast bool, atCheck client.Checker) *protoError {
	if fsd.IsMulticast(dest) {
		if !allowMulticast {
			return perr(fsd.ErrSyntax, dest)
		}
		var check client.Checker
		switch dest {
		case "*":
			check = nil
		case "*A":
			check = client.AllATCChecker
		case "*P":
			check = client.AllPilotChecker
		default:
			check = atCheck
		}
		s.srv.registry.Broadcast(line, check, s.client)
		return nil
	}

	// A dead unicast destination is not a protocol error; the packet is
	// simply lost, as on the historical servers.
	s.srv.registry.SendTo(dest, line)
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Login

// #AAcallsign:SERVER:realname:cid:password:rating:protocol
func handleAddATC(s *session, head string, fields []string, line []byte) *protoError {
	return s.login(client.ATC, fields[0], fields[3], fields[4], fields[2],
		util.AtoiDefault(fields[5], 0), util.AtoiDefault(fields[6], -1), -1)
}

// #APcallsign:SERVER:cid:password:rating:protocol:simtype:realname
func handleAddPilot(s *session, head string, fields []string, line []byte) *protoError {
	return s.login(client.Pilot, fields[0], fields[2], fields[3], fields[7],
		util.AtoiDefault(fields[4], 0), util.AtoiDefault(fields[5], -1),
		util.AtoiDefault(fields[6], 0))
}

func (s *session) login(ty client.Type, callsign, cid, password, realname string, reqRating, protocol, simType int) *protoError {
	if s.client != nil {
		return perr(fsd.ErrRegistered, callsign)
	}
	if !fsd.IsCallsignValid(callsign) {
		return perr(fsd.ErrCSInvalid, callsign)
	}
	if protocol != fsd.ProtocolRevision {
		return perr(fsd.ErrRevision, "")
	}
	if !utf8.ValidString(cid) || !utf8.ValidString(password) {
		return perr(fsd.ErrCIDInvalid, cid)
	}
	if _, taken := s.srv.registry.Get(callsign); taken {
		return perr(fsd.ErrCSInUse, callsign)
	}

	user, err := auth.CheckLogin(s.ctx, s.srv.store, cid, password)
	if err != nil {
		if !errors.Is(err, auth.ErrUnknownUser) && !errors.Is(err, auth.ErrPasswordMismatch) {
			s.lg.Errorf("%s: login check: %v", cid, err)
		}
		return perr(fsd.ErrCIDInvalid, cid)
	}
	if user.Rating == 0 {
		return perr(fsd.ErrCSSuspend, cid)
	}
	if reqRating > user.Rating {
		return perr(fsd.ErrLevel, strconv.Itoa(reqRating))
	}

	c := client.New(ty, callsign, cid, realname, reqRating, simType, s.tr)
	if !s.srv.registry.Add(c) {
		return perr(fsd.ErrCSInUse, callsign)
	}
	s.client = c

	// The historic announce layouts: the pilot one carries the rating
	// twice, not the protocol revision.
	var announce []byte
	if ty == client.ATC {
		announce = fsd.MakePacket(fsd.CmdAddATC,
			callsign, fsd.ServerCallsign, realname, cid, "", strconv.Itoa(reqRating))
	} else {
		announce = fsd.MakePacket(fsd.CmdAddPilot,
			callsign, fsd.ServerCallsign, cid, "", strconv.Itoa(reqRating),
			strconv.Itoa(reqRating), strconv.Itoa(simType))
	}
	s.srv.registry.Broadcast(announce, nil, c)
	s.srv.sendMOTD(c)
	s.srv.plugins.ClientCreated(c)

	s.lg.Infof("%s: %s %s logged in, cid %s, rating %d", s.tr.RemoteAddr(), ty, callsign, cid, reqRating)
	return nil
}

// #DAcallsign / #DPcallsign. The announced departure carries the cid so
// watchers can match it against the add.
func handleRemove(s *session, head string, fields []string, line []byte) *protoError {
	s.depart()
	s.tr.Close()
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Position reports

// @ident:callsign:transponder:rating:lat:lon:alt:speed:pbh:flags
func handlePilotPosition(s *session, head string, fields []string, line []byte) *protoError {
	lat := util.AtofDefault(fields[4], 0)
	lon := util.AtofDefault(fields[5], 0)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		s.lg.Warnf("%s: position out of range: %v %v", s.client.Callsign, lat, lon)
	}

	pbh64, _ := strconv.ParseUint(fields[8], 10, 64)

	s.client.UpdatePilotPosition(fields[0],
		util.AtoiDefault(fields[2], 0),
		lat, lon,
		util.AtoiDefault(fields[6], 0),
		util.AtoiDefault(fields[7], 0),
		uint32(pbh64),
		util.AtoiDefault(fields[9], 0))

	s.srv.registry.Broadcast(line, client.PositionChecker, s.client)
	return nil
}

// %callsign:frequency:facility:range:rating:lat:lon:alt
func handleATCPosition(s *session, head string, fields []string, line []byte) *protoError {
	lat := util.AtofDefault(fields[5], 0)
	lon := util.AtofDefault(fields[6], 0)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		s.lg.Warnf("%s: position out of range: %v %v", s.client.Callsign, lat, lon)
	}

	s.client.UpdateATCPosition(
		util.AtoiDefault(fields[1], 0),
		util.AtoiDefault(fields[2], 0),
		util.AtoiDefault(fields[3], 0),
		lat, lon,
		util.AtoiDefault(fields[7], 0))

	s.srv.registry.Broadcast(line, client.PositionChecker, s.client)
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Flight plans

// $FPcallsign:SERVER:rules:aircraft:tas:dep:deptime:actdeptime:alt:dest:
//   hrsenroute:minenroute:hrsfuel:minfuel:altapt:remarks:route
func handlePlan(s *session, head string, fields []string, line []byte) *protoError {
	plan := client.FlightPlan{
		Rules: fields[2], Aircraft: fields[3], TASCruise: fields[4],
		DepAirport: fields[5], DepTime: fields[6], ActDepTime: fields[7],
		Altitude: fields[8], DestAirport: fields[9], HoursEnroute: fields[10],
		MinutesEnroute: fields[11], HoursFuel: fields[12], MinutesFuel: fields[13],
		AltAirport: fields[14], Remarks: fields[15], Route: fields[16],
	}
	s.client.UpdatePlan(plan)

	// Controllers get the filed plan; the revision stays server-side.
	relay := fsd.MakePacket(fsd.CmdPlan,
		append([]string{s.client.Callsign, "*A"}, plan.Fields()...)...)
	s.srv.registry.Broadcast(relay, client.AllATCChecker, s.client)
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Relays

// $PIcallsign:dest:data. Pings addressed to the server are answered
// locally; everything else is relayed like any other packet.
func handlePing(s *session, head string, fields []string, line []byte) *protoError {
	dest := fields[1]
	if strings.EqualFold(dest, fsd.ServerCallsign) {
		reply := fsd.MakePacket(fsd.CmdPong,
			append([]string{"server", s.client.Callsign}, fields[2:]...)...)
		s.tr.WriteLine(reply)
		return nil
	}
	return s.cast(dest, line, true, client.AtChecker)
}

// #TMcallsign:dest:message. Frequency destinations use the message
// predicate, which ignores a controller's declared visual range.
func handleMessage(s *session, head string, fields []string, line []byte) *protoError {
	return s.cast(fields[1], line, true, client.MessageChecker)
}

// handleRelay forwards point-to-point packets (handoffs, #SB, #PC, comm
// requests) without interpreting them.
func handleRelay(s *session, head string, fields []string, line []byte) *protoError {
	return s.cast(fields[1], line, false, nil)
}

///////////////////////////////////////////////////////////////////////////
// Weather

// #RWcallsign:SERVER:station. The reply is the #TD/#WD/#CD triple
// synthesized from the station's observation and localized to the
// requester's position.
func handleRequestWeather(s *session, head string, fields []string, line []byte) *protoError {
	icao := fields[len(fields)-1]
	profile := s.srv.wx.Profile(s.ctx, icao)
	if profile == nil {
		return perr(fsd.ErrNoWeather, icao)
	}
	pos, _ := s.client.Position()
	profile.Fix(pos)

	cs := s.client.Callsign
	s.tr.WriteLine(fsd.MakePacket(fsd.CmdTempData, append([]string{"server", cs}, profile.TempFields()...)...))
	s.tr.WriteLine(fsd.MakePacket(fsd.CmdWindData, append([]string{"server", cs}, profile.WindFields()...)...))
	s.tr.WriteLine(fsd.MakePacket(fsd.CmdCloudData, append([]string{"server", cs}, profile.CloudFields()...)...))
	return nil
}

// $AXcallsign:SERVER:METAR:station answers with the raw observation in a
// $AR packet; anything else addressed elsewhere is relayed.
func handleAcars(s *session, head string, fields []string, line []byte) *protoError {
	if strings.EqualFold(fields[1], fsd.ServerCallsign) && strings.EqualFold(fields[2], "METAR") {
		if len(fields) < 4 {
			return perr(fsd.ErrSyntax, head)
		}
		metar := s.srv.wx.Query(s.ctx, fields[3])
		if metar == nil {
			return perr(fsd.ErrNoWeather, fields[3])
		}
		s.tr.WriteLine(fsd.MakePacket(fsd.CmdReplyAcars, "server", s.client.Callsign, "METAR", metar.Raw))
		return nil
	}
	return s.cast(fields[1], line, false, nil)
}

///////////////////////////////////////////////////////////////////////////
// Queries

// $CQcallsign:dest:subcommand[:args]. The server answers FP and RN
// queries itself; other destinations are relayed.
func handleCQ(s *session, head string, fields []string, line []byte) *protoError {
	dest := fields[1]
	if !strings.EqualFold(dest, fsd.ServerCallsign) {
		return s.cast(dest, line, true, client.AtChecker)
	}

	switch strings.ToUpper(fields[2]) {
	case "FP":
		if len(fields) < 4 {
			return perr(fsd.ErrSyntax, head)
		}
		if s.client.Type != client.ATC {
			return nil
		}
		target, ok := s.srv.registry.Get(fields[3])
		if !ok {
			return perr(fsd.ErrNoSuchCS, fields[3])
		}
		plan := target.Plan()
		if plan == nil {
			return perr(fsd.ErrNoFP, fields[3])
		}
		s.tr.WriteLine(fsd.MakePacket(fsd.CmdPlan,
			append([]string{target.Callsign, s.client.Callsign}, plan.Fields()...)...))
	case "RN":
		if len(fields) < 4 {
			return perr(fsd.ErrSyntax, head)
		}
		target, ok := s.srv.registry.Get(fields[3])
		if !ok {
			return perr(fsd.ErrNoSuchCS, fields[3])
		}
		s.tr.WriteLine(fsd.MakePacket(fsd.CmdCR,
			target.Callsign, s.client.Callsign, "RN", target.Realname, "USER",
			strconv.Itoa(target.Rating)))
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Kill

// $!!callsign:target:reason
func handleKill(s *session, head string, fields []string, line []byte) *protoError {
	if s.client.Rating < killRating {
		s.tr.WriteLine(fsd.MakePacket(fsd.CmdMessage,
			"server", s.client.Callsign, "You are not allowed to kill users!"))
		return nil
	}

	target, ok := s.srv.registry.Get(fields[1])
	if !ok {
		return perr(fsd.ErrNoSuchCS, fields[1])
	}
	reason := fields[2]

	s.lg.Infof("%s killed %s: %s", s.client.Callsign, target.Callsign, reason)
	s.tr.WriteLine(fsd.MakePacket(fsd.CmdMessage,
		"server", s.client.Callsign, "Attempting to kill "+target.Callsign))
	target.Transport.WriteLine(fsd.MakePacket(fsd.CmdKill, fsd.ServerCallsign, target.Callsign, reason))
	target.Transport.Close()
	return nil
}
