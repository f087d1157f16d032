// fsd/fsd.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package fsd has the pieces of the legacy FSD wire protocol that both the
// server and its tests need: the command heads, the colon-delimited packet
// codec, the numeric error taxonomy, and callsign validity rules.
package fsd

import "strings"

// ProtocolRevision is the only protocol version the server accepts on
// login; it goes back to the SquawkBox/ProController era of FSD.
const ProtocolRevision = 9

// ServerCallsign is the callsign the server itself answers to in packets
// addressed to it (e.g. $PI pings and $CQ queries).
const ServerCallsign = "SERVER"

// Command heads. Each is a prefix of the first colon-delimited field of a
// packet, not a field of its own.
const (
	CmdAddATC         = "#AA"
	CmdRemoveATC      = "#DA"
	CmdAddPilot       = "#AP"
	CmdRemovePilot    = "#DP"
	CmdRequestHandoff = "$HO"
	CmdMessage        = "#TM"
	CmdRequestWeather = "#RW"
	CmdPilotPosition  = "@"
	CmdATCPosition    = "%"
	CmdPing           = "$PI"
	CmdPong           = "$PO"
	CmdAcHandoff      = "$HA"
	CmdPlan           = "$FP"
	CmdSB             = "#SB"
	CmdPC             = "#PC"
	CmdWeather        = "#WX"
	CmdCloudData      = "#CD"
	CmdWindData       = "#WD"
	CmdTempData       = "#TD"
	CmdRequestComm    = "$C?"
	CmdReplyComm      = "$CI"
	CmdRequestAcars   = "$AX"
	CmdReplyAcars     = "$AR"
	CmdError          = "$ER"
	CmdCQ             = "$CQ"
	CmdCR             = "$CR"
	CmdKill           = "$!!"
	CmdWindDelta      = "#DL"
)

// allCommands is ordered longest-head-first so that prefix matching in
// BreakPacket never picks "@" over a three-byte head.
var allCommands = []string{
	CmdAddATC, CmdRemoveATC, CmdAddPilot, CmdRemovePilot, CmdRequestHandoff,
	CmdMessage, CmdRequestWeather, CmdPing, CmdPong, CmdAcHandoff, CmdPlan,
	CmdSB, CmdPC, CmdWeather, CmdCloudData, CmdWindData, CmdTempData,
	CmdRequestComm, CmdReplyComm, CmdRequestAcars, CmdReplyAcars, CmdError,
	CmdCQ, CmdCR, CmdKill, CmdWindDelta,
	CmdPilotPosition, CmdATCPosition,
}

// invalid bytes for callsigns, from the historical FSD source.
const callsignForbidden = "!@#$%*: &\t"

// IsCallsignValid reports whether cs is usable as a live-client callsign:
// 2 to 12 bytes, none from the forbidden set.
func IsCallsignValid(cs string) bool {
	if len(cs) < 2 || len(cs) > 12 {
		return false
	}
	return !strings.ContainsAny(cs, callsignForbidden)
}

// IsMulticast reports whether a destination callsign addresses a set of
// clients rather than a single one.
func IsMulticast(dest string) bool {
	return dest == "*" || dest == "*A" || dest == "*P" || strings.HasPrefix(dest, "@")
}
