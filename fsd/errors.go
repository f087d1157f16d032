// fsd/errors.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fsd

import "fmt"

// Error is one of the numeric protocol errors reported back over the wire
// in a $ER packet. Fatal errors close the connection after being sent.
type Error struct {
	Errno int
	Name  string
	Fatal bool
}

func (e Error) Error() string {
	return fmt.Sprintf("fsd error %03d: %s", e.Errno, e.Name)
}

// Packet renders the $ER packet for this error: the callsign is the
// offending client's (or "unknown" before login) and env is the head of
// the packet that triggered it.
func (e Error) Packet(callsign, env string) []byte {
	if callsign == "" {
		callsign = "unknown"
	}
	return MakePacket(CmdError, "server", callsign, fmt.Sprintf("%03d", e.Errno), env, e.Name)
}

var (
	ErrOK         = Error{0, "No error", false}
	ErrCSInUse    = Error{1, "Callsign in use", false}
	ErrCSInvalid  = Error{2, "Callsign invalid", true}
	ErrRegistered = Error{3, "Already registered", false}
	ErrSyntax     = Error{4, "Syntax error", false}
	ErrSrcInvalid = Error{5, "Invalid source in packet", false}
	ErrCIDInvalid = Error{6, "Invalid CID/password", true}
	ErrNoSuchCS   = Error{7, "No such callsign", false}
	ErrNoFP       = Error{8, "No flightplan", false}
	ErrNoWeather  = Error{9, "No such weather", false}
	ErrRevision   = Error{10, "Invalid protocol revision", true}
	ErrLevel      = Error{11, "Requested level too high", true}
	ErrServFull   = Error{12, "No more clients", false}
	ErrCSSuspend  = Error{13, "CID/PID suspended", true}
)
