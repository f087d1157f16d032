// client/checkers.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package client

import "github.com/openfsd/openfsd/math"

// A Checker decides whether a broadcast originating at from should be
// delivered to to. Checkers are pure; they read position snapshots and
// never mutate the clients.
type Checker func(from, to *Client) bool

// RangeChecker delivers when both endpoints have a usable position and are
// within r nautical miles of each other.
func RangeChecker(r float32) Checker {
	return func(from, to *Client) bool {
		pf, okf := from.Position()
		pt, okt := to.Position()
		return okf && okt && math.NMDistance2LL(pf, pt) < r
	}
}

// PositionChecker is the predicate for position-report broadcasts: an ATC
// recipient sees traffic within its declared visual range, two pilots see
// each other within the sum of their ranges, and mixed pairs use the
// larger of the two ranges.
func PositionChecker(from, to *Client) bool {
	var r float32
	switch {
	case to.Type == ATC:
		r = float32(to.VisualRange())
	case from.Type == Pilot && to.Type == Pilot:
		r = from.Range() + to.Range()
	default:
		r = max(from.Range(), to.Range())
	}
	return RangeChecker(r)(from, to)
}

// MessageChecker is like PositionChecker except that an ATC recipient's
// declared visual range is not consulted; only pilot pairs get the summed
// range.
func MessageChecker(from, to *Client) bool {
	var r float32
	if from.Type == Pilot && to.Type == Pilot {
		r = from.Range() + to.Range()
	} else {
		r = max(from.Range(), to.Range())
	}
	return RangeChecker(r)(from, to)
}

// AtChecker handles @-prefixed destinations: delivery within the sender's
// own range.
func AtChecker(from, to *Client) bool {
	return RangeChecker(from.Range())(from, to)
}

// AllATCChecker matches ATC recipients.
func AllATCChecker(from, to *Client) bool {
	return to.Type == ATC
}

// AllPilotChecker matches what the historical FSD delivered for "*P"
// multicasts, which is ATC recipients, not pilots. Keep the behavior;
// clients in the wild have adapted to it.
func AllPilotChecker(from, to *Client) bool {
	return to.Type == ATC
}

// Composed returns the conjunction of the given checkers.
func Composed(checkers ...Checker) Checker {
	return func(from, to *Client) bool {
		for _, c := range checkers {
			if !c(from, to) {
				return false
			}
		}
		return true
	}
}
