// util/util.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 integer, returning def if it doesn't
// parse. The FSD wire protocol is full of fields that clients leave empty
// or garbled; lenient parsing with a caller-chosen default matches how the
// historical servers treated them.
func AtoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

// AtofDefault is the float analog of AtoiDefault.
func AtofDefault(s string, def float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return v
	}
	return def
}
