// fsd/codec.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fsd

import (
	"bytes"
	"strings"
)

// Packets are colon-delimited byte strings terminated by CRLF. The command
// head is glued onto the first field with no separator, so
// MakePacket("#TM", "server", "N123", "hi") is "#TMserver:N123:hi".

const PacketDelimiter = ':'

var LineEnding = []byte("\r\n")

// MakePacket encodes a head and fields into a packet without the trailing
// CRLF.
func MakePacket(head string, fields ...string) []byte {
	n := len(head)
	for _, f := range fields {
		n += len(f) + 1
	}
	b := make([]byte, 0, n)
	b = append(b, head...)
	for i, f := range fields {
		if i > 0 {
			b = append(b, PacketDelimiter)
		}
		b = append(b, f...)
	}
	return b
}

// BreakPacket splits a packet into its command head and fields. If no known
// head prefixes the first field, ok is false and fields holds the original
// colon-split fields, head included.
func BreakPacket(line []byte) (head string, fields []string, ok bool) {
	first := line
	if idx := bytes.IndexByte(line, PacketDelimiter); idx != -1 {
		first = line[:idx]
	}

	for _, cmd := range allCommands {
		if len(first) >= len(cmd) && string(first[:len(cmd)]) == cmd {
			head = cmd
			break
		}
	}

	fields = strings.Split(string(line), string(rune(PacketDelimiter)))
	if head == "" {
		return "", fields, false
	}
	fields[0] = fields[0][len(head):]
	return head, fields, true
}
