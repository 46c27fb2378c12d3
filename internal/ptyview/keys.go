// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/ptyview/keys.go
// Summary: Translates tcell key events into the bytes a terminal program expects.

package ptyview

import (
	"github.com/gdamore/tcell/v2"
)

var keySequences = map[tcell.Key]string{
	tcell.KeyUp:         "\x1b[A",
	tcell.KeyDown:       "\x1b[B",
	tcell.KeyRight:      "\x1b[C",
	tcell.KeyLeft:       "\x1b[D",
	tcell.KeyHome:       "\x1b[H",
	tcell.KeyEnd:        "\x1b[F",
	tcell.KeyInsert:     "\x1b[2~",
	tcell.KeyDelete:     "\x1b[3~",
	tcell.KeyPgUp:       "\x1b[5~",
	tcell.KeyPgDn:       "\x1b[6~",
	tcell.KeyF1:         "\x1bOP",
	tcell.KeyF2:         "\x1bOQ",
	tcell.KeyF3:         "\x1bOR",
	tcell.KeyF4:         "\x1bOS",
	tcell.KeyF5:         "\x1b[15~",
	tcell.KeyF6:         "\x1b[17~",
	tcell.KeyF7:         "\x1b[18~",
	tcell.KeyF8:         "\x1b[19~",
	tcell.KeyF9:         "\x1b[20~",
	tcell.KeyF10:        "\x1b[21~",
	tcell.KeyF11:        "\x1b[23~",
	tcell.KeyF12:        "\x1b[24~",
	tcell.KeyEnter:      "\r",
	tcell.KeyTab:        "\t",
	tcell.KeyBacktab:    "\x1b[Z",
	tcell.KeyEsc:        "\x1b",
	tcell.KeyBackspace2: "\x7f",
}

// EncodeKey returns the input bytes for ev, nil when it has none.
func EncodeKey(ev *tcell.EventKey) []byte {
	if seq, ok := keySequences[ev.Key()]; ok {
		if ev.Modifiers()&tcell.ModAlt != 0 && ev.Key() != tcell.KeyEsc {
			return []byte("\x1b" + seq)
		}
		return []byte(seq)
	}
	switch {
	case ev.Key() == tcell.KeyRune:
		b := []byte(string(ev.Rune()))
		if ev.Modifiers()&tcell.ModAlt != 0 {
			return append([]byte{0x1b}, b...)
		}
		return b
	case ev.Key() <= tcell.KeyUS:
		// Control keys carry their byte value.
		return []byte{byte(ev.Key())}
	}
	return nil
}
