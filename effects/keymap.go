// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lf-edge/kbdlight/types"
)

// Keymap resolves calibrated key ids (e.g. "a", "esc", "lshift") to matrix
// coordinates. Reactive effects fall back to random coordinates for keys
// not present in the map.
type Keymap map[string]types.KeyCoord

// KeymapFileName inside the config directory. Written by the calibrator GUI.
const KeymapFileName = "keymap.json"

// LoadKeymap reads the calibrated keymap, returning the built-in reference
// layout when no calibration exists.
func LoadKeymap(configDir string) Keymap {
	path := filepath.Join(configDir, KeymapFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return referenceKeymap()
	}
	var raw map[string][2]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return referenceKeymap()
	}
	km := make(Keymap, len(raw))
	for name, rc := range raw {
		k := types.KeyCoord{Row: rc[0], Col: rc[1]}
		if k.Valid() {
			km[strings.ToLower(name)] = k
		}
	}
	if len(km) == 0 {
		return referenceKeymap()
	}
	return km
}

// evdev key codes for the keys the reference layout covers
// (linux/input-event-codes.h).
const (
	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyGrave      = 41
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyF1         = 59
	keyF10        = 68
	keyF11        = 87
	keyF12        = 88
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyHome       = 102
	keyUp         = 103
	keyPgUp       = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPgDn       = 109
	keyInsert     = 110
	keyDelete     = 111
	keyLeftMeta   = 125
)

// evdevKeyName translates an evdev key code into a calibrated key id.
// Unknown codes return "".
func evdevKeyName(code uint16) string {
	switch code {
	case keyEsc:
		return "esc"
	case keyBackspace:
		return "backspace"
	case keyTab:
		return "tab"
	case keyEnter:
		return "enter"
	case keyLeftCtrl:
		return "lctrl"
	case keyGrave:
		return "grave"
	case keyLeftShift:
		return "lshift"
	case keyRightShift:
		return "rshift"
	case keyLeftAlt:
		return "lalt"
	case keySpace:
		return "space"
	case keyCapsLock:
		return "caps"
	case keyRightCtrl:
		return "rctrl"
	case keyRightAlt:
		return "ralt"
	case keyLeftMeta:
		return "lwin"
	case keyHome:
		return "home"
	case keyUp:
		return "up"
	case keyPgUp:
		return "pgup"
	case keyLeft:
		return "left"
	case keyRight:
		return "right"
	case keyEnd:
		return "end"
	case keyDown:
		return "down"
	case keyPgDn:
		return "pgdn"
	case keyInsert:
		return "ins"
	case keyDelete:
		return "del"
	}
	// Number row: KEY_1..KEY_0 are codes 2..11.
	if code >= 2 && code <= 10 {
		return string(rune('1' + code - 2))
	}
	if code == 11 {
		return "0"
	}
	// QWERTY rows.
	qwerty := map[uint16]string{
		16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u",
		23: "i", 24: "o", 25: "p", 26: "lbracket", 27: "rbracket",
		30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h", 36: "j",
		37: "k", 38: "l", 39: "semicolon", 40: "quote", 43: "bslash",
		44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n", 50: "m",
		51: "comma", 52: "dot", 53: "slash",
	}
	if name, ok := qwerty[code]; ok {
		return name
	}
	if code >= keyF1 && code <= keyF10 {
		return fmt.Sprintf("f%d", code-keyF1+1)
	}
	if code == keyF11 {
		return "f11"
	}
	if code == keyF12 {
		return "f12"
	}
	return ""
}

// referenceKeymap is the uncalibrated fallback for the 6x21 matrix. Row 0
// is the bottom of the deck (spacebar area), row 5 the F-key row, matching
// the controller's coordinate system.
func referenceKeymap() Keymap {
	km := Keymap{}
	place := func(row int, names []string, startCol int) {
		for i, name := range names {
			col := startCol + i
			if col >= types.NumCols {
				break
			}
			km[name] = types.KeyCoord{Row: row, Col: col}
		}
	}
	place(5, []string{"esc", "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8",
		"f9", "f10", "f11", "f12", "prtsc", "ins", "del", "home", "end",
		"pgup", "pgdn"}, 0)
	place(4, []string{"grave", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		"0", "minus", "equal", "backspace"}, 0)
	place(3, []string{"tab", "q", "w", "e", "r", "t", "y", "u", "i", "o",
		"p", "lbracket", "rbracket", "bslash"}, 0)
	place(2, []string{"caps", "a", "s", "d", "f", "g", "h", "j", "k", "l",
		"semicolon", "quote", "enter"}, 0)
	place(1, []string{"lshift", "z", "x", "c", "v", "b", "n", "m", "comma",
		"dot", "slash", "rshift"}, 0)
	place(0, []string{"lctrl", "lwin", "lalt", "space", "ralt", "rctrl",
		"left", "up", "down", "right"}, 0)
	// The space bar spans several cells; anchor it near the middle.
	km["space"] = types.KeyCoord{Row: 0, Col: 7}
	return km
}
