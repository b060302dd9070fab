// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Matrix dimensions shared by the per-key pipeline. Backends without a real
// matrix still report these so per-key callers have a stable coordinate space.
const (
	NumRows = 6
	NumCols = 21
)

// BrightnessMax is the top of the hardware brightness scale.
const BrightnessMax = 50

// SpeedMax is the top of the UI speed scale (fastest).
const SpeedMax = 10

// Color is an 8-bit RGB triplet.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// String returns the color as rrggbb hex.
func (c Color) String() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// IsBlack returns true if all channels are zero.
func (c Color) IsBlack() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// Mix linearly interpolates from c towards other by t in [0,1], per channel.
func (c Color) Mix(other Color, t float64) Color {
	tt := clamp01(t)
	mixCh := func(a, b uint8) uint8 {
		return uint8(int(float64(a) + (float64(b)-float64(a))*tt + 0.5))
	}
	return Color{
		R: mixCh(c.R, other.R),
		G: mixCh(c.G, other.G),
		B: mixCh(c.B, other.B),
	}
}

// Scale multiplies each channel by s in [0,1].
func (c Color) Scale(s float64) Color {
	ss := clamp01(s)
	scaleCh := func(v uint8) uint8 {
		return uint8(float64(v)*ss + 0.5)
	}
	return Color{R: scaleCh(c.R), G: scaleCh(c.G), B: scaleCh(c.B)}
}

func clamp01(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x
}

// KeyCoord addresses one key on the fixed matrix.
type KeyCoord struct {
	Row int
	Col int
}

// Valid reports whether the coordinate lies inside the matrix.
func (k KeyCoord) Valid() bool {
	return k.Row >= 0 && k.Row < NumRows && k.Col >= 0 && k.Col < NumCols
}

// String returns the "row,col" form used by the config document.
func (k KeyCoord) String() string {
	return fmt.Sprintf("%d,%d", k.Row, k.Col)
}

// ParseKeyCoord parses the "row,col" form. Coordinates outside the matrix
// are rejected.
func ParseKeyCoord(s string) (KeyCoord, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return KeyCoord{}, fmt.Errorf("key coordinate %q: expected \"row,col\"", s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return KeyCoord{}, fmt.Errorf("key coordinate %q: %w", s, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return KeyCoord{}, fmt.Errorf("key coordinate %q: %w", s, err)
	}
	k := KeyCoord{Row: row, Col: col}
	if !k.Valid() {
		return KeyCoord{}, fmt.Errorf("key coordinate %q: outside %dx%d matrix",
			s, NumRows, NumCols)
	}
	return k, nil
}

// PerKeyMap maps key coordinates to colors. It may be sparse at rest;
// rendering densifies it against a base color before any device write.
type PerKeyMap map[KeyCoord]Color

// Densify fills the full matrix with base and overlays the map's entries.
func (m PerKeyMap) Densify(base Color) PerKeyMap {
	full := make(PerKeyMap, NumRows*NumCols)
	for r := 0; r < NumRows; r++ {
		for c := 0; c < NumCols; c++ {
			full[KeyCoord{Row: r, Col: c}] = base
		}
	}
	for k, v := range m {
		if k.Valid() {
			full[k] = v
		}
	}
	return full
}

// Average returns the channel-wise mean of the map, black for an empty map.
func (m PerKeyMap) Average() Color {
	if len(m) == 0 {
		return Color{}
	}
	var rs, gs, bs int
	for _, c := range m {
		rs += int(c.R)
		gs += int(c.G)
		bs += int(c.B)
	}
	n := len(m)
	return Color{R: uint8(rs / n), G: uint8(gs / n), B: uint8(bs / n)}
}

// Signature returns a stable string over the map content, used by the
// reconciler to suppress redundant device writes.
func (m PerKeyMap) Signature() string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]KeyCoord, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Row != keys[j].Row {
			return keys[i].Row < keys[j].Row
		}
		return keys[i].Col < keys[j].Col
	})
	var sb strings.Builder
	for _, k := range keys {
		c := m[k]
		fmt.Fprintf(&sb, "%d,%d=%02x%02x%02x;", k.Row, k.Col, c.R, c.G, c.B)
	}
	return sb.String()
}

// Equal compares two maps entry-wise.
func (m PerKeyMap) Equal(other PerKeyMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ClampBrightness clips a brightness value to the hardware 0..50 scale.
func ClampBrightness(b int) int {
	if b < 0 {
		return 0
	}
	if b > BrightnessMax {
		return BrightnessMax
	}
	return b
}

// ClampSpeed clips a speed value to the UI 0..10 scale.
func ClampSpeed(s int) int {
	if s < 0 {
		return 0
	}
	if s > SpeedMax {
		return SpeedMax
	}
	return s
}
