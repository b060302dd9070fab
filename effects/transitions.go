// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"

	"github.com/lf-edge/kbdlight/types"
)

// AvoidFullBlack guards transition frames: some firmware interprets (0,0,0)
// as "off" and visibly blinks the keyboard between effects. When an
// intermediate frame computes to pure black but the target is non-black,
// each channel whose target is lit is nudged to 1. A genuine black target
// (or brightness 0) passes through untouched.
func AvoidFullBlack(rgb, target types.Color, brightness int) types.Color {
	if brightness <= 0 {
		return rgb
	}
	if target.IsBlack() {
		return rgb
	}
	if !rgb.IsBlack() {
		return rgb
	}
	out := types.Color{}
	if target.R > 0 {
		out.R = 1
	}
	if target.G > 0 {
		out.G = 1
	}
	if target.B > 0 {
		out.B = 1
	}
	if out.IsBlack() {
		// Target is non-black yet no channel survived; be defensive.
		out.R = 1
	}
	return out
}

// ScaleMapNonZero scales per-key colors without collapsing a non-black key
// to full black while brightness is above zero (the per-frame variant of
// the anti-blink rule).
func ScaleMapNonZero(full types.PerKeyMap, scale float64, brightness int) types.PerKeyMap {
	out := make(types.PerKeyMap, len(full))
	for k, c := range full {
		if c.IsBlack() {
			out[k] = c
			continue
		}
		scaled := c.Scale(scale)
		if scaled.IsBlack() && scale > 0 && brightness > 0 {
			if c.R > 0 {
				scaled.R = 1
			}
			if c.G > 0 {
				scaled.G = 1
			}
			if c.B > 0 {
				scaled.B = 1
			}
		}
		out[k] = scaled
	}
	return out
}

// HSVToRGB converts h,s,v in [0,1] to an 8-bit RGB color.
func HSVToRGB(h, s, v float64) types.Color {
	h = h - math.Floor(h)
	if s <= 0 {
		c := uint8(v*255 + 0.5)
		return types.Color{R: c, G: c, B: c}
	}
	h *= 6
	i := int(math.Floor(h))
	f := h - float64(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return types.Color{
		R: uint8(r*255 + 0.5),
		G: uint8(g*255 + 0.5),
		B: uint8(b*255 + 0.5),
	}
}
