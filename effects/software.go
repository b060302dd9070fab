// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"
	"math/rand"
	"time"

	"github.com/lf-edge/kbdlight/types"
)

// loopFunc runs one software effect until stop. A returned error is
// terminal for the worker.
type loopFunc func(w *worker) error

// softwareLoop resolves the catalog entry to its renderer.
func softwareLoop(effect string) loopFunc {
	switch effect {
	case types.EffectRainbowWave:
		return runRainbowWave
	case types.EffectRainbowSwirl:
		return runRainbowSwirl
	case types.EffectSpectrumCycle:
		return runSpectrumCycle
	case types.EffectColorCycle:
		return runColorCycle
	case types.EffectSWBreathing:
		return runBreathing
	case types.EffectFire:
		return runFire
	case types.EffectRandom:
		return runRandom
	case types.EffectRain:
		return runRain
	case types.EffectTwinkle:
		return runTwinkle
	case types.EffectStrobe:
		return runStrobe
	case types.EffectChase:
		return runChase
	case types.EffectReactiveFade:
		return runReactiveFade
	case types.EffectReactiveRipple:
		return runReactiveRipple
	case types.EffectReactiveRbow:
		return runReactiveRainbow
	case types.EffectReactiveSnake:
		return runReactiveSnake
	}
	return nil
}

// runBreathing: smoothstep'd sine for a natural breath, scaled over the
// base map so per-key profiles still read through.
func runBreathing(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)
	phase := 0.0

	for !w.stopped() {
		breath := (math.Sin(phase) + 1.0) / 2.0
		breath = breath * breath * (3.0 - 2.0*breath)
		breath = 0.12 + breath*0.88

		frame := make(types.PerKeyMap, len(base))
		for k, c := range base {
			frame[k] = c.Scale(breath)
		}
		if err := w.render(frame); err != nil {
			return err
		}
		phase += 0.08 * pace
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// heatToRGB maps fire heat to a dark red -> orange -> yellow gradient.
func heatToRGB(h float64) types.Color {
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	if h < 0.5 {
		t := h / 0.5
		return types.Color{R: uint8(255 * t), G: uint8(80 * t)}
	}
	t := (h - 0.5) / 0.5
	return types.Color{R: 255, G: uint8(80 + 175*t), B: uint8(20 * t)}
}

// runFire: heat diffusion with sparks near the bottom rows. Row 0 maps to
// the bottom of the deck (spacebar area), so the fire burns upward toward
// larger row indices.
func runFire(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)

	var heat [types.NumRows][types.NumCols]float64

	for !w.stopped() {
		cooling := 0.06 * pace
		for r := 0; r < types.NumRows; r++ {
			for c := 0; c < types.NumCols; c++ {
				heat[r][c] -= cooling
				if heat[r][c] < 0 {
					heat[r][c] = 0
				}
			}
		}

		sparks := int(2 * pace)
		if sparks < 1 {
			sparks = 1
		}
		sparkRows := types.NumRows
		if sparkRows > 2 {
			sparkRows = 2
		}
		for i := 0; i < sparks; i++ {
			c := rand.Intn(types.NumCols)
			r := rand.Intn(sparkRows)
			heat[r][c] += 0.45 + rand.Float64()*0.45
			if heat[r][c] > 1 {
				heat[r][c] = 1
			}
		}

		for r := 1; r < types.NumRows; r++ {
			for c := 0; c < types.NumCols; c++ {
				below := heat[r-1][c]
				belowL := below
				if c > 0 {
					belowL = heat[r-1][c-1]
				}
				belowR := below
				if c+1 < types.NumCols {
					belowR = heat[r-1][c+1]
				}
				heat[r][c] = (below + belowL + belowR) / 3.0
			}
		}

		frame := make(types.PerKeyMap, len(base))
		for k, baseRGB := range base {
			h := heat[k.Row][k.Col]
			t := h * 0.95
			if t > 1 {
				t = 1
			}
			frame[k] = baseRGB.Mix(heatToRGB(h), t)
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runRandom: frequent smooth cross-fades toward fresh random targets.
func runRandom(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()

	prev := make(types.PerKeyMap, len(base))
	target := make(types.PerKeyMap, len(base))
	for k, c := range base {
		prev[k] = c
		target[k] = c
	}
	t := 1.0
	var nextChange time.Time

	for !w.stopped() {
		now := time.Now()
		if !now.Before(nextChange) {
			for k, c := range target {
				prev[k] = c
			}
			for k := range target {
				c := types.Color{
					R: uint8(rand.Intn(256)),
					G: uint8(rand.Intn(256)),
					B: uint8(rand.Intn(256)),
				}
				// Keep it visible while the backlight is on.
				if c.IsBlack() && w.brightness() > 0 {
					c.R = 1
				}
				target[k] = c
			}
			t = 0
			nextChange = now.Add(time.Duration(0.75 / pace * float64(time.Second)))
		}

		t += dt * 1.8 * pace
		if t > 1 {
			t = 1
		}
		frame := make(types.PerKeyMap, len(target))
		for k := range target {
			frame[k] = prev[k].Mix(target[k], t)
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runRainbowWave: smoothly time-advancing hue gradient across the matrix
// with a slight diagonal bias.
func runRainbowWave(w *worker) error {
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()

	colDen := float64(types.NumCols - 1)
	rowDen := float64(types.NumRows - 1)
	pos := make(map[types.KeyCoord]float64, types.NumRows*types.NumCols)
	for r := 0; r < types.NumRows; r++ {
		for c := 0; c < types.NumCols; c++ {
			pos[types.KeyCoord{Row: r, Col: c}] =
				float64(c)/colDen + 0.18*(float64(r)/rowDen)
		}
	}

	hue := 0.0
	for !w.stopped() {
		hue = math.Mod(hue+dt*0.165*pace, 1.0)
		frame := make(types.PerKeyMap, len(pos))
		for k, p := range pos {
			frame[k] = HSVToRGB(math.Mod(hue+p, 1.0), 1, 1)
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runRainbowSwirl: hue swirl around the matrix center with mild spiral
// distortion by radius.
func runRainbowSwirl(w *worker) error {
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()

	cr := float64(types.NumRows-1) / 2.0
	cc := float64(types.NumCols-1) / 2.0
	type polar struct{ ang, rad float64 }
	coords := make(map[types.KeyCoord]polar, types.NumRows*types.NumCols)
	maxR := 1e-6
	for r := 0; r < types.NumRows; r++ {
		for c := 0; c < types.NumCols; c++ {
			dy := float64(r) - cr
			dx := float64(c) - cc
			ang := math.Mod(math.Atan2(dy, dx)/(2*math.Pi)+1, 1)
			rad := math.Hypot(dx, dy)
			coords[types.KeyCoord{Row: r, Col: c}] = polar{ang: ang, rad: rad}
			if rad > maxR {
				maxR = rad
			}
		}
	}

	hue := 0.0
	for !w.stopped() {
		hue = math.Mod(hue+dt*0.115*pace, 1.0)
		frame := make(types.PerKeyMap, len(coords))
		for k, p := range coords {
			h := math.Mod(hue+p.ang+0.25*(p.rad/maxR), 1.0)
			frame[k] = HSVToRGB(h, 1, 1)
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runSpectrumCycle: uniform hue cycling.
func runSpectrumCycle(w *worker) error {
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()
	hue := 0.0

	for !w.stopped() {
		hue = math.Mod(hue+dt*0.22*pace, 1.0)
		rgb := HSVToRGB(hue, 1, 1)
		frame := types.PerKeyMap{}.Densify(rgb)
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runColorCycle: three phase-shifted sines for a smooth RGB cycle.
func runColorCycle(w *worker) error {
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()
	phase := 0.0

	for !w.stopped() {
		r := (math.Sin(phase) + 1.0) / 2.0
		g := (math.Sin(phase+2.0*math.Pi/3.0) + 1.0) / 2.0
		b := (math.Sin(phase+4.0*math.Pi/3.0) + 1.0) / 2.0
		rgb := types.Color{
			R: uint8(r*255 + 0.5),
			G: uint8(g*255 + 0.5),
			B: uint8(b*255 + 0.5),
		}
		frame := types.PerKeyMap{}.Densify(rgb)
		if err := w.render(frame); err != nil {
			return err
		}
		phase += dt * 1.8 * pace
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runStrobe: rapid on/off flashing. The "off" half keeps at least one lit
// channel per key while the hardware brightness is non-zero; a full-black
// frame would read as "device off" to pollers and blink-prone firmware.
func runStrobe(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)

	halfPeriod := time.Duration(math.Max(0.04, 0.38/pace) * float64(time.Second))
	var elapsed time.Duration
	on := true

	dark := make(types.PerKeyMap, len(base))
	for k, c := range base {
		dark[k] = AvoidFullBlack(types.Color{}, c, w.params.Brightness)
	}

	for !w.stopped() {
		elapsed += frameDt
		if elapsed >= halfPeriod {
			elapsed = 0
			on = !on
		}
		var frame types.PerKeyMap
		if on {
			frame = base
		} else {
			frame = dark
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runChase: moving highlight band across the columns on a wrapping ring.
// In uniform fallback mode a moving band averages out to a constant color,
// so a gentle global pulse keeps it visibly animated.
func runChase(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)
	dt := frameDt.Seconds()

	highlight := w.params.Color
	if highlight.IsBlack() {
		highlight = types.Color{R: 255}
	}
	background := highlight.Scale(0.06)

	pos := 0.0
	const width = 1.6
	perKey := w.engine.caps.PerKey

	for !w.stopped() {
		pos = math.Mod(pos+dt*3.2*pace, float64(types.NumCols))

		if !perKey {
			phase := pos / float64(types.NumCols)
			pulse := 0.35 + 0.65*(0.5+0.5*math.Sin(2*math.Pi*phase))
			rgb := background.Mix(highlight, pulse)
			if err := w.render(types.PerKeyMap{}.Densify(rgb)); err != nil {
				return err
			}
			if w.wait(frameDt) {
				return nil
			}
			continue
		}

		frame := make(types.PerKeyMap, len(base))
		for k := range base {
			d := math.Abs(float64(k.Col) - pos)
			if wrap := float64(types.NumCols) - d; wrap < d {
				d = wrap
			}
			if d <= width {
				frame[k] = background.Mix(highlight, 1.0-d/width)
			} else {
				frame[k] = background
			}
		}
		if err := w.render(frame); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}
