// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"
	"math/rand"
	"time"

	"github.com/lf-edge/kbdlight/types"
)

// twinkleSpark is one sparkle with an ease-out lifetime.
type twinkleSpark struct {
	key   types.KeyCoord
	age   time.Duration
	ttl   time.Duration
	color types.Color
}

// runTwinkle: random vivid sparkles that fade out over the base map.
func runTwinkle(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)

	var sparks []twinkleSpark
	var acc time.Duration
	spawnEvery := time.Duration(0.12 / pace * float64(time.Second))
	if spawnEvery <= 0 {
		spawnEvery = frameDt
	}

	for !w.stopped() {
		acc += frameDt
		for acc >= spawnEvery {
			acc -= spawnEvery
			count := 1
			if pace >= 4.5 {
				count = 2
			}
			for i := 0; i < count; i++ {
				ttl := time.Duration(math.Max(0.10, 0.45/pace) * float64(time.Second))
				sparks = append(sparks, twinkleSpark{
					key: types.KeyCoord{
						Row: rand.Intn(types.NumRows),
						Col: rand.Intn(types.NumCols),
					},
					ttl:   ttl,
					color: HSVToRGB(rand.Float64(), 1, 1),
				})
			}
		}

		alive := sparks[:0]
		for i := range sparks {
			sparks[i].age += frameDt
			if sparks[i].age <= sparks[i].ttl {
				alive = append(alive, sparks[i])
			}
		}
		sparks = alive

		type overlayEntry struct {
			color     types.Color
			intensity float64
		}
		overlay := make(map[types.KeyCoord]overlayEntry)
		for _, s := range sparks {
			x := 1.0 - s.age.Seconds()/s.ttl.Seconds()
			intensity := x * x
			if prev, ok := overlay[s.key]; !ok || intensity > prev.intensity {
				overlay[s.key] = overlayEntry{color: s.color, intensity: intensity}
			}
		}

		frame := make(types.PerKeyMap, len(base))
		for k, baseRGB := range base {
			if o, ok := overlay[k]; ok {
				frame[k] = baseRGB.Mix(o.color, o.intensity)
			} else {
				frame[k] = baseRGB
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

// rainDrop is one falling droplet.
type rainDrop struct {
	col int
	age time.Duration
	ttl time.Duration
}

// runRain: droplets spawn at the top of the deck (row NumRows-1, the F-key
// row) and fall toward row 0 over their lifetime, trailing a short tail.
func runRain(w *worker) error {
	base := w.baseColorMap()
	pace := Pace(w.params.Speed)

	var drops []rainDrop
	var acc time.Duration
	spawnEvery := time.Duration(0.18 / pace * float64(time.Second))
	if spawnEvery <= 0 {
		spawnEvery = frameDt
	}
	rainRGB := types.Color{R: 40, G: 140, B: 255}

	for !w.stopped() {
		acc += frameDt
		if acc >= spawnEvery {
			acc = 0
			drops = append(drops, rainDrop{
				col: rand.Intn(types.NumCols),
				ttl: time.Duration(1.1 / pace * float64(time.Second)),
			})
		}

		overlay := make(map[types.KeyCoord]float64)
		alive := drops[:0]
		for i := range drops {
			drops[i].age += frameDt
			d := drops[i]
			if d.age > d.ttl {
				continue
			}
			progress := d.age.Seconds() / d.ttl.Seconds()
			row := int(math.Round((1.0 - progress) * float64(types.NumRows-1)))
			if row >= 0 && row < types.NumRows {
				// Tail trails behind upwards, toward the top of the deck.
				for tail := 0; tail < 3; tail++ {
					rr := row + tail
					if rr >= types.NumRows {
						break
					}
					weight := math.Max(0, 1.0-float64(tail)*0.35) * (1.0 - progress)
					k := types.KeyCoord{Row: rr, Col: d.col}
					if weight > overlay[k] {
						overlay[k] = weight
					}
				}
			}
			alive = append(alive, d)
		}
		drops = alive

		frame := make(types.PerKeyMap, len(base))
		for k, baseRGB := range base {
			t := overlay[k]
			if t > 1 {
				t = 1
			}
			frame[k] = baseRGB.Mix(rainRGB, t)
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
