// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"
	"math/rand"
	"time"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/types"
)

// pulse is one transient typing highlight anchored at a matrix coordinate.
type pulse struct {
	key types.KeyCoord
	age time.Duration
	ttl time.Duration
	hue float64 // reactive_rainbow only
}

// resolveReactiveBrightness returns (backdrop, pulseTarget, hardwareCap).
// The hardware write always uses the cap (engine brightness, which policy
// dim/undim drives); backdrop and pulses are scaled down relative to it so
// dim transitions never produce a one-frame brightness flash.
func (w *worker) resolveReactiveBrightness() (int, int, int) {
	eff := types.ClampBrightness(w.params.ReactiveBrightness)
	global := types.ClampBrightness(w.brightness())
	base := 0
	if len(w.params.PerKey) > 0 {
		base = types.ClampBrightness(w.params.PerKeyBrightness)
	}
	return base, eff, global
}

// backdropScale keeps the per-key backdrop at its own target brightness
// under the hardware cap: whichever of the two is smaller bounds the
// displayed level, so the color channel scales by min/max of the pair.
// This is what keeps policy dim/undim transitions free of one-frame
// brightness flashes.
func backdropScale(base, global int) float64 {
	return channelScale(base, global)
}

// pulseScale keeps pulses at their target brightness under the cap.
func pulseScale(eff, global int) float64 {
	return channelScale(eff, global)
}

func channelScale(target, global int) float64 {
	if global <= 0 || target <= 0 {
		return 0
	}
	if target == global {
		return 1
	}
	if target > global {
		return float64(global) / float64(target)
	}
	return float64(target) / float64(global)
}

// reactiveAccent picks the pulse color: the manual accent when configured,
// else the current effect color, else white.
func (w *worker) reactiveAccent() types.Color {
	if w.params.ReactiveUseManualColor && w.params.ReactiveColor != nil {
		return *w.params.ReactiveColor
	}
	if !w.params.Color.IsBlack() {
		return w.params.Color
	}
	return types.Color{R: 255, G: 255, B: 255}
}

// reactiveBase returns the backdrop map: the densified per-key profile, or
// a faint tint of the accent when no profile is set.
func (w *worker) reactiveBase(accent types.Color, tint float64) types.PerKeyMap {
	if len(w.params.PerKey) > 0 {
		return w.params.PerKey.Densify(w.params.Color)
	}
	return types.PerKeyMap{}.Densify(accent.Scale(tint))
}

// reactiveSession bundles the input stream and pulse bookkeeping shared by
// all reactive loops.
type reactiveSession struct {
	w        *worker
	reader   *inputReader
	keymap   Keymap
	pace     float64
	spawnAcc time.Duration
	// synthetic pulses keep the effect animated when no input device is
	// readable.
	synthetic     bool
	syntheticTick time.Duration
}

func newReactiveSession(w *worker) *reactiveSession {
	pace := Pace(w.params.Speed)
	reader := openInputReader(w.engine.log)
	return &reactiveSession{
		w:         w,
		reader:    reader,
		keymap:    w.engine.keymap,
		pace:      pace,
		synthetic: reader == nil,
		syntheticTick: time.Duration(
			math.Max(0.10, 0.45/math.Max(0.1, pace)) * float64(time.Second)),
	}
}

func (s *reactiveSession) close() {
	s.reader.close()
}

// nextPress returns the coordinate of one new key press this frame, if any.
// Unmapped keys (or synthetic pulses) land on random coordinates.
func (s *reactiveSession) nextPress() (types.KeyCoord, bool) {
	if press, ok := s.reader.poll(); ok {
		if k, ok := s.keymap[press.name]; ok {
			return k, true
		}
		return randomKey(), true
	}
	if s.synthetic {
		s.spawnAcc += frameDt
		if s.spawnAcc >= s.syntheticTick {
			s.spawnAcc = 0
			return randomKey(), true
		}
	}
	return types.KeyCoord{}, false
}

func randomKey() types.KeyCoord {
	return types.KeyCoord{
		Row: rand.Intn(types.NumRows),
		Col: rand.Intn(types.NumCols),
	}
}

// agePulses advances and prunes the pulse list.
func agePulses(pulses []pulse) []pulse {
	alive := pulses[:0]
	for i := range pulses {
		pulses[i].age += frameDt
		if pulses[i].age <= pulses[i].ttl {
			alive = append(alive, pulses[i])
		}
	}
	return alive
}

// runReactiveFade: each press lights its key and decays linearly.
func runReactiveFade(w *worker) error {
	return runReactivePulse(w, false)
}

// runReactiveRipple: each press emits an expanding diamond ring.
func runReactiveRipple(w *worker) error {
	return runReactivePulse(w, true)
}

func runReactivePulse(w *worker, ripple bool) error {
	session := newReactiveSession(w)
	defer session.close()

	accent := w.reactiveAccent()
	base := w.reactiveBase(accent, 0.06)
	var pulses []pulse

	for !w.stopped() {
		if key, ok := session.nextPress(); ok {
			pulses = append(pulses, pulse{
				key: key,
				ttl: time.Duration(0.40 / session.pace * float64(time.Second)),
			})
		}
		pulses = agePulses(pulses)

		overlay := make(map[types.KeyCoord]float64)
		for _, p := range pulses {
			progress := p.age.Seconds() / p.ttl.Seconds()
			intensity := 1.0 - progress
			if !ripple {
				if intensity > overlay[p.key] {
					overlay[p.key] = intensity
				}
				continue
			}
			radius := int(math.Round(1 + 5*progress))
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					k := types.KeyCoord{Row: p.key.Row + dr, Col: p.key.Col + dc}
					if !k.Valid() {
						continue
					}
					d := abs(dr) + abs(dc)
					if d > radius {
						continue
					}
					weight := intensity * (1.0 - float64(d)/math.Max(1, float64(radius)))
					if weight > overlay[k] {
						overlay[k] = weight
					}
				}
			}
		}

		if err := w.renderReactive(base, accent, overlay); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runReactiveRainbow: pulses cycle hue as they age over a dark backdrop.
func runReactiveRainbow(w *worker) error {
	session := newReactiveSession(w)
	defer session.close()

	base := w.reactiveBase(types.Color{R: 5, G: 5, B: 5}, 1.0)
	var pulses []pulse
	globalHue := 0.0

	for !w.stopped() {
		if key, ok := session.nextPress(); ok {
			pulses = append(pulses, pulse{
				key: key,
				ttl: time.Duration(0.50 / session.pace * float64(time.Second)),
				hue: globalHue,
			})
		}
		pulses = agePulses(pulses)

		type hueWeight struct {
			weight float64
			hue    float64
		}
		overlay := make(map[types.KeyCoord]hueWeight)
		for _, p := range pulses {
			progress := p.age.Seconds() / p.ttl.Seconds()
			intensity := 1.0 - progress
			hue := math.Mod(p.hue+progress, 1.0)
			radius := int(math.Round(1 + 3*progress))
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					k := types.KeyCoord{Row: p.key.Row + dr, Col: p.key.Col + dc}
					if !k.Valid() {
						continue
					}
					d := abs(dr) + abs(dc)
					if d > radius {
						continue
					}
					weight := intensity * (1.0 - float64(d)/math.Max(1, float64(radius)))
					if prev, ok := overlay[k]; !ok || weight > prev.weight {
						overlay[k] = hueWeight{weight: weight, hue: hue}
					}
				}
			}
		}

		_, eff, global := w.resolveReactiveBrightness()
		ps := pulseScale(eff, global)
		frame := make(types.PerKeyMap, len(base))
		for k, baseRGB := range base {
			if o, ok := overlay[k]; ok {
				pulseRGB := HSVToRGB(o.hue, 1, 1).Scale(ps)
				frame[k] = baseRGB.Mix(pulseRGB, clampWeight(o.weight))
			} else {
				frame[k] = baseRGB
			}
		}
		if err := w.render(frame); err != nil {
			return err
		}
		globalHue = math.Mod(globalHue+0.0055*session.pace, 1.0)
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// runReactiveSnake: presses extend a decaying trail.
func runReactiveSnake(w *worker) error {
	session := newReactiveSession(w)
	defer session.close()

	accent := w.reactiveAccent()
	base := w.reactiveBase(accent, 0.08)

	const maxTrail = 12
	segmentTTL := time.Duration(1.2 / session.pace * float64(time.Second))
	type segment struct {
		key types.KeyCoord
		age time.Duration
	}
	var trail []segment

	for !w.stopped() {
		if key, ok := session.nextPress(); ok {
			trail = append(trail, segment{key: key})
			if len(trail) > maxTrail {
				trail = trail[1:]
			}
		}
		alive := trail[:0]
		for i := range trail {
			trail[i].age += frameDt
			if trail[i].age <= segmentTTL {
				alive = append(alive, trail[i])
			}
		}
		trail = alive

		overlay := make(map[types.KeyCoord]float64)
		for idx, seg := range trail {
			positionFactor := float64(idx+1) / math.Max(1, float64(len(trail)))
			ageFactor := 1.0 - seg.age.Seconds()/segmentTTL.Seconds()
			intensity := positionFactor * ageFactor
			if intensity > overlay[seg.key] {
				overlay[seg.key] = intensity
			}
		}

		if err := w.renderReactive(base, accent, overlay); err != nil {
			return err
		}
		if w.wait(frameDt) {
			return nil
		}
	}
	return nil
}

// renderReactive composes backdrop + pulse overlay under the three-way
// brightness arbitration and writes the frame. Without per-key support the
// overlay collapses to a single global weight on the averaged backdrop.
func (w *worker) renderReactive(base types.PerKeyMap, accent types.Color,
	overlay map[types.KeyCoord]float64) error {

	baseB, effB, global := w.resolveReactiveBrightness()
	bs := backdropScale(baseB, global)
	ps := pulseScale(effB, global)
	if len(w.params.PerKey) == 0 {
		// No per-key backdrop configured; show it at full cap.
		bs = 1
	}
	accentScaled := accent.Scale(ps)

	if !w.engine.caps.PerKey {
		globalWeight := 0.0
		for _, v := range overlay {
			if v > globalWeight {
				globalWeight = v
			}
		}
		avg := base.Average().Scale(bs)
		rgb := avg.Mix(accentScaled, clampWeight(globalWeight))
		rgb = AvoidFullBlack(rgb, rgb, global)
		return w.engine.locked(func(dev backend.KeyboardDevice) error {
			return dev.SetColor(rgb, global)
		})
	}

	frame := make(types.PerKeyMap, len(base))
	for k, baseRGB := range base {
		scaled := baseRGB.Scale(bs)
		if weight, ok := overlay[k]; ok && weight > 0 {
			frame[k] = scaled.Mix(accentScaled, clampWeight(weight))
		} else {
			frame[k] = scaled
		}
	}
	return w.render(frame)
}

func clampWeight(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < 0 {
		return 0
	}
	return x
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
