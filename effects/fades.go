// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"
	"time"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/types"
)

// fadeDuration is the cosmetic transition length between states.
const fadeDuration = 60 * time.Millisecond

// fadeUniform steps the uniform color from->to with linear channel
// interpolation. Intermediate frames are guarded against full black, and
// brightness is kept off zero during the transition so hardware pollers do
// not read the device as "off" mid-fade. Best-effort: device errors end the
// fade silently (the following real write will surface them).
func (e *Engine) fadeUniform(from, to types.Color, brightness int,
	duration time.Duration) {

	if from == to {
		return
	}
	steps := ChooseSteps(duration, 18, 45.0)
	dt := duration / time.Duration(steps)

	effective := types.ClampBrightness(brightness)
	if effective > 0 && effective < 1 {
		effective = 1
	}

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c := from.Mix(to, t)
		c = AvoidFullBlack(c, to, effective)
		err := e.locked(func(dev backend.KeyboardDevice) error {
			return dev.SetColor(c, effective)
		})
		if err != nil {
			return
		}
		time.Sleep(dt)
	}
}

// fadeInPerKey scales the densified per-key map up from dark to reduce
// harsh transitions, enabling user mode once up front.
func (e *Engine) fadeInPerKey(p Params) {
	if len(p.PerKey) == 0 {
		return
	}
	full := p.PerKey.Densify(p.Color)
	steps := ChooseSteps(fadeDuration, 12, 50.0)
	dt := fadeDuration / time.Duration(steps)

	err := e.locked(func(dev backend.KeyboardDevice) error {
		if um, ok := dev.(backend.UserModeDevice); ok {
			return um.EnableUserMode(p.Brightness, false)
		}
		return nil
	})
	if err != nil {
		return
	}

	for i := 1; i <= steps; i++ {
		scale := float64(i) / float64(steps)
		frame := ScaleMapNonZero(full, scale, p.Brightness)
		err := e.locked(func(dev backend.KeyboardDevice) error {
			return dev.SetKeyColors(frame, p.Brightness, false)
		})
		if err != nil {
			return
		}
		time.Sleep(dt)
	}
}

// fadeBrightness steps the hardware brightness monotonically from start to
// end. In-flight fades observing a stale generation token abort silently;
// this is what keeps rapid lid/policy flips from layering fades.
func (e *Engine) fadeBrightness(start, end int, token int64,
	duration time.Duration) {

	start = types.ClampBrightness(start)
	end = types.ClampBrightness(end)
	if start == end {
		return
	}
	steps := ChooseSteps(duration, 20, 60.0)
	dt := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if e.fadeGen.Load() != token {
			return
		}
		t := float64(i) / float64(steps)
		val := start + int(math.Round(float64(end-start)*t))
		if val == start && i < steps {
			continue
		}
		e.brightness.Store(int32(val))
		err := e.locked(func(dev backend.KeyboardDevice) error {
			return dev.SetBrightness(val)
		})
		if err != nil {
			return
		}
		time.Sleep(dt)
	}
}
