// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"math"
	"time"

	"github.com/lf-edge/kbdlight/types"
)

// frameDt is the software rendering tick (~60 fps).
const frameDt = time.Second / 60

// paceMin/paceMax bound the speed multiplier applied to animation rates.
const (
	paceMin = 0.25
	paceMax = 10.0
)

// Pace maps the UI speed (0..10) to an animation rate multiplier. The curve
// is quadratic: users expect speed 10 to be several times faster than
// speed 5, so the top end gets most of the range.
func Pace(speed int) float64 {
	s := types.ClampSpeed(speed)
	t := float64(s) / 10.0
	t = t * t
	return paceMin + (paceMax-paceMin)*t
}

// ChooseSteps picks an interpolation step count with a soft FPS cap. More
// steps are smoother but each step is a device write.
func ChooseSteps(duration time.Duration, maxSteps int, targetFPS float64) int {
	if duration <= 0 {
		return 1
	}
	if maxSteps < 1 {
		maxSteps = 1
	}
	if maxSteps > 20 {
		maxSteps = 20
	}
	if targetFPS < 1 {
		targetFPS = 1
	}
	const minDt = 15 * time.Millisecond

	steps := int(math.Round(duration.Seconds() * targetFPS))
	if steps < 2 {
		steps = 2
	}
	if steps > maxSteps {
		steps = maxSteps
	}
	if duration/time.Duration(steps) < minDt {
		steps = int(duration / minDt)
		if steps < 2 {
			steps = 2
		}
		if steps > maxSteps {
			steps = maxSteps
		}
	}
	return steps
}

// BrightnessFactor converts the hardware brightness scale (0..50) to 0..1.
func BrightnessFactor(brightness int) float64 {
	return float64(types.ClampBrightness(brightness)) / float64(types.BrightnessMax)
}
