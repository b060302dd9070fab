// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/types"
)

func TestReactiveBrightnessCap(t *testing.T) {
	// Effective brightness 5 with per_key_brightness=50 and
	// reactive_brightness=50: the hardware write uses 5, backdrop and pulse
	// are both scaled by 5/50 = 0.1.
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)
	e.brightness.Store(5)

	w := &worker{
		engine: e,
		params: Params{
			Effect:             types.EffectReactiveFade,
			Brightness:         5,
			PerKeyBrightness:   50,
			ReactiveBrightness: 50,
			PerKey:             types.PerKeyMap{{Row: 0, Col: 0}: {R: 255}},
			Color:              types.Color{R: 255},
		},
		stopCh: make(chan struct{}),
	}

	base, eff, global := w.resolveReactiveBrightness()
	assert.Equal(t, 50, base)
	assert.Equal(t, 50, eff)
	assert.Equal(t, 5, global)
	assert.InDelta(t, 0.1, backdropScale(base, global), 0.001)
	assert.InDelta(t, 0.1, pulseScale(eff, global), 0.001)

	// The hardware write carries the cap, not the channel targets.
	require.NoError(t, w.renderReactive(
		w.params.PerKey.Densify(w.params.Color),
		types.Color{R: 255},
		map[types.KeyCoord]float64{{Row: 0, Col: 0}: 1.0},
	))
	dev.mu.Lock()
	assert.Equal(t, 5, dev.brightness)
	dev.mu.Unlock()

	// The inverse configuration (cap above the channel targets) scales the
	// channels down to their own dimmer targets.
	e.brightness.Store(50)
	w.params.PerKeyBrightness = 5
	w.params.ReactiveBrightness = 5
	base, eff, global = w.resolveReactiveBrightness()
	assert.InDelta(t, 0.1, backdropScale(base, global), 0.001)
	assert.InDelta(t, 0.1, pulseScale(eff, global), 0.001)
}

func TestReactiveBrightnessCapZero(t *testing.T) {
	assert.Equal(t, 0.0, backdropScale(50, 0))
	assert.Equal(t, 0.0, pulseScale(50, 0))
}

func TestReactiveAccentSelection(t *testing.T) {
	manual := types.Color{G: 77}
	testMatrix := map[string]struct {
		params   Params
		expected types.Color
	}{
		"manual accent wins": {
			params: Params{
				ReactiveUseManualColor: true,
				ReactiveColor:          &manual,
				Color:                  types.Color{R: 255},
			},
			expected: manual,
		},
		"manual flag without color falls through": {
			params: Params{
				ReactiveUseManualColor: true,
				Color:                  types.Color{R: 255},
			},
			expected: types.Color{R: 255},
		},
		"black base defaults to white": {
			params:   Params{},
			expected: types.Color{R: 255, G: 255, B: 255},
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		w := &worker{params: test.params}
		assert.Equal(t, test.expected, w.reactiveAccent())
	}
}

func TestReactiveSyntheticPulses(t *testing.T) {
	// Without an input device the synthetic spawner keeps the effect
	// animated: frames must differ over time.
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)

	require.NoError(t, e.StartEffect(Params{
		Effect:             types.EffectReactiveFade,
		Speed:              10,
		Brightness:         25,
		ReactiveBrightness: 50,
		Color:              types.Color{R: 255},
	}))
	time.Sleep(400 * time.Millisecond)
	e.Stop()

	frames := dev.frameCopy()
	require.GreaterOrEqual(t, len(frames), 2)
	changed := false
	first := frames[0]
	for _, frame := range frames[1:] {
		if !first.Equal(frame) {
			changed = true
			break
		}
	}
	assert.True(t, changed, "synthetic spawner produced no animation")
}

func TestAgePulses(t *testing.T) {
	pulses := []pulse{
		{ttl: 10 * frameDt},
		{ttl: frameDt / 2},
	}
	pulses = agePulses(pulses)
	assert.Len(t, pulses, 1)
}
