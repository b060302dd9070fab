// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/devicehandle"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

// captureDevice records every frame and call for assertions.
type captureDevice struct {
	mu sync.Mutex

	frames     []types.PerKeyMap
	colors     []types.Color
	effects    []types.HardwareEffectPayload
	palette    map[int]types.Color
	userModes  int
	turnOffs   int
	brightness int
}

func newCaptureDevice() *captureDevice {
	return &captureDevice{palette: map[int]types.Color{}}
}

func (d *captureDevice) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turnOffs++
	d.brightness = 0
	return nil
}

func (d *captureDevice) IsOff() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness == 0, nil
}

func (d *captureDevice) GetBrightness() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness, nil
}

func (d *captureDevice) SetBrightness(b int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = b
	return nil
}

func (d *captureDevice) SetColor(c types.Color, b int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.colors = append(d.colors, c)
	d.brightness = b
	return nil
}

func (d *captureDevice) SetKeyColors(m types.PerKeyMap, b int, u bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(types.PerKeyMap, len(m))
	for k, v := range m {
		cp[k] = v
	}
	d.frames = append(d.frames, cp)
	d.brightness = b
	return nil
}

func (d *captureDevice) SetEffect(p types.HardwareEffectPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects = append(d.effects, p)
	return nil
}

func (d *captureDevice) EnableUserMode(b int, save bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userModes++
	return nil
}

func (d *captureDevice) SetPaletteColor(slot int, c types.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.palette[slot] = c
	return nil
}

func (d *captureDevice) Close() error { return nil }

func (d *captureDevice) frameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func (d *captureDevice) frameCopy() []types.PerKeyMap {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.PerKeyMap, len(d.frames))
	copy(out, d.frames)
	return out
}

func perKeyCaps() types.BackendCapabilities {
	return types.BackendCapabilities{
		PerKey: true, PerKeyNative: true, Color: true,
		HardwareEffects: true, Palette: true,
	}
}

func newTestEngine(dev *captureDevice, hwEffects []string) *Engine {
	log := testLog()
	handle := devicehandle.New(log, dev)
	return New(log, handle, perKeyCaps(), hwEffects, referenceKeymap(), nil)
}

func TestStrobeNeverBlanks(t *testing.T) {
	// Strobe at brightness 25 with a red base: every emitted frame keeps at
	// least one channel lit per key, including the "off" half-periods.
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)

	err := e.StartEffect(Params{
		Effect:     types.EffectStrobe,
		Speed:      10,
		Brightness: 25,
		Color:      types.Color{R: 255},
	})
	require.NoError(t, err)

	// Let the worker render through several on/off flips.
	time.Sleep(300 * time.Millisecond)
	e.Stop()

	frames := dev.frameCopy()
	require.NotEmpty(t, frames)
	for i, frame := range frames {
		require.Len(t, frame, types.NumRows*types.NumCols)
		for k, c := range frame {
			assert.False(t, c.IsBlack(),
				"frame %d key %v is full black", i, k)
		}
	}
}

func TestAtMostOneWorker(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)

	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectRainbowWave, Speed: 5, Brightness: 25,
		Color: types.Color{R: 255},
	}))
	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectChase, Speed: 5, Brightness: 25,
		Color: types.Color{R: 255},
	}))
	assert.Equal(t, types.EffectChase, e.CurrentEffect())

	e.Stop()
	assert.Equal(t, "", e.CurrentEffect())

	// After stop no further frames arrive.
	time.Sleep(50 * time.Millisecond)
	n := dev.frameCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, dev.frameCount())
}

func TestUserModeEnabledOncePerWorker(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)

	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectSWBreathing, Speed: 5, Brightness: 25,
		Color: types.Color{G: 200},
	}))
	time.Sleep(150 * time.Millisecond)
	e.Stop()

	assert.GreaterOrEqual(t, dev.frameCount(), 2)
	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, 1, dev.userModes)
}

func TestHardwareEffectDelegation(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, []string{types.EffectRainbow, types.EffectBreathing})

	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectRainbow, Speed: 10, Brightness: 30,
		Color: types.Color{R: 255},
	}))
	dev.mu.Lock()
	require.Len(t, dev.effects, 1)
	payload := dev.effects[0]
	dev.mu.Unlock()
	assert.Equal(t, types.EffectRainbow, payload.Effect)
	// UI speed 10 inverts to hardware 1 (fastest).
	assert.Equal(t, 1, payload.Speed)
	assert.Equal(t, 30, payload.Brightness)
	// No worker for hardware effects.
	assert.Equal(t, 0, dev.frameCount())
}

func TestBreathingProgramsPaletteSlot(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, []string{types.EffectBreathing})

	color := types.Color{R: 12, G: 34, B: 56}
	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectBreathing, Speed: 5, Brightness: 25, Color: color,
	}))
	dev.mu.Lock()
	defer dev.mu.Unlock()
	require.Len(t, dev.effects, 1)
	assert.Equal(t, 1, dev.effects[0].ColorSlot)
	assert.Equal(t, color, dev.palette[1])
}

func TestHardwareEffectFallsBackToSoftware(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil) // backend accelerates nothing

	require.NoError(t, e.StartEffect(Params{
		Effect: types.EffectRainbow, Speed: 5, Brightness: 25,
		Color: types.Color{R: 255},
	}))
	assert.Equal(t, types.EffectRainbowWave, e.CurrentEffect())
	time.Sleep(100 * time.Millisecond)
	e.Stop()
	assert.Greater(t, dev.frameCount(), 0)
}

func TestPerKeyStaticDensifies(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)

	require.NoError(t, e.StartEffect(Params{
		Effect:     types.EffectPerKey,
		Brightness: 25,
		Color:      types.Color{B: 9},
		PerKey:     types.PerKeyMap{{Row: 0, Col: 0}: {R: 255}},
	}))
	frames := dev.frameCopy()
	require.Len(t, frames, 1)
	frame := frames[0]
	require.Len(t, frame, types.NumRows*types.NumCols)
	assert.Equal(t, types.Color{R: 255}, frame[types.KeyCoord{Row: 0, Col: 0}])
	assert.Equal(t, types.Color{B: 9}, frame[types.KeyCoord{Row: 3, Col: 10}])
}

func TestUnknownEffectRejected(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)
	err := e.StartEffect(Params{Effect: "disco_inferno"})
	assert.Error(t, err)
}

func TestTurnOffRepeatedIsSafe(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)
	require.NoError(t, e.TurnOff(false))
	require.NoError(t, e.TurnOff(false))
	assert.Equal(t, 0, e.Brightness())
}

func TestBrightnessFadeGenerationCancellation(t *testing.T) {
	dev := newCaptureDevice()
	e := newTestEngine(dev, nil)
	e.brightness.Store(50)

	// Start a long fade down, then immediately bump the generation with a
	// second change; the first fade must abort rather than layer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.SetBrightness(0, true)
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.SetBrightness(40, false))
	<-done

	// The final brightness is the most recent request.
	assert.Equal(t, 40, e.Brightness())
}
