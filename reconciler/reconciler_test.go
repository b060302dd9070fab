// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/config"
	"github.com/lf-edge/kbdlight/devicehandle"
	"github.com/lf-edge/kbdlight/effects"
	"github.com/lf-edge/kbdlight/power"
	"github.com/lf-edge/kbdlight/status"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

// recordingDevice counts the call mix so tests can assert what the
// reconciler drove the engine to do.
type recordingDevice struct {
	mu         sync.Mutex
	turnOffs   int
	setColors  int
	setFrames  int
	setEffects int
	brightness int
}

func (d *recordingDevice) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turnOffs++
	d.brightness = 0
	return nil
}

func (d *recordingDevice) IsOff() (bool, error) { return false, nil }

func (d *recordingDevice) GetBrightness() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brightness, nil
}

func (d *recordingDevice) SetBrightness(b int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = b
	return nil
}

func (d *recordingDevice) SetColor(c types.Color, b int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setColors++
	d.brightness = b
	return nil
}

func (d *recordingDevice) SetKeyColors(m types.PerKeyMap, b int, u bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setFrames++
	d.brightness = b
	return nil
}

func (d *recordingDevice) SetEffect(p types.HardwareEffectPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setEffects++
	return nil
}

func (d *recordingDevice) Close() error { return nil }

func (d *recordingDevice) counts() (int, int, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turnOffs, d.setColors, d.setFrames, d.setEffects
}

type testRig struct {
	dev    *recordingDevice
	store  *config.Store
	engine *effects.Engine
	rec    *Reconciler
}

func newTestRig(t *testing.T, mutate func(li *types.LightingIntent)) *testRig {
	t.Helper()
	log := testLog()
	store, err := config.NewStore(log, t.TempDir())
	require.NoError(t, err)
	if mutate != nil {
		require.NoError(t, store.Mutate(mutate))
	}
	dev := &recordingDevice{}
	handle := devicehandle.New(log, dev)
	caps := types.BackendCapabilities{PerKey: true, Color: true}
	engine := effects.New(log, handle, caps, nil, effects.Keymap{}, nil)
	pub := status.NewPublisher(log)
	rec := New(log, store, engine, pub)
	return &testRig{dev: dev, store: store, engine: engine, rec: rec}
}

// staticIntent keeps the engine worker-free so device call counts stay
// deterministic.
func staticIntent(li *types.LightingIntent) {
	li.Effect = types.EffectNone
	li.Brightness = 25
	li.Color = types.Color{R: 255}
}

func TestApplyIsIdempotent(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()
	_, colors1, _, _ := rig.dev.counts()
	assert.Greater(t, colors1, 0)

	// Re-applying the identical effective state is a no-op at the device.
	rig.rec.Apply()
	rig.rec.Apply()
	_, colors2, _, _ := rig.dev.counts()
	assert.Equal(t, colors1, colors2)
}

func TestResumeKeepsUserForcedOff(t *testing.T) {
	// User explicitly off, system suspends, system resumes: the engine
	// issues turn_off, never a color write, and the state stays off.
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()

	rig.rec.SetUserOff(true)
	offs1, colorsBefore, _, _ := rig.dev.counts()
	assert.Greater(t, offs1, 0)

	rig.rec.OnSleep(power.SleepEnter)
	rig.rec.OnSleep(power.SleepExit)

	state := rig.rec.State()
	assert.True(t, state.UserForcedOff)
	assert.False(t, state.PowerForcedOff)
	assert.Equal(t, 0, state.Brightness())

	_, colorsAfter, _, _ := rig.dev.counts()
	assert.Equal(t, colorsBefore, colorsAfter,
		"resume must not write colors while the user holds the lights off")
}

func TestLidCloseOpenRestores(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()
	_, colors1, _, _ := rig.dev.counts()

	rig.rec.OnLid(power.LidClosed)
	offs, _, _, _ := rig.dev.counts()
	assert.Greater(t, offs, 0)
	assert.True(t, rig.rec.State().PowerForcedOff)

	rig.rec.OnLid(power.LidOpen)
	assert.False(t, rig.rec.State().PowerForcedOff)
	_, colors2, _, _ := rig.dev.counts()
	assert.Greater(t, colors2, colors1, "restore must re-apply the intent")
}

func TestLidPolicyFlagsRespected(t *testing.T) {
	rig := newTestRig(t, func(li *types.LightingIntent) {
		staticIntent(li)
		li.PowerOffOnLidClose = false
	})
	rig.rec.Apply()
	rig.rec.OnLid(power.LidClosed)
	assert.False(t, rig.rec.State().PowerForcedOff)

	rig2 := newTestRig(t, func(li *types.LightingIntent) {
		staticIntent(li)
		li.PowerManagementEnabled = false
	})
	rig2.rec.Apply()
	rig2.rec.OnLid(power.LidClosed)
	assert.False(t, rig2.rec.State().PowerForcedOff)
}

func TestRestoreBrightnessAfterForcedOffWithZeroIntent(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()

	// The hardware keys turned the lights off (intent brightness went to
	// zero, a user off), then the user off is released: the remembered
	// brightness comes back.
	rig.rec.OnHardwareBrightness(0)
	assert.True(t, rig.rec.State().UserForcedOff)

	rig.rec.SetUserOff(false)
	state := rig.rec.State()
	assert.Equal(t, 25, state.Intent.Brightness)
	assert.Equal(t, 25, state.Brightness())
}

func TestConfigChangeWhileUserOffIsStoredNotApplied(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()
	rig.rec.SetUserOff(true)
	offs1, colors1, _, _ := rig.dev.counts()

	li := rig.store.Intent()
	li.Color = types.Color{G: 255}
	require.NoError(t, rig.store.Save(li))
	rig.rec.OnConfigChange(li)

	offs2, colors2, _, _ := rig.dev.counts()
	assert.Equal(t, offs1, offs2)
	assert.Equal(t, colors1, colors2)
	// The stored intent did update.
	assert.Equal(t, types.Color{G: 255}, rig.rec.State().Intent.Color)
}

func TestConfigChangeQueuedDuringSystemForcedOff(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()
	rig.rec.OnLid(power.LidClosed)
	_, colors1, _, _ := rig.dev.counts()

	li := rig.store.Intent()
	li.Color = types.Color{B: 255}
	require.NoError(t, rig.store.Save(li))
	rig.rec.OnConfigChange(li)

	// Nothing applied while the lid holds the lights off.
	_, colors2, _, _ := rig.dev.counts()
	assert.Equal(t, colors1, colors2)

	// Release applies the queued change.
	rig.rec.OnLid(power.LidOpen)
	_, colors3, _, _ := rig.dev.counts()
	assert.Greater(t, colors3, colors2)
	assert.Equal(t, types.Color{B: 255}, rig.rec.State().Intent.Color)
}

func TestIdleDimOverride(t *testing.T) {
	rig := newTestRig(t, func(li *types.LightingIntent) {
		staticIntent(li)
		li.ScreenDimSyncEnabled = true
		li.ScreenDimSyncMode = types.ScreenDimModeDim
		li.ScreenDimSyncTempBrightness = 5
	})
	rig.rec.Apply()

	rig.rec.OnIdle(power.IdleScreenAboutToDim)
	state := rig.rec.State()
	require.NotNil(t, state.DimTempTarget)
	assert.Equal(t, 5, state.Brightness())

	rig.rec.OnIdle(power.IdleScreenAboutToUndim)
	state = rig.rec.State()
	assert.Nil(t, state.DimTempTarget)
	assert.Equal(t, 25, state.Brightness())
}

func TestIdleScreenOffForcesOff(t *testing.T) {
	rig := newTestRig(t, func(li *types.LightingIntent) {
		staticIntent(li)
		li.ScreenDimSyncEnabled = true
	})
	rig.rec.Apply()

	rig.rec.OnIdle(power.IdleScreenOff)
	assert.True(t, rig.rec.State().IdleForcedOff)
	assert.Equal(t, 0, rig.rec.State().Brightness())

	rig.rec.OnIdle(power.IdleScreenOn)
	assert.False(t, rig.rec.State().IdleForcedOff)
	assert.Equal(t, 25, rig.rec.State().Brightness())
}

func TestRapidLidTogglesConverge(t *testing.T) {
	// Lid toggles at ~20 Hz must converge to the state of the last event
	// with no layered fades: the device ends at the intent brightness and
	// subsequent applies are no-ops.
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()

	for i := 0; i < 20; i++ {
		rig.rec.OnLid(power.LidClosed)
		time.Sleep(25 * time.Millisecond)
		rig.rec.OnLid(power.LidOpen)
		time.Sleep(25 * time.Millisecond)
	}

	state := rig.rec.State()
	assert.False(t, state.ForcedOff())
	assert.Equal(t, 25, state.Brightness())

	// Converged: one more reconcile tick changes nothing at the device.
	_, colors1, _, _ := rig.dev.counts()
	rig.rec.Apply()
	_, colors2, _, _ := rig.dev.counts()
	assert.Equal(t, colors1, colors2)

	// And the device brightness settled at the restored intent.
	rig.dev.mu.Lock()
	finalBrightness := rig.dev.brightness
	rig.dev.mu.Unlock()
	assert.Equal(t, 25, finalBrightness)
}

func TestHardwareBrightnessWritesBackToConfig(t *testing.T) {
	rig := newTestRig(t, staticIntent)
	rig.rec.Apply()

	rig.rec.OnHardwareBrightness(40)
	assert.Equal(t, 40, rig.rec.State().Intent.Brightness)
	reloaded, err := rig.store.Reload()
	require.NoError(t, err)
	assert.Equal(t, 40, reloaded.Brightness)
}
