// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package effects implements the animation engine: one worker goroutine at
// a time renders software effects as per-frame color grids, hardware
// effects are delegated to the controller, and transitions fade instead of
// snapping.
package effects

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/devicehandle"
	"github.com/lf-edge/kbdlight/types"
)

// workerJoinTimeout bounds how long lifecycle operations wait for the
// previous worker. A missed join leaves the stop flag set; the stale worker
// exits on its next tick and no new worker spawns until it does.
const workerJoinTimeout = 2 * time.Second

// Params is the full input of one StartEffect call.
type Params struct {
	Effect                 string
	Speed                  int
	Brightness             int
	Color                  types.Color
	PerKey                 types.PerKeyMap
	PerKeyBrightness       int
	ReactiveColor          *types.Color
	ReactiveUseManualColor bool
	ReactiveBrightness     int
}

// Engine owns at most one worker goroutine and all device-facing rendering.
// The permission callback is an explicit constructor argument; it drives
// the one-shot desktop notification and must be cheap.
type Engine struct {
	log          *base.LogObject
	handle       *devicehandle.Handle
	caps         types.BackendCapabilities
	hwEffects    map[string]bool
	onPermission func(error)
	keymap       Keymap

	mu            sync.Mutex
	params        Params
	currentEffect string
	stopCh        chan struct{}
	doneCh        chan struct{}
	prevDone      chan struct{}

	brightness atomic.Int32
	fadeGen    atomic.Int64
}

// New creates the engine for the selected backend.
func New(log *base.LogObject, handle *devicehandle.Handle,
	caps types.BackendCapabilities, hwEffectList []string,
	keymap Keymap, onPermission func(error)) *Engine {

	hw := make(map[string]bool, len(hwEffectList))
	for _, name := range hwEffectList {
		hw[name] = true
	}
	if onPermission == nil {
		onPermission = func(error) {}
	}
	e := &Engine{
		log:          log,
		handle:       handle,
		caps:         caps,
		hwEffects:    hw,
		onPermission: onPermission,
		keymap:       keymap,
	}
	e.brightness.Store(25)
	return e
}

// CurrentEffect returns the effect the engine believes is running.
func (e *Engine) CurrentEffect() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEffect
}

// Brightness returns the live hardware brightness cap used by workers.
func (e *Engine) Brightness() int {
	return int(e.brightness.Load())
}

// Stop signals the current worker and joins it. On a missed join deadline
// it logs and returns with the stop signal still set: the stale worker
// exits on its own, and StartEffect will not spawn until it has.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh := e.stopCh
	doneCh := e.doneCh
	e.stopCh = nil
	e.doneCh = nil
	e.currentEffect = ""
	e.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(workerJoinTimeout):
		e.log.Warnf("effect worker did not stop within %v", workerJoinTimeout)
		e.mu.Lock()
		e.prevDone = doneCh
		e.mu.Unlock()
	}
}

// previousWorkerDone reports whether a worker that missed its join deadline
// has since exited. Until it has, no new worker may spawn.
func (e *Engine) previousWorkerDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prevDone == nil {
		return true
	}
	select {
	case <-e.prevDone:
		e.prevDone = nil
		return true
	default:
		return false
	}
}

// StartEffect stops any current effect and starts the requested one.
func (e *Engine) StartEffect(p Params) error {
	prevColor := e.snapshotColor()
	e.Stop()
	if !e.previousWorkerDone() {
		e.log.Warnf("previous effect worker still running; not starting %s",
			p.Effect)
		return fmt.Errorf("previous effect worker still running")
	}

	p.Effect = types.NormalizeEffectName(p.Effect)
	if !KnownEffect(p.Effect) {
		return fmt.Errorf("unknown effect %q", p.Effect)
	}
	p.Speed = types.ClampSpeed(p.Speed)
	p.Brightness = types.ClampBrightness(p.Brightness)
	p.ReactiveBrightness = types.ClampBrightness(p.ReactiveBrightness)
	p.PerKeyBrightness = types.ClampBrightness(p.PerKeyBrightness)

	// A backend without hardware acceleration still renders the catalog
	// entry, just in software.
	if HardwareEffects[p.Effect] && !e.hwEffects[p.Effect] {
		p.Effect = softwareFallback(p.Effect)
	}

	e.mu.Lock()
	e.params = p
	e.currentEffect = p.Effect
	e.mu.Unlock()
	e.brightness.Store(int32(p.Brightness))

	switch {
	case p.Effect == types.EffectNone:
		e.fadeUniform(prevColor, p.Color, p.Brightness, fadeDuration)
		return e.writeUniform(p.Color, p.Brightness)
	case p.Effect == types.EffectPerKey:
		return e.applyPerKeyStatic(p)
	case e.hwEffects[p.Effect]:
		return e.startHardwareEffect(p)
	default:
		return e.startSoftwareEffect(p, prevColor)
	}
}

// TurnOff stops the worker and blanks the device, optionally fading down
// first.
func (e *Engine) TurnOff(fade bool) error {
	token := e.fadeGen.Add(1)
	e.Stop()
	prev := e.Brightness()
	if fade && prev > 1 {
		e.fadeBrightness(prev, 1, token, fadeDuration)
	}
	e.brightness.Store(0)
	return e.locked(func(dev backend.KeyboardDevice) error {
		return dev.TurnOff()
	})
}

// SetBrightness changes the hardware brightness without restarting the
// effect, optionally fading. Each call bumps the fade generation so rapid
// policy changes cannot layer conflicting fades.
func (e *Engine) SetBrightness(brightness int, fade bool) error {
	token := e.fadeGen.Add(1)
	target := types.ClampBrightness(brightness)
	prev := e.Brightness()

	if fade && target != prev {
		end := target
		if target == 0 && prev > 1 {
			// Hold at 1 until the final off write; firmware blinks on 0.
			end = 1
		}
		e.fadeBrightness(prev, end, token, fadeDuration)
	}
	if e.fadeGen.Load() != token {
		// A newer brightness change superseded this one mid-fade.
		return nil
	}
	e.brightness.Store(int32(target))
	return e.locked(func(dev backend.KeyboardDevice) error {
		return dev.SetBrightness(target)
	})
}

// locked proxies to the device handle.
func (e *Engine) locked(fn func(dev backend.KeyboardDevice) error) error {
	return e.handle.Locked(fn)
}

func (e *Engine) snapshotColor() types.Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Color
}

// writeUniform writes a single static color frame.
func (e *Engine) writeUniform(color types.Color, brightness int) error {
	return e.locked(func(dev backend.KeyboardDevice) error {
		return dev.SetColor(color, brightness)
	})
}

// applyPerKeyStatic densifies the per-key map against the base color and
// writes it once. The controller interprets missing cells as off, so sparse
// maps never reach the hardware.
func (e *Engine) applyPerKeyStatic(p Params) error {
	full := p.PerKey.Densify(p.Color)
	return e.locked(func(dev backend.KeyboardDevice) error {
		if um, ok := dev.(backend.UserModeDevice); ok {
			if err := um.EnableUserMode(p.Brightness, true); err != nil {
				return err
			}
		}
		return dev.SetKeyColors(full, p.Brightness, false)
	})
}

// startHardwareEffect builds the payload and delegates to the controller.
// Breathing programs palette slot 1 with the current color and references
// that slot; other effects run the controller's own palette.
func (e *Engine) startHardwareEffect(p Params) error {
	payload := types.HardwareEffectPayload{
		Effect:     p.Effect,
		Speed:      hwSpeedFromUI(p.Speed),
		Brightness: p.Brightness,
	}
	return e.locked(func(dev backend.KeyboardDevice) error {
		if p.Effect == types.EffectBreathing {
			if pal, ok := dev.(backend.PaletteDevice); ok {
				if err := pal.SetPaletteColor(1, p.Color); err != nil {
					return err
				}
				payload.ColorSlot = 1
			}
		}
		return dev.SetEffect(payload)
	})
}

// startSoftwareEffect fades toward the effect's starting color and spawns
// the worker.
func (e *Engine) startSoftwareEffect(p Params, prevColor types.Color) error {
	loop := softwareLoop(p.Effect)
	if loop == nil {
		return fmt.Errorf("unhandled software effect %q", p.Effect)
	}

	if len(p.PerKey) > 0 && e.caps.PerKey {
		e.fadeInPerKey(p)
	} else {
		e.fadeUniform(prevColor, softwareStartColor(p), p.Brightness, fadeDuration)
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	e.mu.Lock()
	e.stopCh = stopCh
	e.doneCh = doneCh
	e.mu.Unlock()

	w := &worker{
		engine: e,
		params: p,
		stopCh: stopCh,
	}
	go func() {
		defer close(doneCh)
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Errorf("effect worker panicked: %v", rec)
			}
		}()
		if err := loop(w); err != nil {
			w.handleTerminalError(err)
		}
	}()
	return nil
}

// softwareStartColor picks the color the pre-effect fade targets.
func softwareStartColor(p Params) types.Color {
	switch p.Effect {
	case types.EffectRainbowWave, types.EffectRainbowSwirl,
		types.EffectSpectrumCycle, types.EffectColorCycle:
		return types.Color{R: 255}
	default:
		if p.Color.IsBlack() {
			return types.Color{R: 255}
		}
		return p.Color
	}
}

// hwSpeedFromUI inverts the UI scale onto the controller scale (lower is
// faster): hw = 11 - ui, clamped to [1,10].
func hwSpeedFromUI(ui int) int {
	hw := 11 - types.ClampSpeed(ui)
	if hw < 1 {
		hw = 1
	}
	if hw > 10 {
		hw = 10
	}
	return hw
}

// worker carries the frame-local state of one software effect run. Its
// color maps are owned by the goroutine and never shared.
type worker struct {
	engine *Engine
	params Params
	stopCh chan struct{}

	userModeEnabled bool
}

// stopped reports whether the stop signal fired.
func (w *worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// wait sleeps one frame, returning early (true) on stop.
func (w *worker) wait(d time.Duration) bool {
	select {
	case <-w.stopCh:
		return true
	case <-time.After(d):
		return false
	}
}

// brightness is the live hardware cap (policy dims mutate it mid-effect).
func (w *worker) brightness() int {
	return w.engine.Brightness()
}

// baseColorMap expands per-key overrides (or the uniform base color) across
// the full matrix.
func (w *worker) baseColorMap() types.PerKeyMap {
	base := w.params.Color
	if base.IsBlack() {
		base = types.Color{R: 255}
	}
	if len(w.params.PerKey) == 0 {
		return types.PerKeyMap{}.Densify(base)
	}
	return w.params.PerKey.Densify(base)
}

// render writes one frame: per-key when the device supports it (user mode
// enabled exactly once to avoid per-frame flicker), otherwise a uniform
// write of the map average guarded against full black.
func (w *worker) render(colorMap types.PerKeyMap) error {
	brightness := w.brightness()
	if w.engine.caps.PerKey {
		return w.engine.locked(func(dev backend.KeyboardDevice) error {
			if !w.userModeEnabled {
				if um, ok := dev.(backend.UserModeDevice); ok {
					if err := um.EnableUserMode(brightness, false); err != nil {
						return err
					}
				}
				w.userModeEnabled = true
			}
			return dev.SetKeyColors(colorMap, brightness, false)
		})
	}

	avg := colorMap.Average()
	avg = AvoidFullBlack(avg, avg, brightness)
	return w.engine.locked(func(dev backend.KeyboardDevice) error {
		return dev.SetColor(avg, brightness)
	})
}

// handleTerminalError implements the worker failure policy: permission
// errors notify once and end the worker; disconnects flag the handle
// unavailable; anything else is logged with context. The process never
// crashes on lighting failures.
func (w *worker) handleTerminalError(err error) {
	switch {
	case types.IsPermissionDenied(err):
		w.engine.log.Warnf("permission denied while applying effect: %v", err)
		w.engine.onPermission(err)
	case types.IsDeviceDisconnected(err):
		w.engine.log.Warnf("keyboard device disconnected while applying effect: %v", err)
		w.engine.handle.MarkUnavailable()
	default:
		w.engine.log.Errorf("effect worker failed (%s): %v",
			w.params.Effect, err)
	}
}
