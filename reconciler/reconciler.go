// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reconciler combines the user's lighting intent with observer
// events into one effective state and applies it through the effects
// engine. The apply step is the single choke point guarding the device
// against poller thrash: identical effective states are never re-applied.
package reconciler

import (
	"sync"
	"time"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/config"
	"github.com/lf-edge/kbdlight/effects"
	"github.com/lf-edge/kbdlight/power"
	"github.com/lf-edge/kbdlight/status"
	"github.com/lf-edge/kbdlight/types"
)

// defaultRestoreBrightness is used when restoring from forced-off with no
// remembered brightness.
const defaultRestoreBrightness = 25

// Reconciler owns the effective state machine.
type Reconciler struct {
	log    *base.LogObject
	store  *config.Store
	engine *effects.Engine
	pub    *status.Publisher

	mu          sync.Mutex
	state       types.EffectiveState
	lastApplied *types.ApplySignature
	// lastBrightness remembers the last non-zero brightness for restores.
	lastBrightness int
	// pendingConfig queues a config change that arrived while a system
	// source forced the lights off; it applies on release.
	pendingConfig bool
}

// New creates the reconciler with the intent loaded from the store.
func New(log *base.LogObject, store *config.Store, engine *effects.Engine,
	pub *status.Publisher) *Reconciler {

	r := &Reconciler{
		log:            log,
		store:          store,
		engine:         engine,
		pub:            pub,
		lastBrightness: defaultRestoreBrightness,
	}
	r.state.Intent = store.Intent()
	if b := r.state.Intent.Brightness; b > 0 {
		r.lastBrightness = b
	}
	return r
}

// State returns a copy of the current effective state.
func (r *Reconciler) State() types.EffectiveState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Apply recomputes the signature and drives the engine when it changed.
func (r *Reconciler) Apply() {
	r.mu.Lock()
	state := r.state
	sig := state.Signature()
	if r.lastApplied != nil && *r.lastApplied == sig {
		r.mu.Unlock()
		return
	}
	r.lastApplied = &sig
	r.mu.Unlock()

	r.pub.SetEffectiveState(state)
	r.pub.Publish(status.Notification{
		Kind:    status.NotifyStateChange,
		Summary: "lighting state changed",
	})

	if state.ForcedOff() {
		r.log.Functionf("apply: forced off (mask user=%t power=%t idle=%t dim=%t)",
			state.UserForcedOff, state.PowerForcedOff,
			state.IdleForcedOff, state.DimScreenForcedOff)
		if err := r.engine.TurnOff(true); err != nil {
			r.recordError(err)
		}
		return
	}

	if state.DimTempTarget != nil {
		target := types.ClampBrightness(*state.DimTempTarget)
		r.log.Functionf("apply: dim override brightness=%d", target)
		if err := r.engine.SetBrightness(target, true); err != nil {
			r.recordError(err)
		}
		return
	}

	li := state.Intent
	if li.Brightness == 0 {
		if err := r.engine.TurnOff(false); err != nil {
			r.recordError(err)
		}
		return
	}
	r.log.Functionf("apply: effect=%s speed=%d brightness=%d",
		li.Effect, li.Speed, li.Brightness)
	err := r.engine.StartEffect(effects.Params{
		Effect:                 li.Effect,
		Speed:                  li.Speed,
		Brightness:             li.Brightness,
		Color:                  li.Color,
		PerKey:                 li.PerKey,
		PerKeyBrightness:       li.PerKeyBrightness,
		ReactiveColor:          li.ReactiveColor,
		ReactiveUseManualColor: li.ReactiveUseManualColor,
		ReactiveBrightness:     li.ReactiveBrightness,
	})
	if err != nil {
		r.recordError(err)
	} else {
		r.recordError(nil)
	}
}

func (r *Reconciler) recordError(err error) {
	r.pub.SetLastError(err)
	if err != nil {
		r.log.Warnf("apply failed: %v", err)
	}
}

// systemForcedOff reports whether a non-user source holds the mask.
func (r *Reconciler) systemForcedOff() bool {
	return r.state.PowerForcedOff || r.state.IdleForcedOff ||
		r.state.DimScreenForcedOff
}

// OnConfigChange ingests an externally written document. While the user
// holds the lights off the new intent is stored but not applied (the user
// is never fought); while a system source holds them off the change queues
// and applies on release.
func (r *Reconciler) OnConfigChange(li types.LightingIntent) {
	r.mu.Lock()
	r.state.Intent = li
	if li.Brightness > 0 {
		r.lastBrightness = li.Brightness
	}
	if r.state.UserForcedOff {
		r.mu.Unlock()
		r.log.Functionf("config change stored; user holds lights off")
		return
	}
	if r.systemForcedOff() {
		r.pendingConfig = true
		r.mu.Unlock()
		r.log.Functionf("config change queued until forced-off releases")
		return
	}
	r.mu.Unlock()
	r.Apply()
}

// SetUserOff toggles the user's explicit off switch.
func (r *Reconciler) SetUserOff(off bool) {
	r.mu.Lock()
	r.state.SetForcedOff(types.ForcedOffUser, off)
	if !off {
		r.restoreBrightnessLocked()
	}
	r.mu.Unlock()
	r.Apply()
}

// restoreBrightnessLocked re-establishes a visible brightness when leaving
// forced-off with intent brightness 0.
func (r *Reconciler) restoreBrightnessLocked() {
	if r.state.Intent.Brightness != 0 {
		return
	}
	restore := r.lastBrightness
	if restore <= 0 {
		restore = defaultRestoreBrightness
	}
	r.state.Intent.Brightness = restore
	store := r.store
	go func() {
		_ = store.Mutate(func(li *types.LightingIntent) {
			li.Brightness = restore
		})
	}()
}

// OnLid handles lid transitions per the policy flags.
func (r *Reconciler) OnLid(state power.LidState) {
	li := r.store.Intent()
	if !li.PowerManagementEnabled {
		return
	}
	switch state {
	case power.LidClosed:
		if !li.PowerOffOnLidClose {
			return
		}
		r.log.Noticef("lid closed - turning off keyboard backlight")
		r.setPowerForcedOff(true)
	case power.LidOpen:
		if !li.PowerRestoreOnLidOpen {
			return
		}
		r.log.Noticef("lid opened - restoring keyboard backlight")
		r.setPowerForcedOff(false)
	}
}

// OnSleep handles logind PrepareForSleep. Resume waits the grace period
// before touching hardware.
func (r *Reconciler) OnSleep(ev power.SleepEvent) {
	li := r.store.Intent()
	if !li.PowerManagementEnabled {
		return
	}
	if ev == power.SleepEnter {
		if !li.PowerOffOnSuspend {
			return
		}
		r.log.Noticef("system suspending - turning off keyboard backlight")
		r.setPowerForcedOff(true)
		return
	}
	if !li.PowerRestoreOnResume {
		return
	}
	r.log.Noticef("system resumed - restoring keyboard backlight")
	time.Sleep(power.ResumeGracePeriod)
	r.setPowerForcedOff(false)
}

func (r *Reconciler) setPowerForcedOff(off bool) {
	r.mu.Lock()
	r.state.SetForcedOff(types.ForcedOffPower, off)
	pending := false
	if !off {
		r.restoreBrightnessLocked()
		pending = r.pendingConfig
		r.pendingConfig = false
	}
	r.mu.Unlock()
	if pending {
		// A queued external config change applies now that the lights are
		// allowed back on.
		r.OnConfigChange(r.store.Intent())
		return
	}
	r.Apply()
}

// OnAC applies the per-power-source policy: disabled sources force the
// lights off; brightness overrides write through to the config as the
// daemon's own intent adjustment.
func (r *Reconciler) OnAC(ev power.ACEvent) {
	if !ev.Policy.Enabled {
		r.log.Noticef("power source policy: lighting disabled (onAC=%t)", ev.OnAC)
		r.setPowerForcedOff(true)
		return
	}
	r.mu.Lock()
	wasForced := r.state.PowerForcedOff
	r.mu.Unlock()
	if wasForced {
		r.setPowerForcedOff(false)
	}
	if ev.Policy.Brightness >= 0 {
		r.mu.Lock()
		userOff := r.state.UserForcedOff
		r.mu.Unlock()
		if userOff {
			// Don't fight an explicit user off with a policy brightness.
			return
		}
		target := types.ClampBrightness(ev.Policy.Brightness)
		r.log.Noticef("power source policy: brightness %d", target)
		_ = r.store.Mutate(func(li *types.LightingIntent) {
			li.Brightness = target
		})
		r.OnConfigChange(r.store.Intent())
	}
}

// OnIdle maps screen-idle hook events onto the dim override and the
// dim-screen mask bit.
func (r *Reconciler) OnIdle(ev power.IdleEvent) {
	li := r.store.Intent()
	if !li.ScreenDimSyncEnabled {
		return
	}
	r.mu.Lock()
	switch ev {
	case power.IdleScreenAboutToDim:
		if li.ScreenDimSyncMode == types.ScreenDimModeOff {
			r.state.SetForcedOff(types.ForcedOffDimScreen, true)
		} else {
			target := types.ClampBrightness(li.ScreenDimSyncTempBrightness)
			r.state.DimTempTarget = &target
		}
	case power.IdleScreenAboutToUndim, power.IdleScreenOn:
		r.state.DimTempTarget = nil
		r.state.SetForcedOff(types.ForcedOffDimScreen, false)
		r.state.SetForcedOff(types.ForcedOffIdle, false)
	case power.IdleScreenOff:
		r.state.DimTempTarget = nil
		r.state.SetForcedOff(types.ForcedOffIdle, true)
	}
	r.mu.Unlock()
	r.Apply()
}

// OnHardwareBrightness ingests a brightness change made with the hardware
// keys: it is user intent and writes back to the config document. While a
// system source forces the lights off, a zero reading is the daemon's own
// doing and is ignored.
func (r *Reconciler) OnHardwareBrightness(brightness int) {
	brightness = types.ClampBrightness(brightness)
	r.mu.Lock()
	if r.systemForcedOff() && brightness == 0 {
		r.mu.Unlock()
		return
	}
	if brightness > 0 {
		r.lastBrightness = brightness
	}
	current := r.state.Intent.Brightness
	r.state.Intent.Brightness = brightness
	userOff := brightness == 0
	r.state.SetForcedOff(types.ForcedOffUser, userOff)
	r.mu.Unlock()
	if current == brightness {
		return
	}
	r.log.Noticef("hardware keys changed brightness: %d -> %d",
		current, brightness)
	_ = r.store.Mutate(func(li *types.LightingIntent) {
		li.Brightness = brightness
	})
	r.Apply()
}
