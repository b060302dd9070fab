// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"time"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/config"
	"github.com/lf-edge/kbdlight/devicehandle"
	"github.com/lf-edge/kbdlight/power"
	"github.com/lf-edge/kbdlight/status"
	"github.com/lf-edge/kbdlight/types"
)

// hardwarePollInterval drives the hardware-state poller: it detects
// brightness changes made with the hardware keys and reacquires vanished
// devices (~0.5 Hz).
const hardwarePollInterval = 2 * time.Second

// Runner wires the reconciler to its observers and pumps their events.
type Runner struct {
	Reconciler *Reconciler
	Handle     *devicehandle.Handle
	Backend    backend.KeyboardBackend
	Publisher  *status.Publisher

	Watcher *config.Watcher
	Lid     *power.LidObserver
	Suspend *power.SuspendObserver
	Acpi    *power.AcpiObserver
	AC      *power.ACObserver
	Idle    power.IdleHook
	Hotplug *devicehandle.HotplugWatcher
}

// Run blocks until stop closes, multiplexing all observer feeds into the
// reconciler. Each case is a bounded, non-blocking handler; device I/O
// serializes inside the handle.
func (run *Runner) Run(stop <-chan struct{}) {
	r := run.Reconciler

	hwTicker := time.NewTicker(hardwarePollInterval)
	defer hwTicker.Stop()

	var lastHWBrightness = -1

	configCh := chanOrNil(run.Watcher)
	lidCh := lidOrNil(run.Lid)
	suspendCh := suspendOrNil(run.Suspend)
	acpiCh := acpiOrNil(run.Acpi)
	acCh := acOrNil(run.AC)
	idleCh := idleOrNil(run.Idle)
	hotplugCh := hotplugOrNil(run.Hotplug)

	// Establish the initial state on the device.
	r.Apply()

	for {
		select {
		case <-stop:
			return

		case <-configCh:
			// The store holds the newest reloaded intent, even when the
			// watcher dropped later events.
			r.OnConfigChange(r.store.Intent())

		case state := <-lidCh:
			r.OnLid(state)

		case ev := <-suspendCh:
			r.OnSleep(ev)

		case state := <-acpiCh:
			r.OnLid(state)

		case ev := <-acCh:
			r.OnAC(ev)

		case ev := <-idleCh:
			r.OnIdle(ev)

		case ev := <-hotplugCh:
			if ev.Action == "add" && !run.Handle.Available() {
				run.reacquire()
			}

		case <-hwTicker.C:
			if !run.Handle.Available() {
				run.reacquire()
				continue
			}
			brightness, ok := run.readHardwareBrightness()
			if !ok {
				continue
			}
			if lastHWBrightness >= 0 && brightness != lastHWBrightness {
				expected := r.State().Brightness()
				if brightness != expected {
					r.OnHardwareBrightness(brightness)
				}
			}
			lastHWBrightness = brightness
		}
	}
}

// readHardwareBrightness polls the device under the handle lock.
func (run *Runner) readHardwareBrightness() (int, bool) {
	brightness := 0
	err := run.Handle.Locked(func(dev backend.KeyboardDevice) error {
		b, err := dev.GetBrightness()
		if err != nil {
			return err
		}
		brightness = b
		return nil
	})
	if err != nil {
		return 0, false
	}
	if !run.Handle.Available() {
		return 0, false
	}
	return brightness, true
}

// reacquire re-opens the device after a disconnect and re-applies the
// current effective state.
func (run *Runner) reacquire() {
	dev, err := run.Backend.OpenDevice()
	if err != nil {
		run.Publisher.SetLastError(err)
		return
	}
	run.Handle.Replace(dev)
	run.Publisher.SetLastError(nil)
	run.Publisher.Publish(status.Notification{
		Kind:    status.NotifyDeviceBack,
		Summary: "keyboard lighting device reconnected",
	})
	// Force a fresh apply; the device lost its state while gone.
	run.Reconciler.mu.Lock()
	run.Reconciler.lastApplied = nil
	run.Reconciler.mu.Unlock()
	run.Reconciler.Apply()
}

func chanOrNil(w *config.Watcher) <-chan types.LightingIntent {
	if w == nil {
		return nil
	}
	return w.Changes()
}

func lidOrNil(o *power.LidObserver) <-chan power.LidState {
	if o == nil {
		return nil
	}
	return o.Events()
}

func suspendOrNil(o *power.SuspendObserver) <-chan power.SleepEvent {
	if o == nil {
		return nil
	}
	return o.Events()
}

func acpiOrNil(o *power.AcpiObserver) <-chan power.LidState {
	if o == nil {
		return nil
	}
	return o.Events()
}

func acOrNil(o *power.ACObserver) <-chan power.ACEvent {
	if o == nil {
		return nil
	}
	return o.Events()
}

func idleOrNil(h power.IdleHook) <-chan power.IdleEvent {
	if h == nil {
		return nil
	}
	return h.Events()
}

func hotplugOrNil(w *devicehandle.HotplugWatcher) <-chan devicehandle.HotplugEvent {
	if w == nil {
		return nil
	}
	return w.Events()
}
