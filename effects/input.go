// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/viamrobotics/evdev"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
)

// keyPress is one recognized key-down, already translated to a key id.
type keyPress struct {
	name string
}

// inputReader pumps key-down events from every EV_KEY capable evdev device
// into a channel the reactive render loop drains without blocking. It lives
// inside the effect worker, not as a separate managed thread.
type inputReader struct {
	log     *base.LogObject
	cancel  context.CancelFunc
	presses chan keyPress
	devices []*evdev.Evdev
}

// openInputReader enumerates /dev/input/event* and opens every keyboard.
// Returns nil when evdev is disabled or no device is accessible; the
// reactive loop then runs its synthetic spawner.
func openInputReader(log *base.LogObject) *inputReader {
	if os.Getenv(backend.EnvDisableEvdev) == "1" {
		return nil
	}
	if backend.UnderGoTest() && !backend.AllowHardware() {
		return nil
	}

	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)

	ctx, cancel := context.WithCancel(context.Background())
	r := &inputReader{
		log:     log,
		cancel:  cancel,
		presses: make(chan keyPress, 64),
	}
	for _, path := range paths {
		dev, err := evdev.OpenFile(path)
		if err != nil {
			continue
		}
		if !dev.IsKeyboard() {
			_ = dev.Close()
			continue
		}
		r.devices = append(r.devices, dev)
		go r.pump(ctx, dev)
	}
	if len(r.devices) == 0 {
		cancel()
		return nil
	}
	log.Functionf("reactive input: reading %d evdev keyboards", len(r.devices))
	return r
}

// pump forwards key-down events; drops when the render loop lags.
func (r *inputReader) pump(ctx context.Context, dev *evdev.Evdev) {
	for env := range dev.Poll(ctx) {
		if env == nil {
			return
		}
		if env.Event.Type != evdev.EventKey || env.Event.Value != 1 {
			continue
		}
		name := evdevKeyName(env.Event.Code)
		if name == "" {
			continue
		}
		select {
		case r.presses <- keyPress{name: name}:
		default:
		}
	}
}

// poll returns the next pending key press without blocking.
func (r *inputReader) poll() (keyPress, bool) {
	if r == nil {
		return keyPress{}, false
	}
	select {
	case p := <-r.presses:
		return p, true
	default:
		return keyPress{}, false
	}
}

// close stops the pumps and releases the devices.
func (r *inputReader) close() {
	if r == nil {
		return
	}
	r.cancel()
	for _, dev := range r.devices {
		_ = dev.Close()
	}
}
