// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import (
	"path/filepath"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

const backendName = "sysfs-leds"

// Backend implements backend.KeyboardBackend over the kernel LED class.
type Backend struct {
	log *base.LogObject
}

// New creates the backend.
func New(log *base.LogObject) backend.KeyboardBackend {
	return &Backend{log: log}
}

// Name of this backend.
func (b *Backend) Name() string { return backendName }

// Priority for auto-selection tie-breaks.
func (b *Backend) Priority() int { return 80 }

// Probe looks for a usable keyboard backlight LED node.
func (b *Backend) Probe() types.ProbeResult {
	root := ledsRoot()
	candidates := findCandidateLeds(root)
	if len(candidates) == 0 {
		return types.ProbeResult{
			Available:  false,
			Reason:     "no matching sysfs LED",
			Confidence: 0,
		}
	}
	best := candidates[0]
	brightness := filepath.Join(best, "brightness")
	if err := unix_access(brightness, accessRead); err != nil {
		return types.ProbeResult{
			Available:   false,
			Reason:      "brightness not readable",
			Confidence:  0,
			Identifiers: map[string]string{"brightness": brightness},
		}
	}
	if err := unix_access(brightness, accessWrite); err != nil {
		return types.ProbeResult{
			Available:   false,
			Reason:      "brightness not writable (udev permissions missing?)",
			Confidence:  0,
			Identifiers: map[string]string{"brightness": brightness},
		}
	}
	return types.ProbeResult{
		Available:  true,
		Reason:     "sysfs LED present",
		Confidence: 85,
		Identifiers: map[string]string{
			"led":        filepath.Base(best),
			"brightness": brightness,
			"candidates": filepath.Base(best),
		},
	}
}

// Capabilities depend on the detected node: color needs an RGB sub-attribute
// and per-key means the virtual-zone emulation (never native).
func (b *Backend) Capabilities() types.BackendCapabilities {
	candidates := findCandidateLeds(ledsRoot())
	if len(candidates) == 0 {
		return types.BackendCapabilities{}
	}
	dev := newDevice(b.log, candidates)
	return types.BackendCapabilities{
		PerKey:          dev.numZones() > 1,
		PerKeyNative:    false,
		Color:           dev.hasColor(),
		HardwareEffects: false,
		Palette:         false,
	}
}

// OpenDevice binds all candidate LED dirs into one logical device.
func (b *Backend) OpenDevice() (backend.KeyboardDevice, error) {
	candidates := findCandidateLeds(ledsRoot())
	if len(candidates) == 0 {
		return nil, &types.DeviceDisconnected{
			Device: ledsRoot(),
			Err:    errNoLed,
		}
	}
	return newDevice(b.log, candidates), nil
}

// MatrixDimensions: LED class nodes have no real matrix; the per-key
// pipeline still needs a stable coordinate space for virtual zones.
func (b *Backend) MatrixDimensions() (int, int) {
	return types.NumRows, types.NumCols
}

// HardwareEffects: none.
func (b *Backend) HardwareEffects() []string { return nil }

// Palette: none.
func (b *Backend) Palette() []string { return nil }
