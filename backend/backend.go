// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the keyboard backend interface and the registry
// that probes and selects one implementation per hardware family.
package backend

import (
	"os"
	"strings"

	"github.com/lf-edge/kbdlight/types"
)

// Environment variables recognized by the backends and registry.
const (
	EnvBackend        = "KBDLIGHT_BACKEND"
	EnvDisableUSBScan = "KBDLIGHT_DISABLE_USB_SCAN"
	EnvAllowHardware  = "KBDLIGHT_ALLOW_HARDWARE"
	EnvSysfsLedsRoot  = "KBDLIGHT_SYSFS_LEDS_ROOT"
	EnvAsusctlZones   = "KBDLIGHT_ASUSCTL_ZONES"
	EnvAsusctlPath    = "KBDLIGHT_ASUSCTL_PATH"
	EnvDebugBright    = "KBDLIGHT_DEBUG_BRIGHTNESS"
	EnvDisableEvdev   = "KBDLIGHT_DISABLE_EVDEV"
)

// KeyboardDevice is the primitive set the daemon drives. All methods may be
// called from multiple goroutines but only under the device handle's lock.
type KeyboardDevice interface {
	TurnOff() error
	IsOff() (bool, error)
	GetBrightness() (int, error)
	SetBrightness(brightness int) error
	SetColor(color types.Color, brightness int) error
	SetKeyColors(m types.PerKeyMap, brightness int, enableUserMode bool) error
	SetEffect(payload types.HardwareEffectPayload) error
	Close() error
}

// PaletteDevice is implemented by devices that can program palette slots
// (used by the hardware breathing effect).
type PaletteDevice interface {
	SetPaletteColor(slot int, color types.Color) error
}

// UserModeDevice is implemented by controllers with a distinct host-driven
// per-key mode that must be enabled before frame writes.
type UserModeDevice interface {
	EnableUserMode(brightness int, save bool) error
}

// KeyboardBackend is implemented once per hardware family.
type KeyboardBackend interface {
	Name() string
	Priority() int
	// Probe is read-only and bounded; it must never open the device.
	Probe() types.ProbeResult
	Capabilities() types.BackendCapabilities
	// OpenDevice acquires the device for exclusive use. Permission problems
	// surface as *types.PermissionDenied.
	OpenDevice() (KeyboardDevice, error)
	MatrixDimensions() (rows, cols int)
	HardwareEffects() []string
	Palette() []string
}

// AllowHardware reports whether this environment may touch real devices.
// Test environments leave it unset, which forces dry-run probes.
func AllowHardware() bool {
	return envFlag(EnvAllowHardware)
}

// UnderGoTest detects the Go test runner so backends never scan real
// hardware from unit tests unless explicitly allowed.
func UnderGoTest() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return strings.HasSuffix(os.Args[0], ".test")
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
