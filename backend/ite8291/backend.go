// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ite8291

import (
	"fmt"
	"os"

	"github.com/sstallion/go-hid"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

const backendName = "ite8291"

// udev remediation shown once to the user when the device node is not
// accessible.
const permissionRemediation = "Install the udev rule for the ITE 8291 USB " +
	"controller (SUBSYSTEM==\"usb\", ATTR{idVendor}==\"048d\", MODE=\"0660\", " +
	"TAG+=\"uaccess\"), reload udev rules and re-plug or reboot."

// usbScanner abstracts USB enumeration so probe logic is testable without
// hardware.
type usbScanner interface {
	// find reports whether a device with the given identity is present.
	find(vid, pid uint16) (bool, error)
}

type hidScanner struct{}

func (hidScanner) find(vid, pid uint16) (bool, error) {
	found := false
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Backend implements backend.KeyboardBackend for the ITE 8291r3 family.
type Backend struct {
	log     *base.LogObject
	scanner usbScanner
	opener  func(vid, pid uint16) (hidDevice, error)
	// dryRun blocks the real USB scan in test environments that did not
	// opt into hardware access.
	dryRun bool
}

// New creates the backend.
func New(log *base.LogObject) backend.KeyboardBackend {
	return &Backend{
		log:     log,
		scanner: hidScanner{},
		opener:  openHID,
		dryRun:  backend.UnderGoTest() && !backend.AllowHardware(),
	}
}

// Name of this backend.
func (b *Backend) Name() string { return backendName }

// Priority for auto-selection tie-breaks.
func (b *Backend) Priority() int { return 100 }

// Probe scans USB for the allow-listed controller identities without opening
// anything. A deny-listed controller present on the bus yields a positive
// "unsupported" result with identifiers so diagnostics can distinguish
// "no device" from "wrong device".
func (b *Backend) Probe() types.ProbeResult {
	if os.Getenv(backend.EnvDisableUSBScan) == "1" {
		return types.ProbeResult{
			Available:  true,
			Reason:     "usb scan disabled",
			Confidence: 60,
		}
	}
	if b.dryRun {
		return types.ProbeResult{
			Available:  false,
			Reason:     "hardware access not allowed in this environment",
			Confidence: 0,
		}
	}

	for _, pid := range DenyListedProductIDs {
		present, err := b.scanner.find(VendorID, pid)
		if err != nil {
			return types.ProbeResult{
				Available:  false,
				Reason:     fmt.Sprintf("usb scan failed: %v", err),
				Confidence: 0,
			}
		}
		if present {
			return types.ProbeResult{
				Available: false,
				Reason: fmt.Sprintf(
					"usb device present but unsupported by %s backend (0x%04x:0x%04x)",
					backendName, VendorID, pid),
				Confidence: 0,
				Identifiers: map[string]string{
					"usb_vid": fmt.Sprintf("0x%04x", VendorID),
					"usb_pid": fmt.Sprintf("0x%04x", pid),
				},
			}
		}
	}

	for _, pid := range ProductIDs {
		present, err := b.scanner.find(VendorID, pid)
		if err != nil {
			return types.ProbeResult{
				Available:  false,
				Reason:     fmt.Sprintf("usb scan failed: %v", err),
				Confidence: 0,
			}
		}
		if present {
			return types.ProbeResult{
				Available: true,
				Reason: fmt.Sprintf("usb device present (0x%04x:0x%04x)",
					VendorID, pid),
				Confidence: 90,
				Identifiers: map[string]string{
					"usb_vid": fmt.Sprintf("0x%04x", VendorID),
					"usb_pid": fmt.Sprintf("0x%04x", pid),
				},
			}
		}
	}
	return types.ProbeResult{
		Available:  false,
		Reason:     "no matching usb device",
		Confidence: 0,
	}
}

// Capabilities of the 8291r3 controller.
func (b *Backend) Capabilities() types.BackendCapabilities {
	return types.BackendCapabilities{
		PerKey:          true,
		PerKeyNative:    true,
		Color:           true,
		HardwareEffects: true,
		Palette:         true,
	}
}

// OpenDevice opens the first allow-listed controller.
func (b *Backend) OpenDevice() (backend.KeyboardDevice, error) {
	var lastErr error
	for _, pid := range ProductIDs {
		dev, err := b.opener(VendorID, pid)
		if err == nil {
			b.log.Noticef("opened ite8291 controller 0x%04x:0x%04x", VendorID, pid)
			return newDevice(b.log, dev, fmt.Sprintf("0x%04x:0x%04x", VendorID, pid)), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no ite8291 controller present")
	}
	if types.IsPermissionDenied(lastErr) {
		return nil, &types.PermissionDenied{
			Path:        "usb:048d",
			Remediation: permissionRemediation,
			Err:         lastErr,
		}
	}
	return nil, lastErr
}

// MatrixDimensions of the controller's LED grid.
func (b *Backend) MatrixDimensions() (int, int) {
	return types.NumRows, types.NumCols
}

// HardwareEffects supported by the controller.
func (b *Backend) HardwareEffects() []string {
	return HardwareEffectNames()
}

// Palette slot names.
func (b *Backend) Palette() []string {
	return PaletteSlots()
}

func openHID(vid, pid uint16) (hidDevice, error) {
	dev, err := hid.OpenFirst(vid, pid)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
