// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ite8291

import (
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// hidDevice is the subset of go-hid's Device used by this driver; mocked in
// tests.
type hidDevice interface {
	Write(p []byte) (int, error)
	SendFeatureReport(p []byte) (int, error)
	GetFeatureReport(p []byte) (int, error)
	Close() error
}

// Device drives one opened controller. Callers serialize access through the
// device handle; Device itself keeps only cached state.
type Device struct {
	log   *base.LogObject
	dev   hidDevice
	ident string

	// Cached because reading brightness back from the controller is not
	// reliable across firmware revisions.
	brightness int
	off        bool
}

func newDevice(log *base.LogObject, dev hidDevice, ident string) *Device {
	return &Device{log: log, dev: dev, ident: ident, brightness: 0, off: true}
}

func (d *Device) classify(err error) error {
	if err == nil {
		return nil
	}
	if types.IsDeviceDisconnected(err) {
		return &types.DeviceDisconnected{Device: d.ident, Err: err}
	}
	if types.IsPermissionDenied(err) {
		return &types.PermissionDenied{
			Path:        d.ident,
			Remediation: permissionRemediation,
			Err:         err,
		}
	}
	if types.IsDeviceBusy(err) {
		return &types.DeviceBusy{Device: d.ident, Err: err}
	}
	return err
}

func (d *Device) sendFeature(report []byte) error {
	if _, err := d.dev.SendFeatureReport(report); err != nil {
		return d.classify(err)
	}
	return nil
}

// TurnOff blanks the controller.
func (d *Device) TurnOff() error {
	if err := d.sendFeature(buildOffReport()); err != nil {
		return err
	}
	d.brightness = 0
	d.off = true
	return nil
}

// IsOff reports the cached off state.
func (d *Device) IsOff() (bool, error) {
	return d.off || d.brightness == 0, nil
}

// GetBrightness queries the controller; falls back to the cached value when
// the firmware does not answer the report.
func (d *Device) GetBrightness() (int, error) {
	buf := make([]byte, reportLength)
	buf[0] = cmdSetEffect
	if _, err := d.dev.GetFeatureReport(buf); err != nil {
		if types.IsDeviceDisconnected(err) {
			return 0, d.classify(err)
		}
		return d.brightness, nil
	}
	b := types.ClampBrightness(int(buf[4]))
	d.brightness = b
	return b, nil
}

// SetBrightness changes brightness without restarting the current mode.
func (d *Device) SetBrightness(brightness int) error {
	brightness = types.ClampBrightness(brightness)
	if err := d.sendFeature(buildBrightnessReport(brightness)); err != nil {
		return err
	}
	d.brightness = brightness
	d.off = brightness == 0
	return nil
}

// SetColor fills the whole matrix with one color. The controller has no
// uniform-fill opcode, so this writes a dense single-color frame.
func (d *Device) SetColor(color types.Color, brightness int) error {
	full := types.PerKeyMap{}.Densify(color)
	return d.SetKeyColors(full, brightness, true)
}

// EnableUserMode switches to host-driven per-key mode. The effects engine
// enables it exactly once per worker to avoid per-frame flicker.
func (d *Device) EnableUserMode(brightness int, save bool) error {
	if err := d.sendFeature(buildUserModeReport(brightness, save)); err != nil {
		return err
	}
	d.brightness = types.ClampBrightness(brightness)
	d.off = d.brightness == 0
	return nil
}

// SetKeyColors pushes a full matrix frame. Sparse input is densified with
// black here as a last resort, but callers are expected to densify against
// the base color first — the controller treats missing cells as off.
func (d *Device) SetKeyColors(m types.PerKeyMap, brightness int,
	enableUserMode bool) error {

	if enableUserMode {
		if err := d.EnableUserMode(brightness, false); err != nil {
			return err
		}
	}
	if len(m) != types.NumRows*types.NumCols {
		m = m.Densify(types.Color{})
	}
	rows, err := frameRows(m)
	if err != nil {
		return &types.ProtocolError{Device: d.ident, Detail: err.Error()}
	}
	for r, rowColors := range rows {
		frame, err := buildRowFrame(r, rowColors)
		if err != nil {
			return &types.ProtocolError{Device: d.ident, Detail: err.Error()}
		}
		if _, err := d.dev.Write(frame); err != nil {
			return d.classify(err)
		}
	}
	d.brightness = types.ClampBrightness(brightness)
	d.off = d.brightness == 0
	return nil
}

// SetPaletteColor programs one of the seven palette slots.
func (d *Device) SetPaletteColor(slot int, color types.Color) error {
	report, err := buildPaletteReport(slot, color)
	if err != nil {
		return &types.ProtocolError{Device: d.ident, Detail: err.Error()}
	}
	return d.sendFeature(report)
}

// SetEffect starts a hardware effect.
func (d *Device) SetEffect(payload types.HardwareEffectPayload) error {
	code, ok := hwEffectCodes[payload.Effect]
	if !ok {
		return &types.ProtocolError{
			Device: d.ident,
			Detail: "unknown hardware effect " + payload.Effect,
		}
	}
	report := buildEffectReport(code, payload.Speed, payload.Brightness,
		payload.ColorSlot, payload.Direction, false)
	if err := d.sendFeature(report); err != nil {
		return err
	}
	d.brightness = types.ClampBrightness(payload.Brightness)
	d.off = d.brightness == 0
	return nil
}

// Close releases the HID handle.
func (d *Device) Close() error {
	return d.dev.Close()
}
