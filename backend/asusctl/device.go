// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package asusctl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// Named brightness levels understood by `asusctl leds set`.
const (
	levelOff  = "off"
	levelLow  = "low"
	levelMed  = "med"
	levelHigh = "high"
)

// BrightnessToLevel discretizes the 0..50 intent scale onto the CLI's named
// levels.
func BrightnessToLevel(brightness int) string {
	b := types.ClampBrightness(brightness)
	switch {
	case b <= 0:
		return levelOff
	case b <= 16:
		return levelLow
	case b <= 33:
		return levelMed
	default:
		return levelHigh
	}
}

// LevelToBrightness maps a named level back onto the 0..50 scale.
func LevelToBrightness(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case levelOff, "0":
		return 0
	case levelLow, "1":
		return 16
	case levelMed, "medium", "2":
		return 33
	case levelHigh, "3":
		return 50
	}
	return 0
}

var brightnessRe = regexp.MustCompile(`(?i)brightness:\s*([A-Za-z0-9_-]+)`)

// Device drives the keyboard through asusctl subprocess calls.
type Device struct {
	log   *base.LogObject
	run   runner
	zones []string
}

func newDevice(log *base.LogObject, run runner, zones []string) *Device {
	return &Device{log: log, run: run, zones: zones}
}

func (d *Device) runOK(args ...string) error {
	stdout, stderr, exitCode, err := d.run(args...)
	if err != nil && exitCode < 0 {
		return err
	}
	if exitCode != 0 {
		out := strings.TrimSpace(stderr)
		if out == "" {
			out = strings.TrimSpace(stdout)
		}
		return &types.ProtocolError{
			Device: "asusctl",
			Detail: fmt.Sprintf("command failed (%d): %s: %s",
				exitCode, strings.Join(args, " "), out),
		}
	}
	return nil
}

// TurnOff: brightness off is the most portable "off" across ASUS models.
func (d *Device) TurnOff() error {
	return d.SetBrightness(0)
}

// IsOff reports whether the LED level reads back as off.
func (d *Device) IsOff() (bool, error) {
	b, err := d.GetBrightness()
	if err != nil {
		return false, err
	}
	return b <= 0, nil
}

// GetBrightness parses `asusctl leds get` ("Current keyboard led
// brightness: Med").
func (d *Device) GetBrightness() (int, error) {
	stdout, _, exitCode, err := d.run("leds", "get")
	if err != nil && exitCode < 0 {
		return 0, err
	}
	if exitCode != 0 {
		return 0, nil
	}
	m := brightnessRe.FindStringSubmatch(stdout)
	if m == nil {
		return 0, nil
	}
	return LevelToBrightness(m[1]), nil
}

// SetBrightness sets the discretized LED level.
func (d *Device) SetBrightness(brightness int) error {
	return d.runOK("leds", "set", BrightnessToLevel(brightness))
}

// SetColor applies a static aura color to all zones (or globally when no
// zones are configured). The backlight level is set first; some devices
// ignore aura updates while off.
func (d *Device) SetColor(color types.Color, brightness int) error {
	if err := d.SetBrightness(brightness); err != nil {
		return err
	}
	hex := color.String()
	if len(d.zones) == 0 {
		return d.runOK("aura", "effect", "static", "-c", hex)
	}
	for _, z := range d.zones {
		if err := d.runOK("aura", "effect", "static", "-c", hex,
			"--zone", z); err != nil {
			return err
		}
	}
	return nil
}

// SetKeyColors buckets keys into configured zones by center column and
// writes the per-zone average; with a single zone the map collapses to its
// average color.
func (d *Device) SetKeyColors(m types.PerKeyMap, brightness int,
	enableUserMode bool) error {

	if len(m) == 0 {
		return nil
	}
	if len(d.zones) <= 1 {
		return d.SetColor(m.Average(), brightness)
	}

	buckets := make([]types.PerKeyMap, len(d.zones))
	for i := range buckets {
		buckets[i] = types.PerKeyMap{}
	}
	n := len(d.zones)
	chunk := float64(types.NumCols) / float64(n)
	for k, c := range m {
		idx := int((float64(k.Col) + 0.5) / chunk)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		buckets[idx][k] = c
	}

	if err := d.SetBrightness(brightness); err != nil {
		return err
	}
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		if err := d.runOK("aura", "effect", "static",
			"-c", bucket.Average().String(), "--zone", d.zones[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetEffect is not wired through payloads for this backend.
func (d *Device) SetEffect(payload types.HardwareEffectPayload) error {
	return &types.ProtocolError{
		Device: "asusctl",
		Detail: "hardware effect payloads are not supported by the CLI backend",
	}
}

// Close is a no-op; the CLI holds no persistent handle.
func (d *Device) Close() error { return nil }
