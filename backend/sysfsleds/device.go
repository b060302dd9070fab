// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// colorDialect identifies how a LED node accepts RGB values.
type colorDialect int

const (
	dialectNone           colorDialect = iota
	dialectMultiIntensity              // multi_intensity: "R G B" (Tuxedo/Clevo)
	dialectColorHex                    // color: rrggbb (ITE kernel driver)
	dialectRGB                         // rgb: "R G B" (generic)
	dialectSystem76                    // color_{left,center,right,extra}: rrggbb
)

// zone is one independently writable lighting region.
type zone struct {
	ledDir  string
	dialect colorDialect
	// colorPath is the zone's color attribute; for dialectSystem76 each zone
	// has its own file under the shared ledDir.
	colorPath string
}

// Device drives one or more LED class nodes as a single logical keyboard.
// With more than one zone, per-key maps are bucketed into virtual zones by
// key center column and averaged.
type Device struct {
	log        *base.LogObject
	primary    string // primary LED dir (brightness read source)
	zones      []zone
	helper     *privilegedHelper
	brightness int
}

func detectDialect(ledDir string) (colorDialect, string) {
	exists := func(attr string) (string, bool) {
		p := filepath.Join(ledDir, attr)
		_, err := os.Stat(p)
		return p, err == nil
	}
	if p, ok := exists("multi_intensity"); ok {
		return dialectMultiIntensity, p
	}
	if p, ok := exists("color"); ok {
		return dialectColorHex, p
	}
	if p, ok := exists("rgb"); ok {
		return dialectRGB, p
	}
	return dialectNone, ""
}

// system76ColorPaths returns the zoned color files, in panel order, when the
// System76 ACPI driver is present.
func system76ColorPaths(ledDir string) []string {
	var paths []string
	for _, name := range []string{"color_left", "color_center", "color_right", "color_extra"} {
		p := filepath.Join(ledDir, name)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

// newDevice builds the zone list from the candidate LED dirs: a single dir
// with System76 color files becomes one zone per file; multiple dirs become
// one zone each, in candidate order (highest score first, ties by name).
func newDevice(log *base.LogObject, ledDirs []string) *Device {
	d := &Device{
		log:     log,
		primary: ledDirs[0],
		helper:  newPrivilegedHelper(log),
	}
	if len(ledDirs) == 1 {
		if s76 := system76ColorPaths(ledDirs[0]); len(s76) > 0 {
			for _, p := range s76 {
				d.zones = append(d.zones, zone{
					ledDir: ledDirs[0], dialect: dialectSystem76, colorPath: p,
				})
			}
			return d
		}
		dialect, path := detectDialect(ledDirs[0])
		d.zones = []zone{{ledDir: ledDirs[0], dialect: dialect, colorPath: path}}
		return d
	}
	for _, dir := range ledDirs {
		dialect, path := detectDialect(dir)
		d.zones = append(d.zones, zone{ledDir: dir, dialect: dialect, colorPath: path})
	}
	return d
}

// hasColor reports whether any zone accepts RGB.
func (d *Device) hasColor() bool {
	for _, z := range d.zones {
		if z.dialect != dialectNone {
			return true
		}
	}
	return false
}

func (d *Device) numZones() int { return len(d.zones) }

func (d *Device) debugf(msg string) {
	d.log.Noticef("%s", msg)
}

func (d *Device) maxBrightness() int {
	m, err := readInt(filepath.Join(d.primary, "max_brightness"))
	if err != nil || m < 1 {
		return 1
	}
	return m
}

// zoneIndexForKey maps a key to a virtual zone by its center x-coordinate on
// the evenly divided matrix width.
func (d *Device) zoneIndexForKey(k types.KeyCoord) int {
	n := len(d.zones)
	if n <= 1 {
		return 0
	}
	center := float64(k.Col) + 0.5
	idx := int(center / (float64(types.NumCols) / float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func (d *Device) classifyWrite(path string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsPermissionDenied(err) {
		return &types.PermissionDenied{
			Path: path,
			Remediation: "The LED sysfs node is root-owned. Install the " +
				"kbdlight udev rule or the kbdlight-helper privileged binary.",
			Err: err,
		}
	}
	if types.IsDeviceDisconnected(err) {
		return &types.DeviceDisconnected{Device: path, Err: err}
	}
	return err
}

// writeZoneBrightness writes raw sysfs brightness to one zone, falling back
// to the privileged helper on permission failure. Secondary zones fail soft
// so one read-only rogue zone does not kill the device.
func (d *Device) writeZoneBrightness(ledDir string, sysfsValue int) error {
	path := filepath.Join(ledDir, "brightness")
	err := writeInt(path, sysfsValue, d.debugf)
	if err == nil {
		return nil
	}
	if types.IsPermissionDenied(err) && d.helper.available() {
		if d.helper.applyLed(filepath.Base(ledDir), sysfsValue, nil) == nil {
			return nil
		}
	}
	if ledDir != d.primary {
		return nil
	}
	return d.classifyWrite(path, err)
}

func (d *Device) writeZoneColor(z zone, color types.Color, sysfsBrightness int) error {
	var err error
	var path string
	switch z.dialect {
	case dialectMultiIntensity:
		path = z.colorPath
		err = writeString(path, fmt.Sprintf("%d %d %d\n", color.R, color.G, color.B), d.debugf)
	case dialectColorHex, dialectSystem76:
		path = z.colorPath
		err = writeString(path, color.String()+"\n", d.debugf)
	case dialectRGB:
		path = z.colorPath
		err = writeString(path, fmt.Sprintf("%d %d %d\n", color.R, color.G, color.B), d.debugf)
	case dialectNone:
		// Brightness-only zone.
		return d.writeZoneBrightness(z.ledDir, sysfsBrightness)
	}
	if err == nil {
		return d.writeZoneBrightness(z.ledDir, sysfsBrightness)
	}
	if types.IsPermissionDenied(err) && d.helper.available() {
		rgb := [3]int{int(color.R), int(color.G), int(color.B)}
		if d.helper.applyLed(filepath.Base(z.ledDir), sysfsBrightness, &rgb) == nil {
			return nil
		}
	}
	if z.ledDir != d.primary {
		return nil
	}
	return d.classifyWrite(path, err)
}

// TurnOff sets brightness 0 on all zones.
func (d *Device) TurnOff() error {
	return d.SetBrightness(0)
}

// IsOff reports whether the primary zone reads brightness 0.
func (d *Device) IsOff() (bool, error) {
	b, err := d.GetBrightness()
	if err != nil {
		return false, err
	}
	return b <= 0, nil
}

// GetBrightness reads the primary zone, normalized to the 0..50 scale.
func (d *Device) GetBrightness() (int, error) {
	raw, err := readInt(filepath.Join(d.primary, "brightness"))
	if err != nil {
		return 0, err
	}
	return IntentFromSysfs(raw, d.maxBrightness()), nil
}

// SetBrightness maps 0..50 onto the node range and applies to all zones.
func (d *Device) SetBrightness(brightness int) error {
	sysfsValue := SysfsFromIntent(brightness, d.maxBrightness())
	var firstErr error
	for _, z := range d.zones {
		if err := d.writeZoneBrightness(z.ledDir, sysfsValue); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		d.brightness = types.ClampBrightness(brightness)
	}
	return firstErr
}

// SetColor writes one color to every zone.
func (d *Device) SetColor(color types.Color, brightness int) error {
	sysfsValue := SysfsFromIntent(brightness, d.maxBrightness())
	var firstErr error
	for _, z := range d.zones {
		if err := d.writeZoneColor(z, color, sysfsValue); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		d.brightness = types.ClampBrightness(brightness)
	}
	return firstErr
}

// SetKeyColors emulates per-key on zoned hardware: keys are bucketed into
// zones by center column and each zone gets the average of its keys. On a
// single-zone device the whole map averages to one color.
func (d *Device) SetKeyColors(m types.PerKeyMap, brightness int,
	enableUserMode bool) error {

	if len(m) == 0 {
		return d.SetBrightness(brightness)
	}
	if !d.hasColor() {
		return d.SetBrightness(brightness)
	}
	if len(d.zones) <= 1 {
		return d.SetColor(m.Average(), brightness)
	}

	buckets := make([]types.PerKeyMap, len(d.zones))
	for i := range buckets {
		buckets[i] = types.PerKeyMap{}
	}
	for k, c := range m {
		buckets[d.zoneIndexForKey(k)][k] = c
	}

	sysfsValue := SysfsFromIntent(brightness, d.maxBrightness())
	var firstErr error
	for i, z := range d.zones {
		if len(buckets[i]) == 0 {
			continue
		}
		if err := d.writeZoneColor(z, buckets[i].Average(), sysfsValue); err != nil &&
			firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		d.brightness = types.ClampBrightness(brightness)
	}
	return firstErr
}

// SetEffect is not supported by LED class nodes.
func (d *Device) SetEffect(payload types.HardwareEffectPayload) error {
	return &types.ProtocolError{
		Device: d.primary,
		Detail: "sysfs LED nodes have no hardware effects",
	}
}

// Close is a no-op; sysfs files are opened per write.
func (d *Device) Close() error { return nil }
