// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

// makeLed creates a fake LED class node under root.
func makeLed(t *testing.T, root, name string, maxBrightness int,
	extraAttrs ...string) string {

	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"),
		[]byte("0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"),
		[]byte(strconv.Itoa(maxBrightness)+"\n"), 0644))
	for _, attr := range extraAttrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, attr),
			[]byte("0 0 0\n"), 0644))
	}
	return dir
}

func TestBrightnessScaleConversion(t *testing.T) {
	testMatrix := map[string]struct {
		intent int
		max    int
		sysfs  int
	}{
		"half of 100":    {intent: 25, max: 100, sysfs: 50},
		"full":           {intent: 50, max: 100, sysfs: 100},
		"off":            {intent: 0, max: 100, sysfs: 0},
		"small max":      {intent: 25, max: 3, sysfs: 2}, // 25/50*3 = 1.5 -> 2
		"single step":    {intent: 50, max: 1, sysfs: 1},
		"clamped intent": {intent: 99, max: 10, sysfs: 10},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		assert.Equal(t, test.sysfs, SysfsFromIntent(test.intent, test.max))
	}
	// Round trips stay within one quantization step.
	for intent := 0; intent <= 50; intent++ {
		sysfsValue := SysfsFromIntent(intent, 255)
		back := IntentFromSysfs(sysfsValue, 255)
		assert.InDelta(t, intent, back, 1.0)
	}
}

func TestSysfsBrightnessRoundTrip(t *testing.T) {
	// max_brightness=100 with brightness=10 reads back as 5 on the 0..50
	// scale; setting 25 writes "50".
	root := t.TempDir()
	dir := makeLed(t, root, "tuxedo::kbd_backlight", 100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"),
		[]byte("10\n"), 0644))

	dev := newDevice(testLog(), []string{dir})
	got, err := dev.GetBrightness()
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	require.NoError(t, dev.SetBrightness(25))
	data, err := os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "50", strings.TrimSpace(string(data)))
}

func TestScoringPrefersRGBBacklight(t *testing.T) {
	root := t.TempDir()
	makeLed(t, root, "input3::capslock", 1)
	makeLed(t, root, "dell::kbd_backlight", 2)
	rgb := makeLed(t, root, "rgb:kbd_backlight", 255, "multi_intensity")

	t.Setenv(backend.EnvSysfsLedsRoot, root)
	candidates := findCandidateLeds(root)
	require.Len(t, candidates, 2)
	assert.Equal(t, rgb, candidates[0])
}

func TestProbeReportsAvailability(t *testing.T) {
	root := t.TempDir()
	makeLed(t, root, "asus::kbd_backlight", 3)
	t.Setenv(backend.EnvSysfsLedsRoot, root)

	b := &Backend{log: testLog()}
	result := b.Probe()
	assert.True(t, result.Available)
	assert.Equal(t, 85, result.Confidence)
	assert.Equal(t, "asus::kbd_backlight", result.Identifiers["led"])
}

func TestProbeNoLed(t *testing.T) {
	t.Setenv(backend.EnvSysfsLedsRoot, t.TempDir())
	b := &Backend{log: testLog()}
	result := b.Probe()
	assert.False(t, result.Available)
	assert.Equal(t, 0, result.Confidence)
}

func TestColorDialects(t *testing.T) {
	testMatrix := map[string]struct {
		attr     string
		expected colorDialect
		written  string
	}{
		"tuxedo multi_intensity": {
			attr:     "multi_intensity",
			expected: dialectMultiIntensity,
			written:  "255 128 0",
		},
		"ite color hex": {
			attr:     "color",
			expected: dialectColorHex,
			written:  "ff8000",
		},
		"generic rgb": {
			attr:     "rgb",
			expected: dialectRGB,
			written:  "255 128 0",
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		root := t.TempDir()
		dir := makeLed(t, root, "clevo::kbd_backlight", 255, test.attr)

		dialect, _ := detectDialect(dir)
		assert.Equal(t, test.expected, dialect)

		dev := newDevice(testLog(), []string{dir})
		assert.True(t, dev.hasColor())
		require.NoError(t, dev.SetColor(types.Color{R: 255, G: 128}, 50))

		data, err := os.ReadFile(filepath.Join(dir, test.attr))
		require.NoError(t, err)
		assert.Equal(t, test.written, strings.TrimSpace(string(data)))
	}
}

func TestBrightnessOnlyDeviceHasNoColor(t *testing.T) {
	root := t.TempDir()
	dir := makeLed(t, root, "tpacpi::kbd_backlight", 2)
	dev := newDevice(testLog(), []string{dir})
	assert.False(t, dev.hasColor())

	// set_color degrades to a brightness write.
	require.NoError(t, dev.SetColor(types.Color{R: 255}, 50))
	data, err := os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(string(data)))
}

func TestSystem76ZonedColors(t *testing.T) {
	root := t.TempDir()
	dir := makeLed(t, root, "system76::kbd_backlight", 255)
	for _, name := range []string{"color_left", "color_center", "color_right"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name),
			[]byte("000000\n"), 0644))
	}

	dev := newDevice(testLog(), []string{dir})
	assert.Equal(t, 3, dev.numZones())

	// Left third red, right third blue: zone files receive their averages.
	m := types.PerKeyMap{}
	for c := 0; c < 7; c++ {
		m[types.KeyCoord{Row: 0, Col: c}] = types.Color{R: 255}
	}
	for c := 14; c < 21; c++ {
		m[types.KeyCoord{Row: 0, Col: c}] = types.Color{B: 255}
	}
	require.NoError(t, dev.SetKeyColors(m, 50, false))

	left, _ := os.ReadFile(filepath.Join(dir, "color_left"))
	right, _ := os.ReadFile(filepath.Join(dir, "color_right"))
	assert.Equal(t, "ff0000", strings.TrimSpace(string(left)))
	assert.Equal(t, "0000ff", strings.TrimSpace(string(right)))
}

func TestVirtualZoneMapping(t *testing.T) {
	root := t.TempDir()
	left := makeLed(t, root, "kbd_backlight_1", 255, "multi_intensity")
	right := makeLed(t, root, "kbd_backlight_2", 255, "multi_intensity")

	dev := newDevice(testLog(), []string{left, right})
	assert.Equal(t, 2, dev.numZones())
	// Column 0 lands in the left zone, column 20 in the right.
	assert.Equal(t, 0, dev.zoneIndexForKey(types.KeyCoord{Row: 0, Col: 0}))
	assert.Equal(t, 1, dev.zoneIndexForKey(types.KeyCoord{Row: 0, Col: 20}))
	// The midpoint column splits by key center.
	assert.Equal(t, 0, dev.zoneIndexForKey(types.KeyCoord{Row: 0, Col: 9}))
	assert.Equal(t, 1, dev.zoneIndexForKey(types.KeyCoord{Row: 0, Col: 11}))
}
