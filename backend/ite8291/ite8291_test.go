// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ite8291

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

type fakeScanner struct {
	present map[uint32]bool
}

func ids(vid, pid uint16) uint32 { return uint32(vid)<<16 | uint32(pid) }

func (f fakeScanner) find(vid, pid uint16) (bool, error) {
	return f.present[ids(vid, pid)], nil
}

func TestProbeDenyListedController(t *testing.T) {
	// A 0x048d:0x8297 controller shares the vendor ID but speaks a
	// different dialect; the probe must positively report "unsupported".
	b := &Backend{
		log:     testLog(),
		scanner: fakeScanner{present: map[uint32]bool{ids(0x048d, 0x8297): true}},
	}
	result := b.Probe()
	assert.False(t, result.Available)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, "0x048d", result.Identifiers["usb_vid"])
	assert.Equal(t, "0x8297", result.Identifiers["usb_pid"])
}

func TestProbeAllowListedController(t *testing.T) {
	b := &Backend{
		log:     testLog(),
		scanner: fakeScanner{present: map[uint32]bool{ids(0x048d, 0x6004): true}},
	}
	result := b.Probe()
	assert.True(t, result.Available)
	assert.Equal(t, 90, result.Confidence)
	assert.Equal(t, "0x6004", result.Identifiers["usb_pid"])
}

func TestProbeNoDevice(t *testing.T) {
	b := &Backend{log: testLog(), scanner: fakeScanner{}}
	result := b.Probe()
	assert.False(t, result.Available)
	assert.Equal(t, "no matching usb device", result.Reason)
}

func TestUISpeedToHardware(t *testing.T) {
	testMatrix := map[string]struct {
		ui       int
		expected int
	}{
		"fastest":       {ui: 10, expected: 1},
		"slowest":       {ui: 0, expected: 10}, // 11-0 clamped to 10
		"middle":        {ui: 5, expected: 6},
		"one":           {ui: 1, expected: 10},
		"out of range+": {ui: 99, expected: 1},
		"out of range-": {ui: -3, expected: 10},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		assert.Equal(t, test.expected, UISpeedToHardware(test.ui))
	}
}

func TestBuildRowFrameLayout(t *testing.T) {
	row := make([]types.Color, types.NumCols)
	row[0] = types.Color{R: 1, G: 2, B: 3}
	row[20] = types.Color{R: 10, G: 20, B: 30}

	frame, err := buildRowFrame(2, row)
	require.NoError(t, err)
	require.Len(t, frame, rowReportLength)
	assert.Equal(t, byte(cmdRowData), frame[1])
	assert.Equal(t, byte(2), frame[3])
	// Channel banks: B, then G, then R.
	assert.Equal(t, byte(3), frame[5])
	assert.Equal(t, byte(2), frame[5+types.NumCols])
	assert.Equal(t, byte(1), frame[5+2*types.NumCols])
	assert.Equal(t, byte(30), frame[5+20])
	assert.Equal(t, byte(20), frame[5+types.NumCols+20])
	assert.Equal(t, byte(10), frame[5+2*types.NumCols+20])
}

func TestBuildRowFrameRejectsBadInput(t *testing.T) {
	_, err := buildRowFrame(types.NumRows, make([]types.Color, types.NumCols))
	assert.Error(t, err)
	_, err = buildRowFrame(0, make([]types.Color, 3))
	assert.Error(t, err)
}

func TestFrameRowsRejectsSparse(t *testing.T) {
	sparse := types.PerKeyMap{{Row: 0, Col: 0}: {R: 255}}
	_, err := frameRows(sparse)
	assert.Error(t, err)

	full := sparse.Densify(types.Color{R: 1})
	rows, err := frameRows(full)
	require.NoError(t, err)
	assert.Len(t, rows, types.NumRows)
}

// fakeHID records writes.
type fakeHID struct {
	writes   [][]byte
	features [][]byte
	failWith error
}

func (f *fakeHID) Write(p []byte) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeHID) SendFeatureReport(p []byte) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.features = append(f.features, cp)
	return len(p), nil
}

func (f *fakeHID) GetFeatureReport(p []byte) (int, error) {
	return 0, errors.New("not supported")
}

func (f *fakeHID) Close() error { return nil }

func TestSetKeyColorsWritesAllRows(t *testing.T) {
	hid := &fakeHID{}
	dev := newDevice(testLog(), hid, "test")

	sparse := types.PerKeyMap{{Row: 0, Col: 0}: {R: 255}}
	full := sparse.Densify(types.Color{R: 5, G: 5, B: 5})
	err := dev.SetKeyColors(full, 25, true)
	require.NoError(t, err)

	// One user-mode feature report plus one output report per matrix row.
	assert.Len(t, hid.features, 1)
	assert.Len(t, hid.writes, types.NumRows)
}

func TestSetEffectBuildsPayload(t *testing.T) {
	hid := &fakeHID{}
	dev := newDevice(testLog(), hid, "test")

	err := dev.SetEffect(types.HardwareEffectPayload{
		Effect:     types.EffectRainbow,
		Speed:      3,
		Brightness: 40,
	})
	require.NoError(t, err)
	require.Len(t, hid.features, 1)
	report := hid.features[0]
	assert.Equal(t, byte(cmdSetEffect), report[0])
	assert.Equal(t, hwEffectCodes[types.EffectRainbow], report[2])
	assert.Equal(t, byte(3), report[3])
	assert.Equal(t, byte(40), report[4])

	err = dev.SetEffect(types.HardwareEffectPayload{Effect: "nonsense"})
	assert.Error(t, err)
}

func TestDeviceClassifiesDisconnect(t *testing.T) {
	hid := &fakeHID{failWith: errors.New("libusb: No such device")}
	dev := newDevice(testLog(), hid, "test")
	err := dev.SetBrightness(10)
	assert.True(t, types.IsDeviceDisconnected(err))
}

func TestPaletteSlotRange(t *testing.T) {
	_, err := buildPaletteReport(0, types.Color{})
	assert.Error(t, err)
	_, err = buildPaletteReport(8, types.Color{})
	assert.Error(t, err)
	report, err := buildPaletteReport(1, types.Color{R: 9, G: 8, B: 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{cmdSetPalette, 0x00, 1, 9, 8, 7, 0, 0}, report)
}
