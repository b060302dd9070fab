// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ite8291 drives ITE 8291 rev 3 USB RGB keyboard controllers found
// in Tongfang/Clevo laptop rebrands (WootBook, Tuxedo, XMG and friends).
package ite8291

import (
	"fmt"

	"github.com/lf-edge/kbdlight/types"
)

// USB identity of the supported controller family.
const VendorID = 0x048d

// ProductIDs enumerates the 8291r3 dialect controllers this backend may
// claim.
var ProductIDs = []uint16{0x6004, 0x6006, 0x6008, 0x600b, 0xce00}

// DenyListedProductIDs are ITE controllers sharing the vendor ID but
// speaking a different report dialect (8297/"Fusion 2" family). The backend
// must never open these; auto-selection would otherwise talk the wrong
// protocol to the device.
var DenyListedProductIDs = []uint16{0x8297, 0x5702, 0xc966}

// Feature report opcodes. The controller takes 8-byte feature reports on the
// control interface and 68-byte output reports for row data.
const (
	cmdSetEffect    = 0x08
	cmdSetPalette   = 0x14
	cmdRowData      = 0x16
	subCmdEffect    = 0x02
	subCmdOff       = 0x01
	effectUserMode  = 0x33
	reportLength    = 8
	rowReportLength = 5 + 3*types.NumCols // 5 header bytes + B, G, R banks
)

// Hardware effect opcodes.
var hwEffectCodes = map[string]byte{
	types.EffectBreathing: 0x02,
	types.EffectWave:      0x03,
	types.EffectRandom:    0x04,
	types.EffectRainbow:   0x05,
	types.EffectRipple:    0x06,
	types.EffectMarquee:   0x09,
	types.EffectRaindrop:  0x0a,
	types.EffectAurora:    0x0e,
	types.EffectFireworks: 0x11,
}

// HardwareEffectNames lists the effect catalog in a stable order.
func HardwareEffectNames() []string {
	return []string{
		types.EffectRainbow,
		types.EffectBreathing,
		types.EffectWave,
		types.EffectRipple,
		types.EffectMarquee,
		types.EffectRaindrop,
		types.EffectAurora,
		types.EffectFireworks,
	}
}

// PaletteSlots lists the programmable palette slot names.
func PaletteSlots() []string {
	return []string{"slot1", "slot2", "slot3", "slot4", "slot5", "slot6", "slot7"}
}

// UISpeedToHardware inverts the UI speed scale (0..10, 10 fastest) to the
// controller scale where lower is faster: hw = 11 - ui, clamped to [1,10].
func UISpeedToHardware(ui int) int {
	hw := 11 - types.ClampSpeed(ui)
	if hw < 1 {
		hw = 1
	}
	if hw > 10 {
		hw = 10
	}
	return hw
}

// brightnessByte clips to the controller's native 0..50 range.
func brightnessByte(b int) byte {
	return byte(types.ClampBrightness(b))
}

// buildEffectReport builds the 8-byte feature report starting a hardware
// effect.
func buildEffectReport(effectCode byte, hwSpeed, brightness, colorSlot,
	direction int, save bool) []byte {

	saveByte := byte(0)
	if save {
		saveByte = 1
	}
	return []byte{
		cmdSetEffect, subCmdEffect,
		effectCode,
		byte(hwSpeed),
		brightnessByte(brightness),
		byte(colorSlot),
		byte(direction),
		saveByte,
	}
}

// buildOffReport builds the feature report that blanks the controller.
func buildOffReport() []byte {
	return []byte{cmdSetEffect, subCmdOff, 0, 0, 0, 0, 0, 0}
}

// buildBrightnessReport re-issues the current mode with a new brightness.
// The controller has no standalone brightness opcode; brightness rides on
// the effect report.
func buildBrightnessReport(brightness int) []byte {
	return []byte{
		cmdSetEffect, subCmdEffect,
		effectUserMode,
		0,
		brightnessByte(brightness),
		0, 0, 0,
	}
}

// buildUserModeReport switches the controller into host-driven per-key mode.
func buildUserModeReport(brightness int, save bool) []byte {
	saveByte := byte(0)
	if save {
		saveByte = 1
	}
	return []byte{
		cmdSetEffect, subCmdEffect,
		effectUserMode,
		0,
		brightnessByte(brightness),
		0, 0, saveByte,
	}
}

// buildPaletteReport programs one palette slot (1..7).
func buildPaletteReport(slot int, color types.Color) ([]byte, error) {
	if slot < 1 || slot > 7 {
		return nil, fmt.Errorf("palette slot %d out of range 1..7", slot)
	}
	return []byte{
		cmdSetPalette, 0x00,
		byte(slot),
		color.R, color.G, color.B,
		0, 0,
	}, nil
}

// buildRowFrame builds one 68-byte output report carrying a full matrix row.
// The controller stores rows as channel banks: all blue bytes, then green,
// then red, one byte per column.
func buildRowFrame(row int, rowColors []types.Color) ([]byte, error) {
	if row < 0 || row >= types.NumRows {
		return nil, fmt.Errorf("row %d out of range 0..%d", row, types.NumRows-1)
	}
	if len(rowColors) != types.NumCols {
		return nil, fmt.Errorf("row %d: got %d columns, want %d",
			row, len(rowColors), types.NumCols)
	}
	frame := make([]byte, rowReportLength)
	frame[0] = 0x00 // report ID
	frame[1] = cmdRowData
	frame[2] = 0x00
	frame[3] = byte(row)
	const header = 5
	for col, c := range rowColors {
		frame[header+col] = c.B
		frame[header+types.NumCols+col] = c.G
		frame[header+2*types.NumCols+col] = c.R
	}
	return frame, nil
}

// frameRows flattens a dense per-key map into row slices ready for
// buildRowFrame. The input must cover the full matrix; the controller
// interprets missing cells as off, so sparse maps never reach this layer.
func frameRows(m types.PerKeyMap) ([][]types.Color, error) {
	if len(m) != types.NumRows*types.NumCols {
		return nil, fmt.Errorf("sparse per-key map (%d cells, want %d)",
			len(m), types.NumRows*types.NumCols)
	}
	rows := make([][]types.Color, types.NumRows)
	for r := 0; r < types.NumRows; r++ {
		rows[r] = make([]types.Color, types.NumCols)
		for c := 0; c < types.NumCols; c++ {
			rows[r][c] = m[types.KeyCoord{Row: r, Col: c}]
		}
	}
	return rows, nil
}
