// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import "strings"

// Effect names accepted in the config document. Names are stored lowercase.
const (
	EffectNone   = "none"
	EffectPerKey = "perkey"

	// Hardware-accelerated effects (ite8291 family).
	EffectRainbow   = "rainbow"
	EffectBreathing = "breathing"
	EffectWave      = "wave"
	EffectRipple    = "ripple"
	EffectMarquee   = "marquee"
	EffectRaindrop  = "raindrop"
	EffectAurora    = "aurora"
	EffectFireworks = "fireworks"

	// Software-rendered effects.
	EffectRainbowWave    = "rainbow_wave"
	EffectRainbowSwirl   = "rainbow_swirl"
	EffectSpectrumCycle  = "spectrum_cycle"
	EffectColorCycle     = "color_cycle"
	EffectSWBreathing    = "sw_breathing"
	EffectFire           = "fire"
	EffectRandom         = "random"
	EffectRain           = "rain"
	EffectTwinkle        = "twinkle"
	EffectStrobe         = "strobe"
	EffectChase          = "chase"
	EffectReactiveFade   = "reactive_fade"
	EffectReactiveRipple = "reactive_ripple"
	EffectReactiveRbow   = "reactive_rainbow"
	EffectReactiveSnake  = "reactive_snake"
)

// NormalizeEffectName lowercases and trims an effect name from the config.
func NormalizeEffectName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PowerSourcePolicy holds the desired lighting state for one power source.
type PowerSourcePolicy struct {
	Enabled bool `json:"enabled"`
	// Brightness <0 means "no override" (keep the user's brightness).
	Brightness int `json:"brightness"`
}

// ScreenDimMode selects how the idle dimmer treats the backlight.
type ScreenDimMode string

// Screen dim modes.
const (
	ScreenDimModeOff ScreenDimMode = "off"
	ScreenDimModeDim ScreenDimMode = "dim"
)

// LightingIntent is the persisted, user-desired lighting configuration.
type LightingIntent struct {
	Effect     string    `json:"effect"`
	Speed      int       `json:"speed"`      // 0..10, 10 fastest
	Brightness int       `json:"brightness"` // 0..50, 0 means off
	Color      Color     `json:"-"`
	PerKey     PerKeyMap `json:"-"`

	// Reactive effect accent overrides.
	ReactiveColor          *Color `json:"-"`
	ReactiveUseManualColor bool   `json:"reactive_use_manual_color"`
	ReactiveBrightness     int    `json:"reactive_brightness"` // 0..50
	PerKeyBrightness       int    `json:"per_key_brightness"`  // 0..50 backdrop under reactive

	// Policy flags.
	Autostart              bool `json:"autostart"`
	OSAutostart            bool `json:"os_autostart"`
	PowerManagementEnabled bool `json:"power_management_enabled"`
	PowerOffOnSuspend      bool `json:"power_off_on_suspend"`
	PowerRestoreOnResume   bool `json:"power_restore_on_resume"`
	PowerOffOnLidClose     bool `json:"power_off_on_lid_close"`
	PowerRestoreOnLidOpen  bool `json:"power_restore_on_lid_open"`

	BatterySaverEnabled    bool `json:"battery_saver_enabled"`
	BatterySaverBrightness int  `json:"battery_saver_brightness"`

	ACLighting      PowerSourcePolicy `json:"ac_lighting"`
	BatteryLighting PowerSourcePolicy `json:"battery_lighting"`

	ScreenDimSyncEnabled        bool          `json:"screen_dim_sync_enabled"`
	ScreenDimSyncMode           ScreenDimMode `json:"screen_dim_sync_mode"`
	ScreenDimSyncTempBrightness int           `json:"screen_dim_sync_temp_brightness"`
}

// Normalize clamps all scalar fields into their valid ranges and lowercases
// the effect name. Invalid per-key entries are dropped.
func (li *LightingIntent) Normalize() {
	li.Effect = NormalizeEffectName(li.Effect)
	li.Speed = ClampSpeed(li.Speed)
	li.Brightness = ClampBrightness(li.Brightness)
	li.ReactiveBrightness = ClampBrightness(li.ReactiveBrightness)
	li.PerKeyBrightness = ClampBrightness(li.PerKeyBrightness)
	li.BatterySaverBrightness = ClampBrightness(li.BatterySaverBrightness)
	li.ScreenDimSyncTempBrightness = ClampBrightness(li.ScreenDimSyncTempBrightness)
	for k := range li.PerKey {
		if !k.Valid() {
			delete(li.PerKey, k)
		}
	}
}

// DefaultIntent returns the document used when no config file exists yet.
func DefaultIntent() LightingIntent {
	return LightingIntent{
		Effect:                      EffectRainbow,
		Speed:                       4,
		Brightness:                  25,
		Color:                       Color{R: 255},
		PerKey:                      PerKeyMap{},
		ReactiveBrightness:          25,
		PerKeyBrightness:            25,
		Autostart:                   true,
		PowerManagementEnabled:      true,
		PowerOffOnSuspend:           true,
		PowerRestoreOnResume:        true,
		PowerOffOnLidClose:          true,
		PowerRestoreOnLidOpen:       true,
		BatterySaverEnabled:         false,
		BatterySaverBrightness:      25,
		ACLighting:                  PowerSourcePolicy{Enabled: true, Brightness: -1},
		BatteryLighting:             PowerSourcePolicy{Enabled: true, Brightness: -1},
		ScreenDimSyncMode:           ScreenDimModeDim,
		ScreenDimSyncTempBrightness: 5,
	}
}
