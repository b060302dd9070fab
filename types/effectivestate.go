// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

// ForcedOffSource identifies one independent origin of a "brightness 0"
// request. Sources are tracked separately so e.g. resume does not undo an
// explicit user off.
type ForcedOffSource string

// Forced-off sources.
const (
	ForcedOffUser      ForcedOffSource = "user"
	ForcedOffPower     ForcedOffSource = "power"
	ForcedOffIdle      ForcedOffSource = "idle"
	ForcedOffDimScreen ForcedOffSource = "dim_screen"
)

// EffectiveState is the reconciled lighting state: intent combined with the
// forced-off mask and the temporary dim override. Derived, never persisted.
type EffectiveState struct {
	Intent LightingIntent `json:"intent"`

	UserForcedOff      bool `json:"user_forced_off"`
	PowerForcedOff     bool `json:"power_forced_off"`
	IdleForcedOff      bool `json:"idle_forced_off"`
	DimScreenForcedOff bool `json:"dim_screen_forced_off"`

	// DimTempTarget, when non-nil and no mask bit is set, replaces the
	// intent brightness while the screen is dimmed.
	DimTempTarget *int `json:"dim_temp_target,omitempty"`
}

// ForcedOff reports whether any mask bit is set.
func (s EffectiveState) ForcedOff() bool {
	return s.UserForcedOff || s.PowerForcedOff || s.IdleForcedOff ||
		s.DimScreenForcedOff
}

// Brightness returns the brightness all device writes must clamp to.
func (s EffectiveState) Brightness() int {
	if s.ForcedOff() {
		return 0
	}
	if s.DimTempTarget != nil {
		return ClampBrightness(*s.DimTempTarget)
	}
	return ClampBrightness(s.Intent.Brightness)
}

// SetForcedOff sets or clears one mask bit.
func (s *EffectiveState) SetForcedOff(src ForcedOffSource, on bool) {
	switch src {
	case ForcedOffUser:
		s.UserForcedOff = on
	case ForcedOffPower:
		s.PowerForcedOff = on
	case ForcedOffIdle:
		s.IdleForcedOff = on
	case ForcedOffDimScreen:
		s.DimScreenForcedOff = on
	}
}

// ApplySignature captures everything that matters for a device apply.
// Re-applying an identical signature is a no-op at the device.
type ApplySignature struct {
	Effect     string
	Speed      int
	Brightness int
	Color      Color
	PerKeySig  string
	Off        bool
}

// Signature derives the apply signature for this state.
func (s EffectiveState) Signature() ApplySignature {
	sig := ApplySignature{
		Effect:     s.Intent.Effect,
		Speed:      s.Intent.Speed,
		Brightness: s.Brightness(),
		Color:      s.Intent.Color,
		Off:        s.ForcedOff(),
	}
	if s.Intent.Effect == EffectPerKey || len(s.Intent.PerKey) > 0 {
		sig.PerKeySig = s.Intent.PerKey.Signature()
	}
	return sig
}
