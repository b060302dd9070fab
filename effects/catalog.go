// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package effects

import "github.com/lf-edge/kbdlight/types"

// HardwareEffects is the catalog of controller-accelerated effects.
var HardwareEffects = map[string]bool{
	types.EffectRainbow:   true,
	types.EffectBreathing: true,
	types.EffectWave:      true,
	types.EffectRipple:    true,
	types.EffectMarquee:   true,
	types.EffectRaindrop:  true,
	types.EffectAurora:    true,
	types.EffectFireworks: true,
}

// SoftwareEffects is the catalog of worker-rendered effects.
var SoftwareEffects = map[string]bool{
	types.EffectRainbowWave:    true,
	types.EffectRainbowSwirl:   true,
	types.EffectSpectrumCycle:  true,
	types.EffectColorCycle:     true,
	types.EffectSWBreathing:    true,
	types.EffectFire:           true,
	types.EffectRandom:         true,
	types.EffectRain:           true,
	types.EffectTwinkle:        true,
	types.EffectStrobe:         true,
	types.EffectChase:          true,
	types.EffectReactiveFade:   true,
	types.EffectReactiveRipple: true,
	types.EffectReactiveRbow:   true,
	types.EffectReactiveSnake:  true,
}

// KnownEffect reports whether the name appears anywhere in the catalog.
func KnownEffect(name string) bool {
	name = types.NormalizeEffectName(name)
	if name == types.EffectNone || name == types.EffectPerKey {
		return true
	}
	return HardwareEffects[name] || SoftwareEffects[name]
}

// softwareFallback maps a hardware effect onto its closest software
// rendition when the selected backend does not accelerate it.
func softwareFallback(name string) string {
	switch name {
	case types.EffectRainbow, types.EffectWave:
		return types.EffectRainbowWave
	case types.EffectBreathing:
		return types.EffectSWBreathing
	case types.EffectRipple:
		return types.EffectReactiveRipple
	case types.EffectRaindrop:
		return types.EffectRain
	case types.EffectFireworks:
		return types.EffectTwinkle
	case types.EffectMarquee:
		return types.EffectChase
	case types.EffectAurora:
		return types.EffectRainbowSwirl
	}
	return types.EffectNone
}
