// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sysfsleds drives keyboard backlights exposed through the kernel
// LED class (/sys/class/leds), covering Tuxedo/Clevo multi_intensity, the
// ITE kernel driver's color attribute, generic rgb nodes and System76 zoned
// color files. Brightness-only nodes are driven as such; no color is faked.
package sysfsleds

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lf-edge/kbdlight/backend"
)

// DefaultLedsRoot is the kernel LED class directory.
const DefaultLedsRoot = "/sys/class/leds"

// ledsRoot resolves the (test-overridable) LED class root.
func ledsRoot() string {
	if root := os.Getenv(backend.EnvSysfsLedsRoot); root != "" {
		return root
	}
	if backend.UnderGoTest() && !backend.AllowHardware() {
		// Unit tests must never probe the real sysfs tree.
		return "/nonexistent-kbdlight-test-sysfs-leds"
	}
	return DefaultLedsRoot
}

// candidate name heuristics: vendor tokens seen in the wild on keyboard
// backlight LED class devices.
var candidateTokens = []string{
	"kbd",
	"keyboard",
	"rgb:kbd",
	"tuxedo::kbd",
	"clevo::kbd",
	"ite_8291_lb",
	"hp_omen::kbd",
	"dell::kbd",
	"tpacpi::kbd",
	"asus::kbd",
	"system76::kbd",
}

// noise LEDs frequently contain kbd substrings but are never the backlight.
var noiseTokens = []string{"capslock", "numlock", "scrolllock", "micmute", "mute"}

func isCandidateLed(name string) bool {
	n := strings.ToLower(name)
	for _, tok := range candidateTokens {
		if strings.Contains(n, tok) {
			return true
		}
	}
	return false
}

// scoreLedDir scores a LED directory for likelihood of being the keyboard
// backlight: name signals, RGB sub-attributes, accessibility, minus noise.
func scoreLedDir(dir string) int {
	name := strings.ToLower(filepath.Base(dir))
	score := 0

	if strings.Contains(name, "kbd_backlight") {
		score += 40
	}
	if strings.HasSuffix(name, "kbd_backlight") {
		score += 10
	}
	if strings.Contains(name, "keyboard") {
		score += 5
	}

	exists := func(attr string) bool {
		_, err := os.Stat(filepath.Join(dir, attr))
		return err == nil
	}
	if exists("multi_intensity") {
		score += 50
	}
	if exists("color") {
		score += 45
	}
	if exists("rgb") {
		score += 45
	}
	if exists("color_center") || exists("color_left") {
		score += 45
	}

	for _, noisy := range noiseTokens {
		if strings.Contains(name, noisy) {
			score -= 60
		}
	}

	brightness := filepath.Join(dir, "brightness")
	if _, err := os.Stat(brightness); err == nil {
		if unix_access(brightness, accessRead) == nil {
			score += 3
		}
		if unix_access(brightness, accessWrite) == nil {
			score += 7
		}
	}
	return score
}

// findCandidateLeds returns keyboard backlight candidates, best score first,
// ties broken lexically.
func findCandidateLeds(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if !isCandidateLed(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err != nil {
			continue
		}
		dirs = append(dirs, dir)
	}
	sort.SliceStable(dirs, func(i, j int) bool {
		si, sj := scoreLedDir(dirs[i]), scoreLedDir(dirs[j])
		if si != sj {
			return si > sj
		}
		return filepath.Base(dirs[i]) < filepath.Base(dirs[j])
	})
	return dirs
}
