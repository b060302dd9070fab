// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/types"
)

const (
	accessRead  = unix.R_OK
	accessWrite = unix.W_OK
)

func unix_access(path string, mode uint32) error {
	return unix.Access(path, mode)
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func writeString(path, content string, debug func(string)) error {
	if os.Getenv(backend.EnvDebugBright) == "1" && debug != nil {
		debug(fmt.Sprintf("sysfs.write %s <- %s", path, strings.TrimSpace(content)))
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func writeInt(path string, value int, debug func(string)) error {
	return writeString(path, fmt.Sprintf("%d\n", value), debug)
}

// SysfsFromIntent maps the 0..50 intent brightness onto a node's
// [0,max_brightness] range.
func SysfsFromIntent(brightness, maxBrightness int) int {
	if maxBrightness < 1 {
		maxBrightness = 1
	}
	b := types.ClampBrightness(brightness)
	return int(float64(b)/float64(types.BrightnessMax)*float64(maxBrightness) + 0.5)
}

// IntentFromSysfs maps a raw sysfs brightness back to the 0..50 scale.
func IntentFromSysfs(sysfsValue, maxBrightness int) int {
	if maxBrightness < 1 {
		maxBrightness = 1
	}
	if sysfsValue < 0 {
		sysfsValue = 0
	}
	return types.ClampBrightness(int(float64(sysfsValue)/
		float64(maxBrightness)*float64(types.BrightnessMax) + 0.5))
}
