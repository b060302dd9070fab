// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package asusctl drives ASUS Aura keyboards through the asusctl CLI rather
// than reimplementing the Aura protocol. Zones for virtual per-key support
// are configured via KBDLIGHT_ASUSCTL_ZONES.
package asusctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

const backendName = "asusctl-aura"

const cliTimeout = 2 * time.Second

// runner executes the vendor CLI with a bounded timeout; mocked in tests.
type runner func(args ...string) (stdout, stderr string, exitCode int, err error)

// Backend implements backend.KeyboardBackend over the asusctl CLI.
type Backend struct {
	log *base.LogObject
	run runner
}

// New creates the backend.
func New(log *base.LogObject) backend.KeyboardBackend {
	b := &Backend{log: log}
	b.run = b.execCLI
	return b
}

func cliPath() string {
	if p := os.Getenv(backend.EnvAsusctlPath); p != "" {
		return p
	}
	return "asusctl"
}

func configuredZones() []string {
	var zones []string
	for _, part := range strings.Split(os.Getenv(backend.EnvAsusctlZones), ",") {
		z := strings.TrimSpace(part)
		if z != "" {
			zones = append(zones, z)
		}
	}
	return zones
}

func (b *Backend) execCLI(args ...string) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, cliPath(), args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), -1,
			&types.Timeout{Op: cliPath() + " " + strings.Join(args, " "), Err: err}
	}
	exitCode := 0
	if err != nil {
		exitCode = -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// Name of this backend.
func (b *Backend) Name() string { return backendName }

// Priority for auto-selection tie-breaks. Higher than sysfs-leds and
// ite8291: when asusctl answers, it is the right tool on ASUS hardware.
func (b *Backend) Priority() int { return 120 }

// Probe checks for the CLI and that it can talk to the system daemon.
func (b *Backend) Probe() types.ProbeResult {
	if backend.UnderGoTest() && !backend.AllowHardware() &&
		os.Getenv(backend.EnvAsusctlPath) == "" {
		return types.ProbeResult{
			Available:  false,
			Reason:     "hardware access not allowed in this environment",
			Confidence: 0,
		}
	}
	exe := cliPath()
	if _, err := exec.LookPath(exe); err != nil {
		return types.ProbeResult{
			Available:  false,
			Reason:     "asusctl not found",
			Confidence: 0,
		}
	}
	stdout, stderr, exitCode, err := b.run("info")
	if err != nil && exitCode < 0 {
		return types.ProbeResult{
			Available:  false,
			Reason:     fmt.Sprintf("asusctl info failed: %v", err),
			Confidence: 0,
		}
	}
	if exitCode != 0 {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = strings.TrimSpace(stdout)
		}
		return types.ProbeResult{
			Available:  false,
			Reason:     fmt.Sprintf("asusctl info returned %d: %s", exitCode, detail),
			Confidence: 0,
		}
	}
	if strings.TrimSpace(stdout) == "" {
		return types.ProbeResult{
			Available:  false,
			Reason:     "asusctl info produced no output",
			Confidence: 0,
		}
	}

	identifiers := map[string]string{"asusctl": exe}
	for _, line := range strings.Split(stdout, "\n") {
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		k = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			if _, dup := identifiers[k]; !dup {
				identifiers[k] = v
			}
		}
	}
	return types.ProbeResult{
		Available:   true,
		Reason:      "asusctl present",
		Confidence:  92,
		Identifiers: identifiers,
	}
}

// Capabilities: zone-based color; per-key only as the virtual-zone illusion
// when more than one zone is configured.
func (b *Backend) Capabilities() types.BackendCapabilities {
	zones := configuredZones()
	return types.BackendCapabilities{
		PerKey:          len(zones) > 1,
		PerKeyNative:    false,
		Color:           true,
		HardwareEffects: false,
		Palette:         false,
	}
}

// OpenDevice binds a CLI-backed device.
func (b *Backend) OpenDevice() (backend.KeyboardDevice, error) {
	return newDevice(b.log, b.run, configuredZones()), nil
}

// MatrixDimensions: no real matrix; stable coordinate space for zones.
func (b *Backend) MatrixDimensions() (int, int) {
	return types.NumRows, types.NumCols
}

// HardwareEffects: the aura effect set is not driven through payloads here.
func (b *Backend) HardwareEffects() []string { return nil }

// Palette: none.
func (b *Backend) Palette() []string { return nil }
