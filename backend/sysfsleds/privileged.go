// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// helperBinary applies LED writes with elevated privileges when the sysfs
// node is root-owned and no udev rule is installed.
const helperBinary = "kbdlight-helper"

const helperTimeout = 2 * time.Second

// privilegedHelper shells out to kbdlight-helper through pkexec or sudo.
type privilegedHelper struct {
	log    *base.LogObject
	lookup func(string) (string, error)
	runner func(ctx context.Context, name string, args ...string) error
}

func newPrivilegedHelper(log *base.LogObject) *privilegedHelper {
	return &privilegedHelper{
		log:    log,
		lookup: exec.LookPath,
		runner: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// available reports whether the helper and an elevation mechanism exist.
func (h *privilegedHelper) available() bool {
	if _, err := h.lookup(helperBinary); err != nil {
		return false
	}
	for _, elevate := range []string{"pkexec", "sudo"} {
		if _, err := h.lookup(elevate); err == nil {
			return true
		}
	}
	return false
}

// applyLed writes brightness (and optionally RGB) to one LED via the helper.
func (h *privilegedHelper) applyLed(led string, brightness int, rgb *[3]int) error {
	helper, err := h.lookup(helperBinary)
	if err != nil {
		return err
	}
	args := []string{helper, "led-apply", "--led", led,
		"--brightness", fmt.Sprintf("%d", brightness)}
	if rgb != nil {
		args = append(args, "--rgb",
			fmt.Sprintf("%d,%d,%d", rgb[0], rgb[1], rgb[2]))
	}

	var elevate string
	for _, candidate := range []string{"pkexec", "sudo"} {
		if _, err := h.lookup(candidate); err == nil {
			elevate = candidate
			break
		}
	}
	if elevate == "" {
		return fmt.Errorf("no elevation mechanism for %s", helperBinary)
	}

	ctx, cancel := context.WithTimeout(context.Background(), helperTimeout)
	defer cancel()
	if err := h.runner(ctx, elevate, args...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &types.Timeout{Op: helperBinary + " led-apply", Err: err}
		}
		return err
	}
	h.log.Functionf("privileged helper applied led=%s brightness=%d", led, brightness)
	return nil
}
