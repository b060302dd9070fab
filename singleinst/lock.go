// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package singleinst enforces one daemon instance per user with an advisory
// file lock. A second instance would fight the first over the shared
// device, so losing the lock is a clean exit, not an error.
package singleinst

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lf-edge/kbdlight/base"
)

// LockFileName inside the config directory.
const LockFileName = "kbdlightd.lock"

// Lock holds the advisory lock for the process lifetime.
type Lock struct {
	flock *flock.Flock
}

// TryAcquire attempts the lock. Returns (nil, false, nil) when another
// instance already holds it.
func TryAcquire(log *base.LogObject, configDir string) (*Lock, bool, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, false, err
	}
	path := filepath.Join(configDir, LockFileName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, err
	}
	if !locked {
		log.Noticef("another instance holds %s", path)
		return nil, false, nil
	}
	log.Functionf("acquired instance lock %s", path)
	return &Lock{flock: fl}, true, nil
}

// Release drops the lock.
func (l *Lock) Release() {
	if l != nil && l.flock != nil {
		_ = l.flock.Unlock()
	}
}
