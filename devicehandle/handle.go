// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package devicehandle serializes all device I/O behind one mutex and
// tracks device availability across disconnects.
package devicehandle

import (
	"sync"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// Handle wraps the selected backend's device. Every device-touching call
// site goes through Locked so a logical operation (e.g. enable user mode
// plus frame write) holds the lock for its whole duration, not per write.
type Handle struct {
	log *base.LogObject

	mu        sync.Mutex
	dev       backend.KeyboardDevice
	available bool
	lastError error
}

// New creates a handle over an opened device.
func New(log *base.LogObject, dev backend.KeyboardDevice) *Handle {
	return &Handle{log: log, dev: dev, available: dev != nil}
}

// Available reports whether the device is currently usable.
func (h *Handle) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.available && h.dev != nil
}

// LastError returns the most recent classified failure, for diagnostics.
func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// Locked runs fn with the device under the handle lock. When the device is
// unavailable fn is not called and Locked returns nil: pollers and effect
// workers keep running and the reconciler re-probes. Disconnect errors from
// fn flip the handle to unavailable; permission errors pass through without
// disabling the device.
func (h *Handle) Locked(fn func(dev backend.KeyboardDevice) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available || h.dev == nil {
		return nil
	}
	err := fn(h.dev)
	if err == nil {
		return nil
	}
	h.lastError = err
	if types.IsDeviceDisconnected(err) {
		h.log.Warnf("device disconnected, disabling writes: %v", err)
		h.available = false
		return err
	}
	return err
}

// Replace installs a newly reopened device after a reconnect.
func (h *Handle) Replace(dev backend.KeyboardDevice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev != nil && h.dev != dev {
		_ = h.dev.Close()
	}
	h.dev = dev
	h.available = dev != nil
	if dev != nil {
		h.lastError = nil
	}
}

// MarkUnavailable forces the handle into the no-device state (used when a
// worker detected the disconnect outside Locked).
func (h *Handle) MarkUnavailable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = false
}

// Close shuts the device down.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev != nil {
		_ = h.dev.Close()
		h.dev = nil
	}
	h.available = false
}
