// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// PermissionDenied is returned when a device node or sysfs attribute is not
// accessible to the current user. It carries remediation guidance for the
// one-shot desktop notification.
type PermissionDenied struct {
	Path        string
	Remediation string
	Err         error
}

// Error message.
func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied accessing %s: %v", e.Path, e.Err)
}

// Unwrap for errors.Is/As.
func (e *PermissionDenied) Unwrap() error { return e.Err }

// DeviceDisconnected is returned when the controller vanished mid-write.
type DeviceDisconnected struct {
	Device string
	Err    error
}

// Error message.
func (e *DeviceDisconnected) Error() string {
	return fmt.Sprintf("device %s disconnected: %v", e.Device, e.Err)
}

// Unwrap for errors.Is/As.
func (e *DeviceDisconnected) Unwrap() error { return e.Err }

// DeviceBusy is returned when another process holds the device.
type DeviceBusy struct {
	Device string
	Err    error
}

// Error message.
func (e *DeviceBusy) Error() string {
	return fmt.Sprintf("device %s busy: %v", e.Device, e.Err)
}

// Unwrap for errors.Is/As.
func (e *DeviceBusy) Unwrap() error { return e.Err }

// ProtocolError is returned when the controller rejected or garbled a frame.
type ProtocolError struct {
	Device string
	Detail string
}

// Error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device %s protocol error: %s", e.Device, e.Detail)
}

// ConfigCorrupt is returned when the config document cannot be parsed after
// retries.
type ConfigCorrupt struct {
	Path string
	Err  error
}

// Error message.
func (e *ConfigCorrupt) Error() string {
	return fmt.Sprintf("config %s corrupt: %v", e.Path, e.Err)
}

// Unwrap for errors.Is/As.
func (e *ConfigCorrupt) Unwrap() error { return e.Err }

// BackendUnsupported is returned by a probe that positively identified
// hardware this backend must not drive (e.g. a deny-listed controller).
type BackendUnsupported struct {
	Backend     string
	Identifiers map[string]string
	Reason      string
}

// Error message.
func (e *BackendUnsupported) Error() string {
	return fmt.Sprintf("backend %s: unsupported device: %s", e.Backend, e.Reason)
}

// Timeout is returned when a bounded subprocess or I/O deadline was missed.
type Timeout struct {
	Op  string
	Err error
}

// Error message.
func (e *Timeout) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

// Unwrap for errors.Is/As.
func (e *Timeout) Unwrap() error { return e.Err }

// IsPermissionDenied classifies both the typed error and raw OS errors.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var pd *PermissionDenied
	if errors.As(err, &pd) {
		return true
	}
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "access denied")
}

// IsDeviceDisconnected classifies both the typed error and raw OS errors.
// Linux reports a vanished USB device as ENODEV (19).
func IsDeviceDisconnected(err error) bool {
	if err == nil {
		return false
	}
	var dd *DeviceDisconnected
	if errors.As(err, &dd) {
		return true
	}
	if errors.Is(err, unix.ENODEV) {
		return true
	}
	return strings.Contains(err.Error(), "No such device")
}

// IsDeviceBusy classifies both the typed error and raw OS errors.
func IsDeviceBusy(err error) bool {
	if err == nil {
		return false
	}
	var db *DeviceBusy
	if errors.As(err, &db) {
		return true
	}
	return errors.Is(err, unix.EBUSY)
}
