// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package power watches lid, suspend, AC/battery and screen-idle state and
// feeds the reconciler with the resulting policy events.
package power

import (
	"strings"
	"time"

	"github.com/prometheus/procfs/sysfs"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

const (
	acPollInterval = 2 * time.Second
	acDebounce     = 3 * time.Second
)

// SourcePolicy is the desired lighting state derived for the active power
// source.
type SourcePolicy struct {
	Enabled bool
	// Brightness <0 means "no override".
	Brightness int
}

// ComputeSourcePolicy derives (enabled, brightness) for the current power
// source from the intent's policy flags. Per-source overrides win; the
// legacy battery-saver dim applies on battery when no explicit battery
// brightness is configured.
func ComputeSourcePolicy(onAC bool, li types.LightingIntent) SourcePolicy {
	if onAC {
		return SourcePolicy{
			Enabled:    li.ACLighting.Enabled,
			Brightness: li.ACLighting.Brightness,
		}
	}
	policy := SourcePolicy{
		Enabled:    li.BatteryLighting.Enabled,
		Brightness: li.BatteryLighting.Brightness,
	}
	if policy.Brightness < 0 && li.BatterySaverEnabled {
		policy.Brightness = li.BatterySaverBrightness
	}
	return policy
}

// acReader reports whether the machine runs on AC power; nil result means
// "unknown" (no power supply class present).
type acReader func() *bool

// sysfsACReader reads /sys/class/power_supply through procfs' sysfs
// bindings: any Mains-type supply online counts as AC.
func sysfsACReader(mountPoint string) acReader {
	return func() *bool {
		fs, err := sysfs.NewFS(mountPoint)
		if err != nil {
			return nil
		}
		supplies, err := fs.PowerSupplyClass()
		if err != nil {
			return nil
		}
		sawMains := false
		for _, supply := range supplies {
			if supply.Type == "" {
				continue
			}
			if !strings.EqualFold(supply.Type, "Mains") {
				continue
			}
			sawMains = true
			if supply.Online != nil && *supply.Online != 0 {
				result := true
				return &result
			}
		}
		if !sawMains {
			return nil
		}
		result := false
		return &result
	}
}

// ACEvent is published when the derived source policy changes.
type ACEvent struct {
	OnAC   bool
	Policy SourcePolicy
}

// ACObserver polls the power supply class with debouncing: plug chatter
// within the hold window is absorbed, and callbacks fire only when the
// derived (enabled, brightness) tuple actually changes.
type ACObserver struct {
	log    *base.LogObject
	read   acReader
	intent func() types.LightingIntent
	events chan ACEvent
	stop   chan struct{}

	poll     time.Duration
	debounce time.Duration
}

// NewACObserver starts the AC/battery poller. intent is consulted on every
// tick so policy edits apply without restart.
func NewACObserver(log *base.LogObject,
	intent func() types.LightingIntent) *ACObserver {
	return newACObserver(log, sysfsACReader("/sys"), intent,
		acPollInterval, acDebounce)
}

func newACObserver(log *base.LogObject, read acReader,
	intent func() types.LightingIntent,
	poll, debounce time.Duration) *ACObserver {

	o := &ACObserver{
		log:      log,
		read:     read,
		intent:   intent,
		events:   make(chan ACEvent, 4),
		stop:     make(chan struct{}),
		poll:     poll,
		debounce: debounce,
	}
	go o.run()
	return o
}

// Events is the subscription channel.
func (o *ACObserver) Events() <-chan ACEvent { return o.events }

// Close stops the poller.
func (o *ACObserver) Close() { close(o.stop) }

func (o *ACObserver) run() {
	var lastOnAC *bool
	var lastChange time.Time
	var lastPolicy *SourcePolicy

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}

		onACPtr := o.read()
		if onACPtr == nil {
			continue
		}
		onAC := *onACPtr
		now := time.Now()

		if lastOnAC != nil && onAC != *lastOnAC {
			// Debounce rapid toggling around plug/unplug.
			if now.Sub(lastChange) < o.debounce {
				continue
			}
			lastChange = now
		} else if lastOnAC == nil {
			lastChange = now
		}
		lastOnAC = &onAC

		li := o.intent()
		if !li.PowerManagementEnabled {
			continue
		}
		policy := ComputeSourcePolicy(onAC, li)
		if lastPolicy != nil && *lastPolicy == policy {
			continue
		}
		lastPolicy = &policy
		o.log.Noticef("power source changed: onAC=%t enabled=%t brightness=%d",
			onAC, policy.Enabled, policy.Brightness)
		select {
		case o.events <- ACEvent{OnAC: onAC, Policy: policy}:
		case <-o.stop:
			return
		}
	}
}
