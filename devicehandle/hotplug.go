// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package devicehandle

import (
	"strings"

	"github.com/eshard/uevent"

	"github.com/lf-edge/kbdlight/base"
)

// HotplugEvent signals that a USB or LED class device appeared or vanished.
type HotplugEvent struct {
	Action    string // "add" or "remove"
	Subsystem string
	DevPath   string
}

// HotplugWatcher follows kernel uevents so the daemon reacts to controller
// reconnects faster than the 0.5 Hz reacquire poll alone.
type HotplugWatcher struct {
	log    *base.LogObject
	events chan HotplugEvent
	stop   chan struct{}
	reader interface{ Close() error }
}

// NewHotplugWatcher subscribes to the kernel uevent socket. Returns an
// error (and no watcher) when the netlink socket is not available; the
// reacquire poll still covers recovery then.
func NewHotplugWatcher(log *base.LogObject) (*HotplugWatcher, error) {
	r, err := uevent.NewReader()
	if err != nil {
		return nil, err
	}
	w := &HotplugWatcher{
		log:    log,
		events: make(chan HotplugEvent, 16),
		stop:   make(chan struct{}),
		reader: r,
	}
	go w.run(uevent.NewDecoder(r))
	log.Functionf("uevent hotplug watcher started")
	return w, nil
}

// Events is the subscription channel.
func (w *HotplugWatcher) Events() <-chan HotplugEvent { return w.events }

// Close terminates the watcher.
func (w *HotplugWatcher) Close() {
	close(w.stop)
	_ = w.reader.Close()
}

// relevantSubsystem filters to the device families the backends drive.
func relevantSubsystem(subsystem string) bool {
	switch strings.ToLower(subsystem) {
	case "usb", "hid", "hidraw", "leds":
		return true
	}
	return false
}

func (w *HotplugWatcher) run(dec *uevent.Decoder) {
	for {
		ev, err := dec.Decode()
		if err != nil {
			select {
			case <-w.stop:
			default:
				w.log.Warnf("uevent decode failed, hotplug watcher exiting: %v", err)
			}
			return
		}
		action := string(ev.Action)
		if action != "add" && action != "remove" {
			continue
		}
		if !relevantSubsystem(ev.Subsystem) {
			continue
		}
		select {
		case w.events <- HotplugEvent{
			Action:    action,
			Subsystem: ev.Subsystem,
			DevPath:   ev.Devpath,
		}:
		default:
		}
	}
}
