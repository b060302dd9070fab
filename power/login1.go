// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/lf-edge/kbdlight/base"
)

// ResumeGracePeriod is how long lighting writes wait after a resume; the
// controller may not have re-enumerated yet.
const ResumeGracePeriod = 500 * time.Millisecond

// SleepEvent from logind: true means going to sleep, false means resumed.
type SleepEvent bool

// Sleep events.
const (
	SleepEnter SleepEvent = true
	SleepExit  SleepEvent = false
)

// SuspendObserver subscribes to the logind PrepareForSleep signal on the
// system bus. When D-Bus is unavailable the caller falls back to the
// acpi_listen observer.
type SuspendObserver struct {
	log    *base.LogObject
	conn   *dbus.Conn
	events chan SleepEvent
	stop   chan struct{}
}

// NewSuspendObserver connects to the system bus and subscribes. Returns an
// error when no bus is reachable so the caller can fall back.
func NewSuspendObserver(log *base.LogObject) (*SuspendObserver, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		_ = conn.Close()
		return nil, err
	}

	o := &SuspendObserver{
		log:    log,
		conn:   conn,
		events: make(chan SleepEvent, 4),
		stop:   make(chan struct{}),
	}
	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)
	go o.run(signals)
	log.Noticef("subscribed to login1 PrepareForSleep")
	return o, nil
}

// Events is the subscription channel.
func (o *SuspendObserver) Events() <-chan SleepEvent { return o.events }

// Close drops the bus connection.
func (o *SuspendObserver) Close() {
	close(o.stop)
	_ = o.conn.Close()
}

func (o *SuspendObserver) run(signals chan *dbus.Signal) {
	for {
		select {
		case <-o.stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig == nil || sig.Name != "org.freedesktop.login1.Manager.PrepareForSleep" {
				continue
			}
			if len(sig.Body) != 1 {
				continue
			}
			entering, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			o.log.Noticef("PrepareForSleep: %t", entering)
			select {
			case o.events <- SleepEvent(entering):
			case <-o.stop:
				return
			}
		}
	}
}
