// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lf-edge/kbdlight/base"
)

// lidPollInterval is the lid state poll cadence (~2 Hz).
const lidPollInterval = 500 * time.Millisecond

// lidGlob matches the ACPI lid state files.
const lidGlob = "/proc/acpi/button/lid/*/state"

// LidState of the laptop lid.
type LidState string

// Lid states.
const (
	LidOpen   LidState = "open"
	LidClosed LidState = "closed"
)

// LidObserver polls the ACPI lid state file and publishes transitions.
type LidObserver struct {
	log    *base.LogObject
	path   string
	events chan LidState
	stop   chan struct{}
	poll   time.Duration
}

// NewLidObserver locates the lid state file and starts polling. Returns nil
// when the platform exposes no lid (desktops, some VMs).
func NewLidObserver(log *base.LogObject) *LidObserver {
	matches, _ := filepath.Glob(lidGlob)
	if len(matches) == 0 {
		log.Warnf("no lid state file found; lid monitoring disabled")
		return nil
	}
	return newLidObserver(log, matches[0], lidPollInterval)
}

func newLidObserver(log *base.LogObject, path string,
	poll time.Duration) *LidObserver {

	o := &LidObserver{
		log:    log,
		path:   path,
		events: make(chan LidState, 4),
		stop:   make(chan struct{}),
		poll:   poll,
	}
	log.Noticef("monitoring lid state from %s", path)
	go o.run()
	return o
}

// Events is the subscription channel.
func (o *LidObserver) Events() <-chan LidState { return o.events }

// Close stops the poller.
func (o *LidObserver) Close() { close(o.stop) }

// parseLidState extracts open/closed from the ACPI state file content
// ("state:      open").
func parseLidState(content string) (LidState, bool) {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "open"):
		return LidOpen, true
	case strings.Contains(lower, "closed"):
		return LidClosed, true
	}
	return "", false
}

func (o *LidObserver) run() {
	var last LidState
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}

		data, err := os.ReadFile(o.path)
		if err != nil {
			o.log.WarnThrottledf("lid.read", time.Minute,
				"error reading lid state: %v", err)
			continue
		}
		state, ok := parseLidState(string(data))
		if !ok || state == last {
			continue
		}
		if last != "" {
			o.log.Noticef("lid state changed: %s -> %s", last, state)
			select {
			case o.events <- state:
			case <-o.stop:
				return
			}
		}
		last = state
	}
}
