// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package status is the daemon's outward face: a publish-only notification
// feed for GUIs/tray consumers and the diagnostics snapshot.
package status

import (
	"encoding/json"
	"sync"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// NotificationKind classifies a published notification.
type NotificationKind string

// Notification kinds.
const (
	NotifyPermission  NotificationKind = "permission"
	NotifyDeviceGone  NotificationKind = "device_gone"
	NotifyDeviceBack  NotificationKind = "device_back"
	NotifyStateChange NotificationKind = "state_change"
)

// Notification is one published event. Consumers render it however they
// like (desktop notification, tray tooltip); the daemon never blocks on
// them.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Summary string           `json:"summary"`
	Body    string           `json:"body"`
}

// Publisher fans notifications out to subscribers and keeps the
// diagnostics snapshot current. Permission guidance is published at most
// once per process lifetime.
type Publisher struct {
	log *base.LogObject

	mu                 sync.Mutex
	subs               []chan Notification
	permissionNotified bool
	snapshot           types.DiagSnapshot
}

// NewPublisher creates the publisher.
func NewPublisher(log *base.LogObject) *Publisher {
	return &Publisher{log: log}
}

// Subscribe returns a buffered notification channel. Slow consumers drop
// events rather than stalling the daemon.
func (p *Publisher) Subscribe() <-chan Notification {
	ch := make(chan Notification, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish fans one notification out.
func (p *Publisher) Publish(n Notification) {
	p.mu.Lock()
	subs := make([]chan Notification, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// PublishPermissionError publishes the remediation guidance exactly once
// per process lifetime; repeated permission failures stay in the log only.
func (p *Publisher) PublishPermissionError(err error) {
	p.mu.Lock()
	already := p.permissionNotified
	p.permissionNotified = true
	p.mu.Unlock()
	if already {
		p.log.Functionf("suppressing repeated permission notification: %v", err)
		return
	}
	body := "kbdlightd cannot access the keyboard lighting device."
	var pd *types.PermissionDenied
	if asPermission(err, &pd) && pd.Remediation != "" {
		body = pd.Remediation
	}
	p.Publish(Notification{
		Kind:    NotifyPermission,
		Summary: "Keyboard lighting permission problem",
		Body:    body,
	})
}

func asPermission(err error, target **types.PermissionDenied) bool {
	for err != nil {
		if pd, ok := err.(*types.PermissionDenied); ok {
			*target = pd
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// UpdateSnapshot replaces the diagnostics snapshot.
func (p *Publisher) UpdateSnapshot(snap types.DiagSnapshot) {
	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()
}

// SetLastError records the most recent device failure in the snapshot.
func (p *Publisher) SetLastError(err error) {
	p.mu.Lock()
	if err != nil {
		p.snapshot.LastError = err.Error()
	} else {
		p.snapshot.LastError = ""
	}
	p.mu.Unlock()
}

// SetEffectiveState records the reconciled state in the snapshot.
func (p *Publisher) SetEffectiveState(state types.EffectiveState) {
	p.mu.Lock()
	p.snapshot.EffectiveState = state
	p.mu.Unlock()
}

// Snapshot returns a copy of the diagnostics read-out.
func (p *Publisher) Snapshot() types.DiagSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// SnapshotJSON renders the diagnostics read-out for copy-paste.
func (p *Publisher) SnapshotJSON() string {
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
