// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package power

// IdleEvent is reported by the pluggable screen-idle hook. Desktop
// integrations (GNOME/KDE idle inhibitors, swayidle hooks) translate their
// notion of idleness into these four events.
type IdleEvent string

// Idle events.
const (
	IdleScreenAboutToDim   IdleEvent = "about_to_dim"
	IdleScreenAboutToUndim IdleEvent = "about_to_undim"
	IdleScreenOff          IdleEvent = "screen_off"
	IdleScreenOn           IdleEvent = "screen_on"
)

// IdleHook is implemented by screen-idle integrations.
type IdleHook interface {
	Events() <-chan IdleEvent
	Close()
}

// NullIdleHook is used when no desktop integration is wired.
type NullIdleHook struct {
	ch chan IdleEvent
}

// NewNullIdleHook creates a hook that never fires.
func NewNullIdleHook() *NullIdleHook {
	return &NullIdleHook{ch: make(chan IdleEvent)}
}

// Events never yields.
func (h *NullIdleHook) Events() <-chan IdleEvent { return h.ch }

// Close is a no-op.
func (h *NullIdleHook) Close() {}

// ChannelIdleHook adapts an externally fed channel (also used by tests).
type ChannelIdleHook struct {
	ch chan IdleEvent
}

// NewChannelIdleHook creates a hook the owner pushes events into.
func NewChannelIdleHook() *ChannelIdleHook {
	return &ChannelIdleHook{ch: make(chan IdleEvent, 4)}
}

// Push feeds one event.
func (h *ChannelIdleHook) Push(ev IdleEvent) {
	select {
	case h.ch <- ev:
	default:
	}
}

// Events is the subscription channel.
func (h *ChannelIdleHook) Events() <-chan IdleEvent { return h.ch }

// Close is a no-op; the owner controls the channel.
func (h *ChannelIdleHook) Close() {}
