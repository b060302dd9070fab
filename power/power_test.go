// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

func TestComputeSourcePolicy(t *testing.T) {
	testMatrix := map[string]struct {
		onAC     bool
		intent   types.LightingIntent
		expected SourcePolicy
	}{
		"ac defaults": {
			onAC: true,
			intent: types.LightingIntent{
				ACLighting: types.PowerSourcePolicy{Enabled: true, Brightness: -1},
			},
			expected: SourcePolicy{Enabled: true, Brightness: -1},
		},
		"ac with brightness override": {
			onAC: true,
			intent: types.LightingIntent{
				ACLighting: types.PowerSourcePolicy{Enabled: true, Brightness: 40},
			},
			expected: SourcePolicy{Enabled: true, Brightness: 40},
		},
		"battery disabled": {
			onAC: false,
			intent: types.LightingIntent{
				BatteryLighting: types.PowerSourcePolicy{Enabled: false, Brightness: -1},
			},
			expected: SourcePolicy{Enabled: false, Brightness: -1},
		},
		"battery explicit override beats saver": {
			onAC: false,
			intent: types.LightingIntent{
				BatteryLighting:        types.PowerSourcePolicy{Enabled: true, Brightness: 10},
				BatterySaverEnabled:    true,
				BatterySaverBrightness: 20,
			},
			expected: SourcePolicy{Enabled: true, Brightness: 10},
		},
		"battery saver fallback": {
			onAC: false,
			intent: types.LightingIntent{
				BatteryLighting:        types.PowerSourcePolicy{Enabled: true, Brightness: -1},
				BatterySaverEnabled:    true,
				BatterySaverBrightness: 20,
			},
			expected: SourcePolicy{Enabled: true, Brightness: 20},
		},
		"battery no saver no override": {
			onAC: false,
			intent: types.LightingIntent{
				BatteryLighting: types.PowerSourcePolicy{Enabled: true, Brightness: -1},
			},
			expected: SourcePolicy{Enabled: true, Brightness: -1},
		},
	}

	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		assert.Equal(t, test.expected, ComputeSourcePolicy(test.onAC, test.intent))
	}
}

func TestParseLidState(t *testing.T) {
	state, ok := parseLidState("state:      open\n")
	assert.True(t, ok)
	assert.Equal(t, LidOpen, state)

	state, ok = parseLidState("state:      closed\n")
	assert.True(t, ok)
	assert.Equal(t, LidClosed, state)

	_, ok = parseLidState("state:      unknown\n")
	assert.False(t, ok)
}

func TestParseAcpiLidLine(t *testing.T) {
	state, ok := parseAcpiLidLine("button/lid LID close")
	assert.True(t, ok)
	assert.Equal(t, LidClosed, state)

	state, ok = parseAcpiLidLine("button/lid LID open")
	assert.True(t, ok)
	assert.Equal(t, LidOpen, state)

	_, ok = parseAcpiLidLine("battery PNP0C0A:00 00000080 00000001")
	assert.False(t, ok)
}

func TestACObserverDebouncesAndDeduplicates(t *testing.T) {
	onAC := true
	read := func() *bool {
		v := onAC
		return &v
	}
	intent := func() types.LightingIntent {
		li := types.DefaultIntent()
		li.BatteryLighting.Brightness = 10
		return li
	}

	o := newACObserver(testLog(), read, intent,
		5*time.Millisecond, 20*time.Millisecond)
	defer o.Close()

	// First derivation fires once.
	var first ACEvent
	select {
	case first = <-o.Events():
	case <-time.After(time.Second):
		t.Fatal("no initial AC event")
	}
	assert.True(t, first.OnAC)

	// Stable state produces no further events.
	select {
	case ev := <-o.Events():
		t.Fatalf("unexpected duplicate event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// A transition to battery (after the debounce hold) changes the derived
	// tuple and fires exactly once.
	onAC = false
	var second ACEvent
	select {
	case second = <-o.Events():
	case <-time.After(time.Second):
		t.Fatal("no battery event")
	}
	assert.False(t, second.OnAC)
	assert.Equal(t, 10, second.Policy.Brightness)
}

func TestChannelIdleHook(t *testing.T) {
	hook := NewChannelIdleHook()
	hook.Push(IdleScreenAboutToDim)
	select {
	case ev := <-hook.Events():
		assert.Equal(t, IdleScreenAboutToDim, ev)
	default:
		t.Fatal("event not delivered")
	}
}
