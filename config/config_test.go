// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

func testLog() *base.LogObject {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return base.NewLogObject(logger, "test")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testLog(), t.TempDir())
	require.NoError(t, err)
	return store
}

func TestDefaultsOnFreshStore(t *testing.T) {
	store := newTestStore(t)
	li := store.Intent()
	defaults := types.DefaultIntent()
	assert.Equal(t, defaults.Effect, li.Effect)
	assert.Equal(t, defaults.Speed, li.Speed)
	assert.Equal(t, defaults.Brightness, li.Brightness)
	assert.True(t, li.PowerManagementEnabled)
}

func TestSaveReloadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	li := types.DefaultIntent()
	li.Effect = types.EffectPerKey
	li.Speed = 7
	li.Brightness = 42
	li.Color = types.Color{R: 1, G: 2, B: 3}
	li.PerKey = types.PerKeyMap{
		{Row: 0, Col: 0}:  {R: 255},
		{Row: 5, Col: 20}: {G: 128, B: 7},
	}
	accent := types.Color{B: 200}
	li.ReactiveColor = &accent
	li.ReactiveUseManualColor = true
	li.BatterySaverEnabled = true
	li.ACLighting.Brightness = 40

	require.NoError(t, store.Save(li))
	reloaded, err := store.Reload()
	require.NoError(t, err)

	// Per-key serialize/deserialize is the identity on valid maps.
	if diff := cmp.Diff(li.PerKey, reloaded.PerKey); diff != "" {
		t.Fatalf("per-key map mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, li.Effect, reloaded.Effect)
	assert.Equal(t, li.Speed, reloaded.Speed)
	assert.Equal(t, li.Brightness, reloaded.Brightness)
	assert.Equal(t, li.Color, reloaded.Color)
	require.NotNil(t, reloaded.ReactiveColor)
	assert.Equal(t, accent, *reloaded.ReactiveColor)
	assert.True(t, reloaded.ReactiveUseManualColor)
	assert.True(t, reloaded.BatterySaverEnabled)
	assert.Equal(t, 40, reloaded.ACLighting.Brightness)
}

func TestPerKeySerializedAsRowColStrings(t *testing.T) {
	store := newTestStore(t)
	li := types.DefaultIntent()
	li.PerKey = types.PerKeyMap{{Row: 2, Col: 13}: {R: 9, G: 8, B: 7}}
	require.NoError(t, store.Save(li))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	perKey, ok := raw["per_key_colors"].(map[string]interface{})
	require.True(t, ok)
	_, ok = perKey["2,13"]
	assert.True(t, ok)
}

func TestEffectLowercasedOnLoad(t *testing.T) {
	dir := t.TempDir()
	doc := `{"effect": "Rainbow_Wave", "speed": 3, "brightness": 20, "color": [1,2,3]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(doc), 0644))

	store, err := NewStore(testLog(), dir)
	require.NoError(t, err)
	assert.Equal(t, "rainbow_wave", store.Intent().Effect)
}

func TestInvalidPerKeyCoordsDropped(t *testing.T) {
	dir := t.TempDir()
	doc := `{"effect": "perkey", "color": [0,0,0],
		"per_key_colors": {"1,1": [1,2,3], "9,9": [4,5,6], "junk": [7,8,9]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(doc), 0644))

	store, err := NewStore(testLog(), dir)
	require.NoError(t, err)
	perKey := store.Intent().PerKey
	assert.Len(t, perKey, 1)
	assert.Contains(t, perKey, types.KeyCoord{Row: 1, Col: 1})
}

func TestTruncatedFileKeepsPreviousSnapshot(t *testing.T) {
	store := newTestStore(t)
	li := types.DefaultIntent()
	li.Effect = types.EffectFire
	li.Brightness = 33
	require.NoError(t, store.Save(li))

	// Simulate a concurrent writer truncating the document.
	require.NoError(t, os.WriteFile(store.Path(), []byte("{\"eff"), 0644))

	reloaded, err := store.Reload()
	assert.Error(t, err)
	// The previous valid snapshot is retained.
	assert.Equal(t, types.EffectFire, reloaded.Effect)
	assert.Equal(t, 33, reloaded.Brightness)
}

func TestMissingKeysFilledFromDefaults(t *testing.T) {
	dir := t.TempDir()
	doc := `{"effect": "strobe", "speed": 9, "brightness": 10, "color": [0,255,0]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(doc), 0644))

	store, err := NewStore(testLog(), dir)
	require.NoError(t, err)
	li := store.Intent()
	defaults := types.DefaultIntent()
	assert.True(t, li.PowerOffOnSuspend)
	assert.Equal(t, defaults.BatterySaverBrightness, li.BatterySaverBrightness)
	assert.Equal(t, defaults.ACLighting, li.ACLighting)
}

func TestAtomicSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(types.DefaultIntent()))
	entries, err := os.ReadDir(store.ConfigDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.Ext(e.Name()) == ".tmp",
			"leftover temp file %s", e.Name())
	}
}

func TestMutate(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Mutate(func(li *types.LightingIntent) {
		li.Brightness = 11
	}))
	assert.Equal(t, 11, store.Intent().Brightness)
	reloaded, err := store.Reload()
	require.NoError(t, err)
	assert.Equal(t, 11, reloaded.Brightness)
}
