// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config persists the lighting intent as one JSON document and
// watches it for external mutation. The document is the primary IPC with
// the GUI collaborators: they write it, the daemon picks the change up.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// EnvConfigDir overrides the config directory location.
const EnvConfigDir = "KBDLIGHT_CONFIG_DIR"

// FileName of the config document.
const FileName = "config.json"

const (
	loadRetries    = 3
	loadRetryDelay = 20 * time.Millisecond
)

// Dir resolves the config directory (XDG config home by default).
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbdlight")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "kbdlight")
	}
	return filepath.Join(home, ".config", "kbdlight")
}

// document is the JSON wire format. Colors are [r,g,b] arrays and the
// per-key map is keyed by "row,col" strings to stay JSON-compatible.
type document struct {
	Effect     string            `json:"effect"`
	Speed      int               `json:"speed"`
	Brightness int               `json:"brightness"`
	Color      [3]int            `json:"color"`
	PerKey     map[string][3]int `json:"per_key_colors"`

	ReactiveColor          *[3]int `json:"reactive_color,omitempty"`
	ReactiveUseManualColor bool    `json:"reactive_use_manual_color"`
	ReactiveBrightness     *int    `json:"reactive_brightness,omitempty"`
	PerKeyBrightness       *int    `json:"per_key_brightness,omitempty"`

	Autostart              *bool `json:"autostart,omitempty"`
	OSAutostart            bool  `json:"os_autostart"`
	PowerManagementEnabled *bool `json:"power_management_enabled,omitempty"`
	PowerOffOnSuspend      *bool `json:"power_off_on_suspend,omitempty"`
	PowerRestoreOnResume   *bool `json:"power_restore_on_resume,omitempty"`
	PowerOffOnLidClose     *bool `json:"power_off_on_lid_close,omitempty"`
	PowerRestoreOnLidOpen  *bool `json:"power_restore_on_lid_open,omitempty"`

	BatterySaverEnabled    bool `json:"battery_saver_enabled"`
	BatterySaverBrightness *int `json:"battery_saver_brightness,omitempty"`

	ACLightingEnabled         *bool `json:"ac_lighting_enabled,omitempty"`
	ACLightingBrightness      *int  `json:"ac_lighting_brightness,omitempty"`
	BatteryLightingEnabled    *bool `json:"battery_lighting_enabled,omitempty"`
	BatteryLightingBrightness *int  `json:"battery_lighting_brightness,omitempty"`

	ScreenDimSyncEnabled        bool   `json:"screen_dim_sync_enabled"`
	ScreenDimSyncMode           string `json:"screen_dim_sync_mode,omitempty"`
	ScreenDimSyncTempBrightness *int   `json:"screen_dim_sync_temp_brightness,omitempty"`
}

func colorToArray(c types.Color) [3]int {
	return [3]int{int(c.R), int(c.G), int(c.B)}
}

func arrayToColor(a [3]int) types.Color {
	clip := func(v int) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	return types.Color{R: clip(a[0]), G: clip(a[1]), B: clip(a[2])}
}

// toDocument serializes an intent.
func toDocument(li types.LightingIntent) document {
	doc := document{
		Effect:     li.Effect,
		Speed:      li.Speed,
		Brightness: li.Brightness,
		Color:      colorToArray(li.Color),
		PerKey:     map[string][3]int{},

		ReactiveUseManualColor: li.ReactiveUseManualColor,
		ReactiveBrightness:     intPtr(li.ReactiveBrightness),
		PerKeyBrightness:       intPtr(li.PerKeyBrightness),

		Autostart:              boolPtr(li.Autostart),
		OSAutostart:            li.OSAutostart,
		PowerManagementEnabled: boolPtr(li.PowerManagementEnabled),
		PowerOffOnSuspend:      boolPtr(li.PowerOffOnSuspend),
		PowerRestoreOnResume:   boolPtr(li.PowerRestoreOnResume),
		PowerOffOnLidClose:     boolPtr(li.PowerOffOnLidClose),
		PowerRestoreOnLidOpen:  boolPtr(li.PowerRestoreOnLidOpen),

		BatterySaverEnabled:    li.BatterySaverEnabled,
		BatterySaverBrightness: intPtr(li.BatterySaverBrightness),

		ACLightingEnabled:      boolPtr(li.ACLighting.Enabled),
		BatteryLightingEnabled: boolPtr(li.BatteryLighting.Enabled),

		ScreenDimSyncEnabled:        li.ScreenDimSyncEnabled,
		ScreenDimSyncMode:           string(li.ScreenDimSyncMode),
		ScreenDimSyncTempBrightness: intPtr(li.ScreenDimSyncTempBrightness),
	}
	if li.ReactiveColor != nil {
		arr := colorToArray(*li.ReactiveColor)
		doc.ReactiveColor = &arr
	}
	if li.ACLighting.Brightness >= 0 {
		doc.ACLightingBrightness = intPtr(li.ACLighting.Brightness)
	}
	if li.BatteryLighting.Brightness >= 0 {
		doc.BatteryLightingBrightness = intPtr(li.BatteryLighting.Brightness)
	}
	for k, c := range li.PerKey {
		doc.PerKey[k.String()] = colorToArray(c)
	}
	return doc
}

// fromDocument deserializes, filling missing keys from the defaults and
// dropping per-key entries outside the matrix.
func fromDocument(doc document) types.LightingIntent {
	li := types.DefaultIntent()
	if doc.Effect != "" {
		li.Effect = types.NormalizeEffectName(doc.Effect)
	}
	li.Speed = doc.Speed
	li.Brightness = doc.Brightness
	li.Color = arrayToColor(doc.Color)
	li.PerKey = types.PerKeyMap{}
	for key, arr := range doc.PerKey {
		coord, err := types.ParseKeyCoord(key)
		if err != nil {
			continue
		}
		li.PerKey[coord] = arrayToColor(arr)
	}

	if doc.ReactiveColor != nil {
		c := arrayToColor(*doc.ReactiveColor)
		li.ReactiveColor = &c
	}
	li.ReactiveUseManualColor = doc.ReactiveUseManualColor
	setInt(&li.ReactiveBrightness, doc.ReactiveBrightness)
	setInt(&li.PerKeyBrightness, doc.PerKeyBrightness)

	setBool(&li.Autostart, doc.Autostart)
	li.OSAutostart = doc.OSAutostart
	setBool(&li.PowerManagementEnabled, doc.PowerManagementEnabled)
	setBool(&li.PowerOffOnSuspend, doc.PowerOffOnSuspend)
	setBool(&li.PowerRestoreOnResume, doc.PowerRestoreOnResume)
	setBool(&li.PowerOffOnLidClose, doc.PowerOffOnLidClose)
	setBool(&li.PowerRestoreOnLidOpen, doc.PowerRestoreOnLidOpen)

	li.BatterySaverEnabled = doc.BatterySaverEnabled
	setInt(&li.BatterySaverBrightness, doc.BatterySaverBrightness)

	setBool(&li.ACLighting.Enabled, doc.ACLightingEnabled)
	if doc.ACLightingBrightness != nil {
		li.ACLighting.Brightness = *doc.ACLightingBrightness
	}
	setBool(&li.BatteryLighting.Enabled, doc.BatteryLightingEnabled)
	if doc.BatteryLightingBrightness != nil {
		li.BatteryLighting.Brightness = *doc.BatteryLightingBrightness
	}

	li.ScreenDimSyncEnabled = doc.ScreenDimSyncEnabled
	if doc.ScreenDimSyncMode != "" {
		li.ScreenDimSyncMode = types.ScreenDimMode(doc.ScreenDimSyncMode)
	}
	setInt(&li.ScreenDimSyncTempBrightness, doc.ScreenDimSyncTempBrightness)

	li.Normalize()
	return li
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Store owns the on-disk document and the last good in-memory copy.
type Store struct {
	log  *base.LogObject
	dir  string
	path string

	mu     sync.Mutex
	intent types.LightingIntent
}

// NewStore loads (or initializes) the config document under dir.
func NewStore(log *base.LogObject, dir string) (*Store, error) {
	if dir == "" {
		dir = Dir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		log:  log,
		dir:  dir,
		path: filepath.Join(dir, FileName),
	}
	intent, err := s.load()
	if err != nil {
		// Unreadable document on first load: run on defaults, do not
		// overwrite the file (it may recover on the next write from a GUI).
		log.Warnf("config load failed, using defaults: %v", err)
		intent = types.DefaultIntent()
	}
	s.intent = intent
	return s, nil
}

// Path of the document on disk.
func (s *Store) Path() string { return s.path }

// ConfigDir of the store.
func (s *Store) ConfigDir() string { return s.dir }

// Intent returns a copy of the current in-memory intent.
func (s *Store) Intent() types.LightingIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyIntentLocked()
}

func (s *Store) copyIntentLocked() types.LightingIntent {
	li := s.intent
	perKey := make(types.PerKeyMap, len(li.PerKey))
	for k, v := range li.PerKey {
		perKey[k] = v
	}
	li.PerKey = perKey
	if li.ReactiveColor != nil {
		c := *li.ReactiveColor
		li.ReactiveColor = &c
	}
	return li
}

// load reads the document, retrying transient JSON syntax errors: a
// concurrent writer may have truncated the file between rename steps.
func (s *Store) load() (types.LightingIntent, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return types.DefaultIntent(), nil
	}
	var lastErr error
	for attempt := 0; attempt < loadRetries; attempt++ {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return types.LightingIntent{}, err
		}
		// Start from the defaults so keys absent from the file keep them.
		doc := toDocument(types.DefaultIntent())
		if err := json.Unmarshal(data, &doc); err != nil {
			var syntaxErr *json.SyntaxError
			if ok := asJSONError(err, &syntaxErr); ok {
				lastErr = err
				time.Sleep(loadRetryDelay)
				continue
			}
			return types.LightingIntent{},
				&types.ConfigCorrupt{Path: s.path, Err: err}
		}
		return fromDocument(doc), nil
	}
	return types.LightingIntent{},
		&types.ConfigCorrupt{Path: s.path, Err: lastErr}
}

func asJSONError(err error, target **json.SyntaxError) bool {
	if se, ok := err.(*json.SyntaxError); ok {
		*target = se
		return true
	}
	// An empty file mid-truncation decodes to io.EOF-ish unexpected end.
	return err != nil &&
		(err.Error() == "unexpected end of JSON input")
}

// Reload re-reads the document. On failure the previous in-memory intent is
// kept rather than replaced with defaults.
func (s *Store) Reload() (types.LightingIntent, error) {
	intent, err := s.load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Warnf("config reload failed, keeping previous document: %v", err)
		return s.copyIntentLocked(), err
	}
	s.intent = intent
	return s.copyIntentLocked(), nil
}

// Save writes the intent atomically: temp file in the same directory,
// fsync, rename over the target.
func (s *Store) Save(li types.LightingIntent) error {
	li.Normalize()
	s.mu.Lock()
	s.intent = li
	s.mu.Unlock()

	doc := toDocument(li)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "config.*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// Mutate applies fn to a copy of the current intent and saves the result.
func (s *Store) Mutate(fn func(li *types.LightingIntent)) error {
	li := s.Intent()
	fn(&li)
	return s.Save(li)
}
