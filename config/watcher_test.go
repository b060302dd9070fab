// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/kbdlight/types"
)

func TestWatcherPublishesExternalChange(t *testing.T) {
	store := newTestStore(t)
	w := NewWatcher(testLog(), store)
	defer w.Close()

	// An "external GUI" rewrites the document through its own store view.
	li := store.Intent()
	li.Effect = types.EffectTwinkle
	li.Brightness = 17
	require.NoError(t, store.Save(li))

	select {
	case got := <-w.Changes():
		assert.Equal(t, types.EffectTwinkle, got.Effect)
		assert.Equal(t, 17, got.Brightness)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event published")
	}
}
