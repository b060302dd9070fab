// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// pollInterval is the mtime fallback cadence (~10 Hz). fsnotify covers the
// common case; the poll catches editors and filesystems that defeat it.
const pollInterval = 100 * time.Millisecond

// Watcher publishes a reloaded intent whenever the document changes on disk.
type Watcher struct {
	log   *base.LogObject
	store *Store
	sub   chan types.LightingIntent
	stop  chan struct{}
}

// NewWatcher starts watching the store's document. Events are buffered so a
// slow consumer cannot make the watcher miss an fsnotify notification.
func NewWatcher(log *base.LogObject, store *Store) *Watcher {
	w := &Watcher{
		log:   log,
		store: store,
		sub:   make(chan types.LightingIntent, 10),
		stop:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Changes is the subscription channel.
func (w *Watcher) Changes() <-chan types.LightingIntent {
	return w.sub
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.stop)
}

func (w *Watcher) run() {
	var fsEvents chan fsnotify.Event
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warnf("fsnotify unavailable, falling back to polling only: %v", err)
	} else if err := fsw.Add(w.store.ConfigDir()); err != nil {
		w.log.Warnf("fsnotify watch failed, falling back to polling only: %v", err)
		_ = fsw.Close()
		fsw = nil
	}
	if fsw != nil {
		fsEvents = make(chan fsnotify.Event, 10)
		go func() {
			for ev := range fsw.Events {
				select {
				case fsEvents <- ev:
				default:
				}
			}
		}()
		defer fsw.Close()
	}

	lastMtime := w.mtime()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev := <-fsEvents:
			if ev.Name != w.store.Path() {
				continue
			}
			w.publish()
			lastMtime = w.mtime()
		case <-ticker.C:
			mtime := w.mtime()
			if mtime != lastMtime {
				lastMtime = mtime
				w.publish()
			}
		}
	}
}

func (w *Watcher) mtime() time.Time {
	fi, err := os.Stat(w.store.Path())
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (w *Watcher) publish() {
	intent, err := w.store.Reload()
	if err != nil {
		// Keep the previous document; the writer may still be mid-rename.
		return
	}
	select {
	case w.sub <- intent:
	default:
		// Drop when the reconciler is behind; it always reloads the latest
		// intent from the store before applying.
	}
}
