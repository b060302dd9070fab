// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package base provides the logging object shared by all kbdlight agents.
// LogObject wraps a logrus logger with the agent name and pid attached so
// log lines from the daemon's workers can be attributed.
package base

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogObject is attached to every agent and worker.
type LogObject struct {
	logger *logrus.Logger
	entry  *logrus.Entry

	throttleMu   sync.Mutex
	throttleLast map[string]time.Time
}

// NewLogObject creates a LogObject for the given agent name.
func NewLogObject(logger *logrus.Logger, agentName string) *LogObject {
	entry := logger.WithFields(logrus.Fields{
		"agent": agentName,
		"pid":   os.Getpid(),
	})
	return &LogObject{
		logger:       logger,
		entry:        entry,
		throttleLast: make(map[string]time.Time),
	}
}

// Functionf logs at debug level; used for function entry/exit tracing.
func (l *LogObject) Functionf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Tracef logs at trace level.
func (l *LogObject) Tracef(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Noticef logs at info level.
func (l *LogObject) Noticef(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warnf logs at warning level.
func (l *LogObject) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Errorf logs at error level.
func (l *LogObject) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Error logs at error level.
func (l *LogObject) Error(args ...interface{}) {
	l.entry.Error(args...)
}

// Fatal logs and exits.
func (l *LogObject) Fatal(args ...interface{}) {
	l.entry.Fatal(args...)
}

// WarnThrottledf logs at most once per interval for the given key. Used by
// pollers whose failure mode repeats every tick.
func (l *LogObject) WarnThrottledf(key string, interval time.Duration,
	format string, args ...interface{}) {

	l.throttleMu.Lock()
	last, ok := l.throttleLast[key]
	now := time.Now()
	if ok && now.Sub(last) < interval {
		l.throttleMu.Unlock()
		return
	}
	l.throttleLast[key] = now
	l.throttleMu.Unlock()
	l.entry.Warnf(format, args...)
}
