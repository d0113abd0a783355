// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package xlog is a thin, typed wrapper around logrus used by every
// component of the engine. It mirrors the call shape of EVE's
// base.LogObject: leveled, printf-style methods plus a fluent
// WithField builder, so that every constructor can be handed a ready
// logger instead of reaching for package-level globals.
package xlog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used throughout the engine.
type Logger struct {
	entry *logrus.Entry
}

// New wraps an existing logrus.FieldLogger, tagging every line with
// the given source (e.g. the package or subsystem name).
func New(base logrus.FieldLogger, source string) *Logger {
	var entry *logrus.Entry
	switch l := base.(type) {
	case *logrus.Logger:
		entry = logrus.NewEntry(l)
	case *logrus.Entry:
		entry = l
	default:
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	if source != "" {
		entry = entry.WithField("source", source)
	}
	return &Logger{entry: entry}
}

// Default returns a Logger built on logrus' standard logger, used when
// a caller does not supply one of their own.
func Default(source string) *Logger {
	return New(logrus.StandardLogger(), source)
}

// WithField returns a derived Logger carrying an additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Tracef logs fine-grained diagnostic detail (edge creation, flush bookkeeping).
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Functionf logs entry/exit of significant internal functions; kept at Debug
// level so it is silent by default.
func (l *Logger) Functionf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Noticef logs routine, user-relevant events (instance created/destroyed).
func (l *Logger) Noticef(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warnf logs a recoverable problem (a swallowed listener panic, a
// destructor error) that does not fail the triggering operation.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Errorf logs a synchronous failure about to be returned to the caller.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
