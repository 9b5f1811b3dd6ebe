// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging is the engine's plain-console logger: timestamped
// Printf-style lines to stdout/stderr, no structured fields, no external
// logging library. Every line carries an RFC3339 timestamp and a level
// word, the same shape core/worker.go and core/persistence.go already
// print by hand.
package logging

import (
	"fmt"
	"os"
	"time"
)

// Level is a log line's severity word, printed verbatim.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// Logger prints timestamped lines tagged with a component name, mirroring
// the teacher's "[%s] message" convention but adding the component and
// level words the teacher's ad hoc Printf calls left implicit.
type Logger struct {
	component string
}

// New returns a Logger that prefixes every line with component, e.g.
// "wal", "persist", "recovery".
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) line(level Level, format string, args ...interface{}) string {
	ts := time.Now().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	if l.component == "" {
		return fmt.Sprintf("[%s] %s: %s\n", ts, level, msg)
	}
	return fmt.Sprintf("[%s] %s %s: %s\n", ts, level, l.component, msg)
}

// Info prints an informational line to stdout.
func (l *Logger) Info(format string, args ...interface{}) {
	fmt.Print(l.line(LevelInfo, format, args...))
}

// Warn prints a warning line to stdout, matching the teacher's habit of
// keeping all non-fatal output on stdout rather than splitting by level.
func (l *Logger) Warn(format string, args ...interface{}) {
	fmt.Print(l.line(LevelWarn, format, args...))
}

// Error prints an error line to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	fmt.Fprint(os.Stderr, l.line(LevelError, format, args...))
}

// Fatal prints an error line to stderr and exits the process with status
// 1, the same shape as the teacher's log.Fatalf call sites in
// cmd/ratelimiter-api/main.go.
func (l *Logger) Fatal(format string, args ...interface{}) {
	fmt.Fprint(os.Stderr, l.line(LevelFatal, format, args...))
	os.Exit(1)
}
