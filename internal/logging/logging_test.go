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

package logging

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	fn()

	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestInfoWritesTimestampedLineToStdout(t *testing.T) {
	logger := New("wal")
	out := captureStdout(t, func() {
		logger.Info("flushed %d records", 3)
	})
	assert.Contains(t, out, "INFO wal: flushed 3 records")
}

func TestWarnWritesToStdout(t *testing.T) {
	logger := New("compact")
	out := captureStdout(t, func() {
		logger.Warn("skipping segment %d", 7)
	})
	assert.Contains(t, out, "WARN compact: skipping segment 7")
}

func TestErrorWritesToStderr(t *testing.T) {
	logger := New("recovery")
	out := captureStderr(t, func() {
		logger.Error("segment load failed: %v", assertErr("boom"))
	})
	assert.Contains(t, out, "ERROR recovery: segment load failed: boom")
}

func TestLoggerWithNoComponentOmitsComponentSegment(t *testing.T) {
	logger := New("")
	out := captureStdout(t, func() {
		logger.Info("starting up")
	})
	assert.Contains(t, out, "INFO: starting up")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
