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

package wal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/crdt"
)

func testDelta(key string, ts uint64) crdt.ReplicationDelta {
	lc := crdt.LamportClock{Time: ts, ReplicaID: 1}
	return crdt.ReplicationDelta{
		Key:           key,
		SourceReplica: 1,
		Value: crdt.ReplicatedValue{
			Crdt:      crdt.NewGCounter(),
			Timestamp: lc,
		},
	}
}

func TestAppendAndRecoverAllEntriesAlwaysMode(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncAlways})
	require.NoError(t, err)

	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, w.Append(ctx, testDelta("k", i), i))
	}
	require.NoError(t, w.Close())

	entries, err := RecoverAllEntries(dir)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Timestamp)
		assert.True(t, e.Valid())
	}
}

func TestRecoverEntriesAfterExcludesOlderEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncNone})
	require.NoError(t, err)

	ctx := context.Background()
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, w.Append(ctx, testDelta("k", i), i))
	}
	require.NoError(t, w.Close())

	entries, err := RecoverEntriesAfter(dir, 7)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(8), entries[0].Timestamp)
}

func TestRecoverDeltasDecodesPayloads(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncAlways})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Append(ctx, testDelta("mykey", 1), 1))
	require.NoError(t, w.Close())

	deltas, err := RecoverDeltas(dir, 0)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, "mykey", deltas[0].Key)
}

func TestSegmentRotationSplitsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncNone, MaxSegmentBytes: minSegmentBytes})
	require.NoError(t, err)

	ctx := context.Background()
	for i := uint64(1); i <= 200; i++ {
		require.NoError(t, w.Append(ctx, testDelta("k", i), i))
	}
	require.NoError(t, w.Close())

	paths, err := listSegmentFiles(dir)
	require.NoError(t, err)
	assert.Greater(t, len(paths), 1, "expected rotation to produce multiple segment files")

	entries, err := RecoverAllEntries(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 200)
}

func TestTruncateUpToRemovesFullyCoveredSegments(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncNone, MaxSegmentBytes: minSegmentBytes})
	require.NoError(t, err)

	ctx := context.Background()
	for i := uint64(1); i <= 200; i++ {
		require.NoError(t, w.Append(ctx, testDelta("k", i), i))
	}

	before, err := listSegmentFiles(dir)
	require.NoError(t, err)
	require.Greater(t, len(before), 1)

	deleted, err := w.TruncateUpTo(ctx, 100)
	require.NoError(t, err)
	assert.Greater(t, deleted, 0)

	require.NoError(t, w.Close())

	after, err := listSegmentFiles(dir)
	require.NoError(t, err)
	assert.Less(t, len(after), len(before))
}

func TestRecoveryStopsAtCorruptedEntry(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncAlways})
	require.NoError(t, err)

	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, w.Append(ctx, testDelta("k", i), i))
	}
	require.NoError(t, w.Close())

	paths, err := listSegmentFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	// Corrupt the last byte, inside the third entry's payload, without
	// truncating the file — a flipped bit, not a missing tail.
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(paths[0], data, 0o600))

	entries, err := RecoverAllEntries(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "corrupted third entry should be dropped, first two kept")
}

func TestEverySecondModeAppendIsRecoveredAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncEverySecond})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Append(ctx, testDelta("k", 1), 1))
	require.NoError(t, w.Close())

	entries, err := RecoverAllEntries(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReopenContinuesSequenceAfterRestart(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, FsyncPolicy: FsyncAlways})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Append(ctx, testDelta("k", 1), 1))
	require.NoError(t, w.Close())

	w2, err := Open(Config{Dir: dir, FsyncPolicy: FsyncAlways})
	require.NoError(t, err)
	require.NoError(t, w2.Append(ctx, testDelta("k", 2), 2))
	require.NoError(t, w2.Close())

	entries, err := RecoverAllEntries(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Timestamp)
	assert.Equal(t, uint64(2), entries[1].Timestamp)
}
