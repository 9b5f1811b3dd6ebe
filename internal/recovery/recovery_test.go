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

package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

func testDelta(key string, n uint64, ts uint64) crdt.ReplicationDelta {
	return crdt.ReplicationDelta{
		Key: key,
		Value: crdt.ReplicatedValue{
			Crdt:      crdt.CrdtValue{Kind: crdt.KindGCounter, GCounterInc: map[uint64]uint64{1: n}},
			Timestamp: crdt.LamportClock{Time: ts, ReplicaID: 1},
		},
		SourceReplica: 1,
	}
}

func testValue(n uint64) crdt.ReplicatedValue {
	return crdt.ReplicatedValue{
		Crdt:      crdt.CrdtValue{Kind: crdt.KindGCounter, GCounterInc: map[uint64]uint64{1: n}},
		Timestamp: crdt.LamportClock{Time: n, ReplicaID: 1},
	}
}

func writeSegment(t *testing.T, deltas ...crdt.ReplicationDelta) []byte {
	t.Helper()
	w := segment.NewWriter(segment.CompressionNone)
	for _, d := range deltas {
		w.WriteDelta(d)
	}
	data, err := w.Finish()
	require.NoError(t, err)
	return data
}

func TestNeedsRecoveryFalseForFreshReplica(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	needs, err := mgr.NeedsRecovery(ctx)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestRecoverWithNoManifestReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	result, err := mgr.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Manifest.ReplicaID)
	assert.Empty(t, result.Deltas)
	assert.False(t, result.Stats.UsedCheckpoint)
}

func TestRecoverReplaysAllSegmentsWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	seg0 := writeSegment(t, testDelta("a", 1, 10), testDelta("b", 2, 20))
	seg1 := writeSegment(t, testDelta("c", 3, 30))

	require.NoError(t, store.Put(ctx, "replica-1/segments/0.seg", seg0))
	require.NoError(t, store.Put(ctx, "replica-1/segments/1.seg", seg1))

	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg", MinTimestamp: 10, MaxTimestamp: 20})
	man.AddSegment(manifest.SegmentInfo{ID: 1, Key: "replica-1/segments/1.seg", MinTimestamp: 30, MaxTimestamp: 30})
	require.NoError(t, mgr.ManifestManager().Save(ctx, man))

	result, err := mgr.Recover(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Deltas, 3)
	assert.Equal(t, 2, result.Stats.SegmentsLoaded)
	assert.False(t, result.Stats.UsedCheckpoint)
	assert.Nil(t, result.CheckpointState)
}

func TestRecoverSkipsSegmentsCoveredByCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	seg0 := writeSegment(t, testDelta("a", 1, 10))
	seg1 := writeSegment(t, testDelta("b", 2, 20))
	require.NoError(t, store.Put(ctx, "replica-1/segments/0.seg", seg0))
	require.NoError(t, store.Put(ctx, "replica-1/segments/1.seg", seg1))

	chkWriter := checkpoint.NewWriter(checkpoint.CompressionNone)
	chkData, err := chkWriter.Write(checkpoint.State{"z": testValue(99)}, 1000, 0)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "replica-1/checkpoints/0.chk", chkData))

	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg", MinTimestamp: 10, MaxTimestamp: 10})
	man.AddSegment(manifest.SegmentInfo{ID: 1, Key: "replica-1/segments/1.seg", MinTimestamp: 20, MaxTimestamp: 20})
	man.Checkpoint = &manifest.CheckpointInfo{Key: "replica-1/checkpoints/0.chk", TimestampMs: 1000, KeyCount: 1, LastSegmentID: 0}
	require.NoError(t, mgr.ManifestManager().Save(ctx, man))

	result, err := mgr.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, result.Stats.UsedCheckpoint)
	require.NotNil(t, result.CheckpointState)
	assert.Contains(t, result.CheckpointState, "z")

	// Only segment 1 (ID > LastSegmentID of 0) should have been replayed.
	require.Len(t, result.Deltas, 1)
	assert.Equal(t, "b", result.Deltas[0].Key)
	assert.Equal(t, 1, result.Stats.SegmentsSkipped)
}

func TestRecoverWithProgressReportsPhases(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	seg0 := writeSegment(t, testDelta("a", 1, 10))
	require.NoError(t, store.Put(ctx, "replica-1/segments/0.seg", seg0))
	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg", MinTimestamp: 10, MaxTimestamp: 10})
	require.NoError(t, mgr.ManifestManager().Save(ctx, man))

	var phases []Phase
	_, err := mgr.RecoverWithProgress(ctx, func(p Progress) {
		phases = append(phases, p.Phase)
	})
	require.NoError(t, err)
	assert.Contains(t, phases, PhaseLoadingManifest)
	assert.Contains(t, phases, PhaseLoadingSegments)
	assert.Contains(t, phases, PhaseComplete)
}

func TestRecoverFailsOnCorruptSegment(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := NewManager(store, "replica-1", 1)

	require.NoError(t, store.Put(ctx, "replica-1/segments/0.seg", []byte("not a segment")))
	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg"})
	require.NoError(t, mgr.ManifestManager().Save(ctx, man))

	_, err := mgr.Recover(ctx)
	assert.Error(t, err)
}
