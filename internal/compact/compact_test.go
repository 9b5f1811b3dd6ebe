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

package compact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

func gcounterDelta(key string, replica, n, ts uint64) crdt.ReplicationDelta {
	return crdt.ReplicationDelta{
		Key: key,
		Value: crdt.ReplicatedValue{
			Crdt:      crdt.CrdtValue{Kind: crdt.KindGCounter, GCounterInc: map[uint64]uint64{replica: n}},
			Timestamp: crdt.LamportClock{Time: ts, ReplicaID: replica},
		},
		SourceReplica: replica,
	}
}

func putSegment(t *testing.T, ctx context.Context, store objectstore.Store, key string, deltas ...crdt.ReplicationDelta) {
	t.Helper()
	w := segment.NewWriter(segment.CompressionNone)
	for _, d := range deltas {
		w.WriteDelta(d)
	}
	data, err := w.Finish()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, data))
}

func TestCompactReturnsNothingToCompactBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")

	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "seg-0"})
	require.NoError(t, mgr.Save(ctx, man))

	c := NewCompactor(store, "replica-1", mgr, Config{MinSegmentsToCompact: 4, MaxSegments: 32})
	_, err := c.Compact(ctx)
	assert.ErrorIs(t, err, ErrNothingToCompact)
}

func TestCompactReturnsNothingToCompactWithoutManifest(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")

	c := NewCompactor(store, "replica-1", mgr, DefaultConfig())
	_, err := c.Compact(ctx)
	assert.ErrorIs(t, err, ErrNothingToCompact)
}

func TestCompactMergesSegmentsAndUpdatesManifest(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")

	putSegment(t, ctx, store, "replica-1/segments/0.seg", gcounterDelta("a", 1, 5, 10))
	putSegment(t, ctx, store, "replica-1/segments/1.seg", gcounterDelta("a", 1, 3, 20), gcounterDelta("b", 1, 1, 15))

	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg", MinTimestamp: 10, MaxTimestamp: 10})
	man.AddSegment(manifest.SegmentInfo{ID: 1, Key: "replica-1/segments/1.seg", MinTimestamp: 15, MaxTimestamp: 20})
	require.NoError(t, mgr.Save(ctx, man))

	c := NewCompactor(store, "replica-1", mgr, Config{MinSegmentsToCompact: 2, MaxSegments: 32, Compression: segment.CompressionNone})
	result, err := c.Compact(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint64{0, 1}, result.SegmentsRemoved)
	assert.Equal(t, 3, result.DeltasBefore)
	assert.Equal(t, 2, result.DeltasAfter)

	reloaded, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, reloaded.Segments, 1)
	assert.Equal(t, result.NewSegment.Key, reloaded.Segments[0].Key)

	// The merged segment's "a" counter holds replica 1's highest observed
	// count: G-Counter entries merge by per-replica max, so max(5, 3).
	reader, err := segment.Open(mustGet(t, ctx, store, result.NewSegment.Key))
	require.NoError(t, err)
	deltas, err := reader.ReadAll()
	require.NoError(t, err)

	var foundA bool
	for _, d := range deltas {
		if d.Key == "a" {
			foundA = true
			assert.Equal(t, uint64(5), d.Value.Crdt.GCounterInc[1])
		}
	}
	assert.True(t, foundA)

	// Old segment objects should no longer be present in the store.
	_, err = store.Get(ctx, "replica-1/segments/0.seg")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
	_, err = store.Get(ctx, "replica-1/segments/1.seg")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestCompactLeavesSegmentsOutsideMaxSegmentsBatchUntouched(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")

	putSegment(t, ctx, store, "replica-1/segments/0.seg", gcounterDelta("a", 1, 1, 10))
	putSegment(t, ctx, store, "replica-1/segments/1.seg", gcounterDelta("b", 1, 1, 12))
	putSegment(t, ctx, store, "replica-1/segments/2.seg", gcounterDelta("c", 1, 1, 30))

	man := manifest.New(1)
	man.AddSegment(manifest.SegmentInfo{ID: 0, Key: "replica-1/segments/0.seg", MinTimestamp: 10, MaxTimestamp: 10})
	man.AddSegment(manifest.SegmentInfo{ID: 1, Key: "replica-1/segments/1.seg", MinTimestamp: 12, MaxTimestamp: 12})
	man.AddSegment(manifest.SegmentInfo{ID: 2, Key: "replica-1/segments/2.seg", MinTimestamp: 30, MaxTimestamp: 30})
	require.NoError(t, mgr.Save(ctx, man))

	// MaxSegments bounds this run to the two oldest segments; segment 2
	// (the newest, e.g. just flushed) must survive exactly as it was,
	// which is the invariant compaction must never violate: every segment
	// the manifest still references after a compaction run must still
	// exist in the store, whether or not that run touched it.
	c := NewCompactor(store, "replica-1", mgr, Config{MinSegmentsToCompact: 2, MaxSegments: 2, Compression: segment.CompressionNone})
	result, err := c.Compact(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 1}, result.SegmentsRemoved)

	reloaded, err := mgr.Load(ctx)
	require.NoError(t, err)
	var ids []uint64
	for _, s := range reloaded.Segments {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, uint64(2), "segment outside the compaction batch must survive")

	exists, err := store.Exists(ctx, "replica-1/segments/2.seg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func mustGet(t *testing.T, ctx context.Context, store objectstore.Store, key string) []byte {
	t.Helper()
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	return data
}
