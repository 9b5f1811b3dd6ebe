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

package persist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

func testDelta(key string, ts uint64) crdt.ReplicationDelta {
	return crdt.ReplicationDelta{
		Key: key,
		Value: crdt.ReplicatedValue{
			Crdt:      crdt.CrdtValue{Kind: crdt.KindGCounter, GCounterInc: map[uint64]uint64{1: 1}},
			Timestamp: crdt.LamportClock{Time: ts, ReplicaID: 1},
		},
		SourceReplica: 1,
	}
}

func newTestPersistence(store objectstore.Store, snapshot Snapshotter) *Persistence {
	mgr := manifest.NewManager(store, "replica-1")
	config := Config{
		FlushInterval:         time.Hour,
		FlushThreshold:        0,
		CheckpointInterval:    0,
		SegmentCompression:    segment.CompressionNone,
		CheckpointCompression: checkpoint.CompressionNone,
	}
	return New(store, "replica-1", 1, mgr, config, snapshot)
}

func TestFlushWithEmptyBufferIsANoOp(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := newTestPersistence(store, nil)

	result, err := p.Flush(ctx)
	require.NoError(t, err)
	assert.Nil(t, result.Segment)
}

func TestPushThenFlushWritesSegmentAndManifestEntry(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := newTestPersistence(store, nil)

	require.NoError(t, p.Push(testDelta("a", 10)))
	require.NoError(t, p.Push(testDelta("b", 20)))
	assert.Equal(t, 2, p.BufferedCount())

	result, err := p.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Segment)
	assert.Equal(t, uint32(2), result.Segment.RecordCount)
	assert.Equal(t, 0, p.BufferedCount())

	mgr := manifest.NewManager(store, "replica-1")
	man, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, man.Segments, 1)
	assert.Equal(t, result.Segment.Key, man.Segments[0].Key)

	data, err := store.Get(ctx, result.Segment.Key)
	require.NoError(t, err)
	reader, err := segment.Open(data)
	require.NoError(t, err)
	require.NoError(t, reader.Validate())
}

func TestPushTriggersImmediateFlushAtThreshold(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")
	config := Config{
		FlushInterval:  time.Hour,
		FlushThreshold: 2,
	}
	p := New(store, "replica-1", 1, mgr, config, nil)

	require.NoError(t, p.Push(testDelta("a", 1)))
	assert.Equal(t, 1, p.BufferedCount())
	require.NoError(t, p.Push(testDelta("b", 2)))

	// The second push should have crossed the threshold and flushed
	// synchronously, leaving the buffer empty again.
	assert.Equal(t, 0, p.BufferedCount())

	man, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, man.Segments, 1)
	assert.Equal(t, uint32(2), man.Segments[0].RecordCount)
}

func TestCheckpointWithoutSnapshotterErrors(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := newTestPersistence(store, nil)

	_, err := p.Checkpoint(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshotSource)
}

func TestCheckpointWritesSnapshotAndInstallsManifestEntry(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()

	snapshot := func() checkpoint.State {
		return checkpoint.State{
			"k1": {Crdt: crdt.CrdtValue{Kind: crdt.KindGCounter, GCounterInc: map[uint64]uint64{1: 9}}},
		}
	}
	p := newTestPersistence(store, snapshot)

	require.NoError(t, p.Push(testDelta("a", 5)))
	flushResult, err := p.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, flushResult.Segment)

	result, err := p.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Checkpoint.KeyCount)
	assert.Equal(t, flushResult.Segment.ID, result.Checkpoint.LastSegmentID)

	mgr := manifest.NewManager(store, "replica-1")
	man, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, man.Checkpoint)
	assert.Equal(t, result.Checkpoint.Key, man.Checkpoint.Key)

	data, err := store.Get(ctx, result.Checkpoint.Key)
	require.NoError(t, err)
	reader, err := checkpoint.Open(data)
	require.NoError(t, err)
	require.NoError(t, reader.Validate())
	state, err := reader.Load()
	require.NoError(t, err)
	assert.Contains(t, state, "k1")
}

func TestStopFlushesRemainingBufferAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := newTestPersistence(store, nil)
	p.Start()

	require.NoError(t, p.Push(testDelta("a", 1)))

	require.NoError(t, p.Stop(ctx))
	// A second Stop must not panic on an already-closed channel.
	require.NoError(t, p.Stop(ctx))

	mgr := manifest.NewManager(store, "replica-1")
	man, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, man.Segments, 1)
}

// TestConcurrentThresholdFlushesNeverLoseOrCollideSegments drives
// flushLoop's ticker (via a short FlushInterval) concurrently with many
// goroutines each crossing FlushThreshold in Push, the exact pairing that
// can otherwise let two Flush calls load the same manifest, compute the
// same segment ID/key, and have one Put silently overwrite the other's
// segment bytes. Every delta pushed must end up in exactly one segment,
// with no two segments sharing an ID.
func TestConcurrentThresholdFlushesNeverLoseOrCollideSegments(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	mgr := manifest.NewManager(store, "replica-1")
	config := Config{
		FlushInterval:  time.Millisecond,
		FlushThreshold: 3,
	}
	p := New(store, "replica-1", 1, mgr, config, nil)
	p.Start()

	const pushers = 20
	const perPusher = 25
	var wg sync.WaitGroup
	for i := 0; i < pushers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < perPusher; j++ {
				key := fmt.Sprintf("k-%d-%d", worker, j)
				ts := uint64(worker*perPusher + j + 1)
				require.NoError(t, p.Push(testDelta(key, ts)))
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, p.Stop(ctx))

	man, err := mgr.Load(ctx)
	require.NoError(t, err)

	seenIDs := make(map[uint64]bool)
	totalRecords := uint32(0)
	for _, seg := range man.Segments {
		assert.False(t, seenIDs[seg.ID], "duplicate segment ID %d in manifest", seg.ID)
		seenIDs[seg.ID] = true

		data, err := store.Get(ctx, seg.Key)
		require.NoError(t, err)
		reader, err := segment.Open(data)
		require.NoError(t, err)
		require.NoError(t, reader.Validate())
		deltas, err := reader.ReadAll()
		require.NoError(t, err)
		assert.Len(t, deltas, int(seg.RecordCount))

		totalRecords += seg.RecordCount
	}
	assert.Equal(t, uint32(pushers*perPusher), totalRecords, "no delta should be dropped by a colliding flush")
}

func TestPushAfterStopErrors(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := newTestPersistence(store, nil)
	require.NoError(t, p.Stop(ctx))

	err := p.Push(testDelta("a", 1))
	assert.Error(t, err)
}
