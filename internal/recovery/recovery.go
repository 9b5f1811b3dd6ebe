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

// Package recovery restores a replica's state from an objectstore.Store on
// startup. Recovery is idempotent: CRDT merge semantics mean replaying the
// same delta any number of times, in any order relative to other deltas
// for the same key, converges to the same state, so a crash mid-recovery
// is never unsafe to retry from scratch.
//
// Recovery flow:
//  1. Load the manifest (or start empty if none exists).
//  2. If the manifest names a checkpoint, load and validate it.
//  3. Filter to segments after the checkpoint's last covered segment.
//  4. Sort those segments by MinTimestamp for deterministic replay order.
//  5. Fetch and decode segments (concurrently), then return their deltas
//     segment by segment in that order, each segment's deltas in the
//     order they were written.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

// Phase identifies which step of recovery is currently running.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseLoadingManifest
	PhaseLoadingCheckpoint
	PhaseLoadingSegments
	PhaseReplayingDeltas
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseLoadingManifest:
		return "loading_manifest"
	case PhaseLoadingCheckpoint:
		return "loading_checkpoint"
	case PhaseLoadingSegments:
		return "loading_segments"
	case PhaseReplayingDeltas:
		return "replaying_deltas"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Progress reports recovery's state to an optional caller-supplied
// callback, so a server can surface recovery status (e.g. over its own
// status endpoint) instead of recovery being an opaque blocking call.
type Progress struct {
	Phase          Phase
	SegmentsTotal  int
	SegmentsLoaded int
	DeltasReplayed uint64
	BytesRead      uint64
}

// Stats summarizes what a completed recovery did.
type Stats struct {
	SegmentsLoaded  int
	DeltasReplayed  uint64
	BytesRead       uint64
	UsedCheckpoint  bool
	SegmentsSkipped int
}

// Result is everything Recover produces: the manifest it loaded, the
// checkpoint's key-space snapshot (if one was used), and every delta that
// must be replayed on top of that snapshot, grouped by segment with the
// segments ordered by MinTimestamp; deltas are not re-sorted across
// segments.
type Result struct {
	Manifest        manifest.Manifest
	CheckpointState checkpoint.State
	Deltas          []crdt.ReplicationDelta
	Stats           Stats
}

// Manager drives recovery for one replica against one object store.
type Manager struct {
	store           objectstore.Store
	manifestManager *manifest.Manager
	replicaID       uint64
}

// NewManager returns a recovery Manager for replicaID, reading manifest,
// checkpoint, and segment objects under prefix.
func NewManager(store objectstore.Store, prefix string, replicaID uint64) *Manager {
	return &Manager{
		store:           store,
		manifestManager: manifest.NewManager(store, prefix),
		replicaID:       replicaID,
	}
}

// ManifestManager exposes the underlying manifest.Manager, e.g. for a
// compactor that must share the same manifest key as recovery.
func (m *Manager) ManifestManager() *manifest.Manager {
	return m.manifestManager
}

// NeedsRecovery reports whether a manifest has ever been saved for this
// replica; a brand-new replica with no manifest has nothing to recover.
func (m *Manager) NeedsRecovery(ctx context.Context) (bool, error) {
	return m.manifestManager.Exists(ctx)
}

// Recover performs full recovery with no progress reporting.
func (m *Manager) Recover(ctx context.Context) (Result, error) {
	return m.recover(ctx, func(Progress) {})
}

// RecoverWithProgress performs full recovery, invoking onProgress after
// each phase transition and after each segment loads.
func (m *Manager) RecoverWithProgress(ctx context.Context, onProgress func(Progress)) (Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	return m.recover(ctx, onProgress)
}

func (m *Manager) recover(ctx context.Context, onProgress func(Progress)) (Result, error) {
	start := time.Now()
	var progress Progress
	var stats Stats

	progress.Phase = PhaseLoadingManifest
	onProgress(progress)

	man, err := m.manifestManager.LoadOrCreate(ctx, m.replicaID)
	if err != nil {
		return Result{}, fmt.Errorf("recovery: load manifest: %w", err)
	}

	var checkpointState checkpoint.State
	var lastCheckpointSegment uint64
	if man.Checkpoint != nil {
		progress.Phase = PhaseLoadingCheckpoint
		onProgress(progress)
		stats.UsedCheckpoint = true

		data, err := m.store.Get(ctx, man.Checkpoint.Key)
		if err != nil {
			return Result{}, fmt.Errorf("recovery: fetch checkpoint %s: %w", man.Checkpoint.Key, err)
		}
		stats.BytesRead += uint64(len(data))

		reader, err := checkpoint.Open(data)
		if err != nil {
			return Result{}, fmt.Errorf("recovery: open checkpoint %s: %w", man.Checkpoint.Key, err)
		}
		if err := reader.Validate(); err != nil {
			return Result{}, fmt.Errorf("recovery: validate checkpoint %s: %w", man.Checkpoint.Key, err)
		}
		state, err := reader.Load()
		if err != nil {
			return Result{}, fmt.Errorf("recovery: decode checkpoint %s: %w", man.Checkpoint.Key, err)
		}
		checkpointState = state
		lastCheckpointSegment = man.Checkpoint.LastSegmentID
	}

	var toLoad []manifest.SegmentInfo
	if checkpointState != nil {
		for _, s := range man.Segments {
			if s.ID > lastCheckpointSegment {
				toLoad = append(toLoad, s)
			}
		}
	} else {
		toLoad = append(toLoad, man.Segments...)
	}
	sort.Slice(toLoad, func(i, j int) bool { return toLoad[i].MinTimestamp < toLoad[j].MinTimestamp })
	stats.SegmentsSkipped = len(man.Segments) - len(toLoad)

	progress.Phase = PhaseLoadingSegments
	progress.SegmentsTotal = len(toLoad)
	onProgress(progress)

	deltasPerSegment := make([][]crdt.ReplicationDelta, len(toLoad))
	bytesPerSegment := make([]uint64, len(toLoad))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, info := range toLoad {
		i, info := i, info
		group.Go(func() error {
			deltas, n, err := m.loadSegment(gctx, info)
			if err != nil {
				return err
			}
			deltasPerSegment[i] = deltas
			bytesPerSegment[i] = n
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	var allDeltas []crdt.ReplicationDelta
	for i := range toLoad {
		stats.BytesRead += bytesPerSegment[i]
		stats.SegmentsLoaded++
		stats.DeltasReplayed += uint64(len(deltasPerSegment[i]))
		allDeltas = append(allDeltas, deltasPerSegment[i]...)

		progress.SegmentsLoaded = stats.SegmentsLoaded
		progress.BytesRead = stats.BytesRead
		progress.DeltasReplayed = stats.DeltasReplayed
		onProgress(progress)
	}

	progress.Phase = PhaseComplete
	onProgress(progress)

	metrics.ObserveRecovery(int(stats.DeltasReplayed), time.Since(start))

	return Result{
		Manifest:        man,
		CheckpointState: checkpointState,
		Deltas:          allDeltas,
		Stats:           stats,
	}, nil
}

func (m *Manager) loadSegment(ctx context.Context, info manifest.SegmentInfo) ([]crdt.ReplicationDelta, uint64, error) {
	data, err := m.store.Get(ctx, info.Key)
	if err != nil {
		return nil, 0, fmt.Errorf("recovery: fetch segment %s: %w", info.Key, err)
	}
	reader, err := segment.Open(data)
	if err != nil {
		return nil, 0, fmt.Errorf("recovery: open segment %s: %w", info.Key, err)
	}
	if err := reader.Validate(); err != nil {
		return nil, 0, fmt.Errorf("recovery: validate segment %s: %w", info.Key, err)
	}
	deltas, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("recovery: read segment %s: %w", info.Key, err)
	}
	return deltas, uint64(len(data)), nil
}
