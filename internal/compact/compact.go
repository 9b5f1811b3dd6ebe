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

// Package compact merges a replica's oldest segments into one, replacing
// many small segment reads on the recovery path with one larger one and
// collapsing every key's delta history down to its single merged value.
//
// Compaction must coordinate with concurrent persistence flushes without
// losing either side's work: a flush appending segment N must never be
// silently dropped from the manifest by a compaction that started before
// segment N existed. internal/manifest's Manager.ReplaceSegments is the
// mechanism that closes that race by reloading the manifest immediately
// before mutating and saving it; this package relies on that guarantee
// rather than re-implementing it.
package compact

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

// ErrNothingToCompact is returned when fewer than Config.MinSegmentsToCompact
// segments are recorded in the manifest.
var ErrNothingToCompact = errors.New("compact: nothing to compact")

// Config tunes when and how much a single Compact call merges.
type Config struct {
	// MinSegmentsToCompact is the smallest segment count that triggers a
	// compaction; below this, Compact returns ErrNothingToCompact. Values
	// below 2 are treated as 2.
	MinSegmentsToCompact int
	// MaxSegments bounds how many of the oldest segments one Compact call
	// merges, so a single run never has to hold an unbounded amount of
	// decoded delta data in memory.
	MaxSegments int
	Compression segment.Compression
}

// DefaultConfig returns conservative compaction thresholds suitable for
// production use; tests typically lower MinSegmentsToCompact to exercise
// compaction without writing hundreds of segments first.
func DefaultConfig() Config {
	return Config{
		MinSegmentsToCompact: 8,
		MaxSegments:          32,
		Compression:          segment.CompressionZstd,
	}
}

// Result summarizes what one Compact call did.
type Result struct {
	SegmentsRemoved []uint64
	NewSegment      manifest.SegmentInfo
	DeltasBefore    int
	DeltasAfter     int
}

// Compactor merges the oldest segments recorded in a manifest into one.
type Compactor struct {
	store           objectstore.Store
	prefix          string
	manifestManager *manifest.Manager
	config          Config
}

// NewCompactor returns a Compactor writing merged segments under prefix
// and recording them through manifestManager.
func NewCompactor(store objectstore.Store, prefix string, manifestManager *manifest.Manager, config Config) *Compactor {
	return &Compactor{store: store, prefix: prefix, manifestManager: manifestManager, config: config}
}

// Compact selects the oldest eligible segments, merges every key's deltas
// across them via CRDT Merge, writes the result as one new segment, and
// atomically replaces the old segments with it in the manifest.
func (c *Compactor) Compact(ctx context.Context) (Result, error) {
	man, err := c.manifestManager.Load(ctx)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return Result{}, ErrNothingToCompact
		}
		return Result{}, fmt.Errorf("compact: load manifest: %w", err)
	}

	minSegments := c.config.MinSegmentsToCompact
	if minSegments < 2 {
		minSegments = 2
	}
	if len(man.Segments) < minSegments {
		return Result{}, ErrNothingToCompact
	}

	candidates := make([]manifest.SegmentInfo, len(man.Segments))
	copy(candidates, man.Segments)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].MinTimestamp < candidates[j].MinTimestamp })

	maxSegments := c.config.MaxSegments
	if maxSegments <= 0 || maxSegments > len(candidates) {
		maxSegments = len(candidates)
	}
	toCompact := candidates[:maxSegments]

	var allDeltas []crdt.ReplicationDelta
	for _, info := range toCompact {
		deltas, err := c.loadSegment(ctx, info)
		if err != nil {
			return Result{}, err
		}
		allDeltas = append(allDeltas, deltas...)
	}

	merged := make(map[string]crdt.ReplicatedValue, len(allDeltas))
	sourceReplica := make(map[string]uint64, len(allDeltas))
	for _, d := range allDeltas {
		if existing, ok := merged[d.Key]; ok {
			merged[d.Key] = existing.Merge(d.Value)
		} else {
			merged[d.Key] = d.Value
		}
		sourceReplica[d.Key] = d.SourceReplica
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writer := segment.NewWriter(c.config.Compression)
	for _, k := range keys {
		writer.WriteDelta(crdt.ReplicationDelta{Key: k, Value: merged[k], SourceReplica: sourceReplica[k]})
	}

	var minTS, maxTS uint64
	for i, info := range toCompact {
		if i == 0 || info.MinTimestamp < minTS {
			minTS = info.MinTimestamp
		}
		if info.MaxTimestamp > maxTS {
			maxTS = info.MaxTimestamp
		}
	}

	removedIDs := make(map[uint64]struct{}, len(toCompact))
	var removedList []uint64
	for _, info := range toCompact {
		removedIDs[info.ID] = struct{}{}
		removedList = append(removedList, info.ID)
	}

	// The merged segment's ID is assigned speculatively from the manifest
	// view used to select candidates; ReplaceSegments still reloads before
	// saving so a concurrently-flushed segment is never dropped, but an ID
	// collision with that concurrent flush is not itself ruled out here.
	newID := man.NextSegmentID
	key := fmt.Sprintf("%s/segments/%d-%s.seg", c.prefix, newID, uuid.NewString())

	var data []byte
	if len(keys) > 0 {
		var err error
		data, err = writer.Finish()
		if err != nil {
			return Result{}, fmt.Errorf("compact: write merged segment: %w", err)
		}
		if err := c.store.Put(ctx, key, data); err != nil {
			return Result{}, fmt.Errorf("compact: put merged segment: %w", err)
		}
	}

	info := manifest.SegmentInfo{
		ID:           newID,
		Key:          key,
		RecordCount:  uint32(len(keys)),
		SizeBytes:    uint64(len(data)),
		MinTimestamp: minTS,
		MaxTimestamp: maxTS,
	}

	var newSegments []manifest.SegmentInfo
	if len(keys) > 0 {
		newSegments = []manifest.SegmentInfo{info}
	}

	updatedManifest, err := c.manifestManager.ReplaceSegments(ctx, removedIDs, newSegments, man.Checkpoint)
	if err != nil {
		return Result{}, fmt.Errorf("compact: replace segments: %w", err)
	}

	metrics.ObserveCompaction(len(removedList))
	metrics.SetSegmentsTotal(len(updatedManifest.Segments))

	for _, old := range toCompact {
		// Best-effort: the manifest no longer references old.Key, so a
		// failed delete here leaves an orphan object, never a dangling
		// reference. The invariant compaction must preserve is "every
		// manifest-referenced segment exists," not "every deleted segment
		// is immediately reclaimed."
		_ = c.store.Delete(ctx, old.Key)
	}

	return Result{
		SegmentsRemoved: removedList,
		NewSegment:      info,
		DeltasBefore:    len(allDeltas),
		DeltasAfter:     len(keys),
	}, nil
}

func (c *Compactor) loadSegment(ctx context.Context, info manifest.SegmentInfo) ([]crdt.ReplicationDelta, error) {
	data, err := c.store.Get(ctx, info.Key)
	if err != nil {
		return nil, fmt.Errorf("compact: fetch segment %s: %w", info.Key, err)
	}
	reader, err := segment.Open(data)
	if err != nil {
		return nil, fmt.Errorf("compact: open segment %s: %w", info.Key, err)
	}
	if err := reader.Validate(); err != nil {
		return nil, fmt.Errorf("compact: validate segment %s: %w", info.Key, err)
	}
	return reader.ReadAll()
}
