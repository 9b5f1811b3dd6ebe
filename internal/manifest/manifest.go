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

// Package manifest tracks which segments and which checkpoint together
// make up a replica's durable state: the manifest is the one object every
// other durability component (persist, compact, recovery) consults first,
// since it is the only source of truth for "what segment/checkpoint keys
// actually exist and are safe to read."
package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/etalazz/rkv/internal/objectstore"
)

// SegmentInfo describes one segment file recorded in a Manifest.
type SegmentInfo struct {
	ID           uint64 `json:"id"`
	Key          string `json:"key"`
	RecordCount  uint32 `json:"record_count"`
	SizeBytes    uint64 `json:"size_bytes"`
	MinTimestamp uint64 `json:"min_timestamp"`
	MaxTimestamp uint64 `json:"max_timestamp"`
}

// CheckpointInfo describes the most recent checkpoint recorded in a
// Manifest, if any.
type CheckpointInfo struct {
	Key           string `json:"key"`
	TimestampMs   uint64 `json:"timestamp_ms"`
	KeyCount      uint64 `json:"key_count"`
	LastSegmentID uint64 `json:"last_segment_id"`
}

// Manifest is the authoritative record of a replica's durable state: every
// segment that has been flushed, and the most recent checkpoint (if any)
// that lets recovery skip segments it already covers.
type Manifest struct {
	ReplicaID     uint64          `json:"replica_id"`
	NextSegmentID uint64          `json:"next_segment_id"`
	Segments      []SegmentInfo   `json:"segments"`
	Checkpoint    *CheckpointInfo `json:"checkpoint,omitempty"`
}

// New returns an empty manifest for replicaID.
func New(replicaID uint64) Manifest {
	return Manifest{ReplicaID: replicaID}
}

// AddSegment appends info and advances NextSegmentID past it.
func (m *Manifest) AddSegment(info SegmentInfo) {
	m.Segments = append(m.Segments, info)
	if info.ID >= m.NextSegmentID {
		m.NextSegmentID = info.ID + 1
	}
}

// RemoveSegments drops every segment whose ID is in ids, returning the
// remaining segment count.
func (m *Manifest) RemoveSegments(ids map[uint64]struct{}) int {
	kept := m.Segments[:0]
	for _, s := range m.Segments {
		if _, drop := ids[s.ID]; !drop {
			kept = append(kept, s)
		}
	}
	m.Segments = kept
	return len(m.Segments)
}

func encode(m Manifest) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return m, nil
}

// Manager reads and writes a single replica's Manifest through an
// objectstore.Store, at a fixed key derived from prefix.
type Manager struct {
	store  objectstore.Store
	prefix string
}

// NewManager returns a Manager rooted at prefix (e.g. "replica-1").
func NewManager(store objectstore.Store, prefix string) *Manager {
	return &Manager{store: store, prefix: prefix}
}

// Key is the object store key the manifest is stored under.
func (m *Manager) Key() string {
	return m.prefix + "/manifest.json"
}

// Exists reports whether a manifest has ever been saved under this prefix.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	return m.store.Exists(ctx, m.Key())
}

// Load reads and decodes the manifest, returning objectstore.ErrNotFound
// if none has been saved yet.
func (m *Manager) Load(ctx context.Context) (Manifest, error) {
	data, err := m.store.Get(ctx, m.Key())
	if err != nil {
		return Manifest{}, err
	}
	return decode(data)
}

// LoadOrCreate loads the existing manifest, or returns a fresh empty one
// for replicaID if none exists yet. It does not save the fresh manifest;
// callers that want it persisted immediately should call Save themselves.
func (m *Manager) LoadOrCreate(ctx context.Context, replicaID uint64) (Manifest, error) {
	manifest, err := m.Load(ctx)
	if err == nil {
		return manifest, nil
	}
	if err != objectstore.ErrNotFound {
		return Manifest{}, err
	}
	return New(replicaID), nil
}

// Save overwrites the stored manifest with manifest.
func (m *Manager) Save(ctx context.Context, manifest Manifest) error {
	data, err := encode(manifest)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, m.Key(), data)
}

// ReplaceSegments reloads the manifest from the store (the authoritative
// copy, not whatever the caller last saw), drops every segment in
// removedIDs, appends newSegments, optionally installs checkpoint, and
// saves the result in one operation.
//
// Reloading immediately before mutating and saving is what prevents the
// compaction/persistence race where a compactor computes "segments 0..N-1
// are now covered by a new merged segment" from a stale manifest while a
// concurrent flush has already appended segment N: if compaction instead
// blindly overwrote its own cached copy, that flush's segment would
// silently vanish from the manifest even though its file still exists on
// disk. Reloading right before the mutate-and-save step closes that
// window to the time between reload and save, not between whenever the
// caller started compacting and save.
func (m *Manager) ReplaceSegments(ctx context.Context, removedIDs map[uint64]struct{}, newSegments []SegmentInfo, checkpoint *CheckpointInfo) (Manifest, error) {
	manifest, err := m.LoadOrCreate(ctx, 0)
	if err != nil {
		return Manifest{}, err
	}
	manifest.RemoveSegments(removedIDs)
	for _, s := range newSegments {
		manifest.AddSegment(s)
	}
	if checkpoint != nil {
		manifest.Checkpoint = checkpoint
	}
	if err := m.Save(ctx, manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}
