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

// Package persist buffers incoming replication deltas and drains them into
// durable segment files on a schedule, alongside periodic full-keyspace
// checkpoints. It is the write side of the durability story whose read
// side is internal/recovery.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/segment"
)

// ErrNoSnapshotSource is returned by Checkpoint when no Snapshotter was
// configured; a Persistence can still flush segments without one, it
// just never produces checkpoints for recovery to use as a base state.
var ErrNoSnapshotSource = errors.New("persist: no snapshot source configured")

// Snapshotter returns the full current key-space, used as the payload of
// a checkpoint. Implementations are expected to return a point-in-time
// copy safe to serialize without further locking.
type Snapshotter func() checkpoint.State

// Config tunes how often and how eagerly a Persistence drains its buffer.
type Config struct {
	// FlushInterval is how often the background worker drains the buffer
	// into a segment, regardless of size.
	FlushInterval time.Duration
	// FlushThreshold, if positive, triggers an immediate flush from Push
	// once the buffer holds at least this many undrained deltas, instead
	// of waiting for the next tick.
	FlushThreshold int
	// CheckpointInterval is how often the background worker takes a full
	// snapshot via Snapshotter, if one is configured.
	CheckpointInterval    time.Duration
	SegmentCompression    segment.Compression
	CheckpointCompression checkpoint.Compression
}

// DefaultConfig returns production-sized flush and checkpoint cadences.
func DefaultConfig() Config {
	return Config{
		FlushInterval:         5 * time.Second,
		FlushThreshold:        10_000,
		CheckpointInterval:    10 * time.Minute,
		SegmentCompression:    segment.CompressionZstd,
		CheckpointCompression: checkpoint.CompressionZstd,
	}
}

// FlushResult reports what a Flush call wrote, if anything.
type FlushResult struct {
	Segment *manifest.SegmentInfo
}

// CheckpointResult reports what a Checkpoint call wrote.
type CheckpointResult struct {
	Checkpoint manifest.CheckpointInfo
}

// Persistence buffers ReplicationDeltas in memory and drains them into
// segment and checkpoint files through an objectstore.Store, recording
// each in a shared manifest.Manager.
type Persistence struct {
	store           objectstore.Store
	prefix          string
	replicaID       uint64
	manifestManager *manifest.Manager
	config          Config
	snapshot        Snapshotter

	mu     sync.Mutex
	buffer []crdt.ReplicationDelta

	// flushMu serializes the load-write-record sequence in Flush and
	// Checkpoint against each other: Start runs flushLoop's ticker-driven
	// Flush concurrently with Push's threshold-triggered Flush, and both
	// assign a segment ID/key from a manifest load that must not overlap
	// another call's load-then-ReplaceSegments window, or two flushes can
	// compute the same ID, overwrite each other's segment object, and both
	// still get recorded under that one ID.
	flushMu sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// New returns a Persistence writing segment and checkpoint objects under
// prefix for replicaID. snapshot may be nil if this Persistence should
// only ever flush segments and never produce checkpoints.
func New(store objectstore.Store, prefix string, replicaID uint64, manifestManager *manifest.Manager, config Config, snapshot Snapshotter) *Persistence {
	return &Persistence{
		store:           store,
		prefix:          prefix,
		replicaID:       replicaID,
		manifestManager: manifestManager,
		config:          config,
		snapshot:        snapshot,
		stopChan:        make(chan struct{}),
	}
}

// Push buffers delta for the next flush. It returns an error if the
// Persistence has already been stopped, or if the flush it triggers on
// reaching FlushThreshold fails.
func (p *Persistence) Push(delta crdt.ReplicationDelta) error {
	if atomic.LoadUint32(&p.stopped) == 1 {
		return errors.New("persist: pushed to a stopped Persistence")
	}
	p.mu.Lock()
	p.buffer = append(p.buffer, delta)
	shouldFlush := p.config.FlushThreshold > 0 && len(p.buffer) >= p.config.FlushThreshold
	p.mu.Unlock()

	if shouldFlush {
		if _, err := p.Flush(context.Background()); err != nil {
			return fmt.Errorf("persist: threshold flush: %w", err)
		}
	}
	return nil
}

// BufferedCount reports how many deltas are currently buffered, undrained.
func (p *Persistence) BufferedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Flush drains the current buffer into one new segment, if it is
// non-empty, and records the segment in the manifest.
func (p *Persistence) Flush(ctx context.Context) (FlushResult, error) {
	p.mu.Lock()
	deltas := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(deltas) == 0 {
		return FlushResult{}, nil
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	writer := segment.NewWriter(p.config.SegmentCompression)
	for _, d := range deltas {
		writer.WriteDelta(d)
	}
	data, err := writer.Finish()
	if err != nil {
		return FlushResult{}, fmt.Errorf("persist: write segment: %w", err)
	}

	man, err := p.manifestManager.LoadOrCreate(ctx, p.replicaID)
	if err != nil {
		return FlushResult{}, fmt.Errorf("persist: load manifest: %w", err)
	}

	id := man.NextSegmentID
	key := fmt.Sprintf("%s/segments/%d.seg", p.prefix, id)
	if err := p.store.Put(ctx, key, data); err != nil {
		return FlushResult{}, fmt.Errorf("persist: put segment %s: %w", key, err)
	}

	minTS, maxTS := deltaTimestampRange(deltas)

	info := manifest.SegmentInfo{
		ID:           id,
		Key:          key,
		RecordCount:  uint32(len(deltas)),
		SizeBytes:    uint64(len(data)),
		MinTimestamp: minTS,
		MaxTimestamp: maxTS,
	}

	newManifest, err := p.manifestManager.ReplaceSegments(ctx, nil, []manifest.SegmentInfo{info}, man.Checkpoint)
	if err != nil {
		return FlushResult{}, fmt.Errorf("persist: record segment in manifest: %w", err)
	}

	metrics.ObserveSegmentFlush()
	metrics.SetSegmentsTotal(len(newManifest.Segments))

	return FlushResult{Segment: &info}, nil
}

func deltaTimestampRange(deltas []crdt.ReplicationDelta) (min, max uint64) {
	min = ^uint64(0)
	for _, d := range deltas {
		ts := d.Value.Timestamp.Time
		if ts < min {
			min = ts
		}
		if ts > max {
			max = ts
		}
	}
	return min, max
}

// Checkpoint takes a full key-space snapshot via Snapshotter and records
// it as the manifest's current checkpoint.
func (p *Persistence) Checkpoint(ctx context.Context) (CheckpointResult, error) {
	if p.snapshot == nil {
		return CheckpointResult{}, ErrNoSnapshotSource
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	man, err := p.manifestManager.LoadOrCreate(ctx, p.replicaID)
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("persist: load manifest: %w", err)
	}

	state := p.snapshot()
	timestampMs := uint64(time.Now().UnixMilli())
	lastSegmentID := highestSegmentID(man)

	writer := checkpoint.NewWriter(p.config.CheckpointCompression)
	data, err := writer.Write(state, timestampMs, lastSegmentID)
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("persist: write checkpoint: %w", err)
	}

	key := fmt.Sprintf("%s/checkpoints/%d.chk", p.prefix, timestampMs)
	if err := p.store.Put(ctx, key, data); err != nil {
		return CheckpointResult{}, fmt.Errorf("persist: put checkpoint %s: %w", key, err)
	}

	info := manifest.CheckpointInfo{
		Key:           key,
		TimestampMs:   timestampMs,
		KeyCount:      uint64(len(state)),
		LastSegmentID: lastSegmentID,
	}
	if _, err := p.manifestManager.ReplaceSegments(ctx, nil, nil, &info); err != nil {
		return CheckpointResult{}, fmt.Errorf("persist: record checkpoint in manifest: %w", err)
	}

	metrics.ObserveCheckpoint()

	return CheckpointResult{Checkpoint: info}, nil
}

func highestSegmentID(man manifest.Manifest) uint64 {
	var max uint64
	found := false
	for _, s := range man.Segments {
		if !found || s.ID > max {
			max = s.ID
			found = true
		}
	}
	return max
}

// Start launches the background flush and checkpoint loops.
func (p *Persistence) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.flushLoop()
	}()
	if p.snapshot != nil && p.config.CheckpointInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.checkpointLoop()
		}()
	}
}

// Stop halts the background loops and performs one final flush so no
// buffered delta is lost on shutdown.
func (p *Persistence) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		return nil
	}
	close(p.stopChan)
	p.wg.Wait()

	_, err := p.Flush(ctx)
	return err
}

func (p *Persistence) flushLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.Flush(context.Background()); err != nil {
				fmt.Printf("persist: flush error: %v\n", err)
			}
		case <-p.stopChan:
			return
		}
	}
}

func (p *Persistence) checkpointLoop() {
	ticker := time.NewTicker(p.config.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.Checkpoint(context.Background()); err != nil {
				fmt.Printf("persist: checkpoint error: %v\n", err)
			}
		case <-p.stopChan:
			return
		}
	}
}
