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
	"fmt"

	"github.com/etalazz/rkv/internal/crdt"
)

// WAL is the durability boundary between a shard's in-memory CRDT state
// and disk: the ReplicationDeltas drained from a shard are appended here.
// Appending is not on a command's reply path; cmd/kvengine appends drained
// deltas after the clients that caused them have been answered.
type WAL struct {
	rot   *rotator
	act   *actor
	cfg   Config
}

// Open creates or resumes a WAL rooted at cfg.Dir. Resuming adds the
// highest existing segment's entry count to that segment's header base
// sequence to continue numbering rather than reusing sequence numbers a
// prior process already handed out.
func Open(cfg Config) (*WAL, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: Dir is required")
	}

	rot, err := newRotator(cfg.Dir, cfg.MaxSegmentBytes)
	if err != nil {
		return nil, err
	}

	w := &WAL{rot: rot, cfg: cfg}
	w.act = newActor(rot, cfg)
	go w.act.run()
	return w, nil
}

// Append durably records delta, stamped with timestamp (the delta's own
// Lamport time). Under FsyncAlways the call blocks until the entry's batch
// has been fsynced; under FsyncEverySecond/FsyncNone it returns once the
// entry has been appended to the OS page cache.
func (w *WAL) Append(ctx context.Context, delta crdt.ReplicationDelta, timestamp uint64) error {
	entry := NewEntry(delta, timestamp)
	ack := make(chan error, 1)
	select {
	case w.act.writes <- writeRequest{entry: entry, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TruncateUpTo deletes every fully-written segment whose entries are all
// timestamped at or before cutoff — called once the persistence layer has
// durably reflected those deltas in a segment or checkpoint file.
func (w *WAL) TruncateUpTo(ctx context.Context, cutoff uint64) (int, error) {
	done := make(chan truncateResult, 1)
	select {
	case w.act.truncates <- truncateRequest{cutoff: cutoff, done: done}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-done:
		return res.deleted, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops the actor goroutine (flushing one final time) and syncs and
// closes the current segment.
func (w *WAL) Close() error {
	w.act.stop()
	return w.rot.close()
}

// RecoverAllEntries replays every entry in every segment under dir, in
// file and in-file order. Within each segment file, reading stops at the
// first corrupted or truncated entry (the crash boundary); later segment
// files are still read. It does not require an open WAL — recovery
// runs before the server starts accepting traffic.
func RecoverAllEntries(dir string) ([]Entry, error) {
	return RecoverEntriesAfter(dir, 0)
}

// RecoverEntriesAfter replays every entry whose timestamp is strictly
// greater than afterTimestamp, in file order. Used to resume from a
// checkpoint: the checkpoint already reflects everything up to and
// including afterTimestamp.
func RecoverEntriesAfter(dir string, afterTimestamp uint64) ([]Entry, error) {
	paths, err := listSegmentFiles(dir)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, path := range paths {
		entries, err := readSegmentEntries(path)
		if err != nil {
			return out, fmt.Errorf("wal: recover %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Timestamp > afterTimestamp {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// RecoverDeltas is RecoverEntriesAfter followed by decoding every entry
// back into a ReplicationDelta, the shape internal/recovery actually wants
// to replay into shard state.
func RecoverDeltas(dir string, afterTimestamp uint64) ([]crdt.ReplicationDelta, error) {
	entries, err := RecoverEntriesAfter(dir, afterTimestamp)
	if err != nil {
		return nil, err
	}
	deltas := make([]crdt.ReplicationDelta, 0, len(entries))
	for _, e := range entries {
		d, err := e.Delta()
		if err != nil {
			return deltas, fmt.Errorf("wal: decode recovered entry at timestamp %d: %w", e.Timestamp, err)
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}
