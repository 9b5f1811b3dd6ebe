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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	defaultMaxSegmentBytes = 64 << 20 // 64 MiB
	minSegmentBytes        = 4 << 10
)

// rotator owns the currently-open segment file and rolls to a new one once
// maxSegmentBytes is exceeded. It is not safe for concurrent use; the actor
// is the only caller, serializing all access through its message loop.
type rotator struct {
	dir             string
	maxSegmentBytes int64

	current     *os.File
	segmentNum  uint64
	segmentSize int64
	nextSeq     uint64
}

func newRotator(dir string, maxSegmentBytes int64) (*rotator, error) {
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = defaultMaxSegmentBytes
	}
	if maxSegmentBytes < minSegmentBytes {
		return nil, fmt.Errorf("wal: max segment bytes %d too small (min %d)", maxSegmentBytes, minSegmentBytes)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	r := &rotator{dir: dir, maxSegmentBytes: maxSegmentBytes}

	high, err := highestSegmentNumber(dir)
	if err != nil {
		return nil, err
	}

	// Recompute nextSeq from the highest existing segment's header base
	// sequence plus its entry count, so a restart continues the sequence
	// rather than reusing sequence numbers.
	if high > 0 {
		path := fileNameAt(dir, high)
		entries, err := readSegmentEntries(path)
		if err != nil {
			return nil, fmt.Errorf("wal: read last segment %d: %w", high, err)
		}
		f, err := os.Open(path) //nolint:gosec // path built from validated dir + zero-padded counter
		if err != nil {
			return nil, fmt.Errorf("wal: open last segment %d: %w", high, err)
		}
		var hdr [walHeaderSize]byte
		if _, err := io.ReadFull(f, hdr[:]); err == nil {
			r.nextSeq = binary.LittleEndian.Uint64(hdr[8:16])
		}
		_ = f.Close()
		r.nextSeq += uint64(len(entries))
	}

	r.segmentNum = high + 1
	if err := r.openNewSegment(); err != nil {
		return nil, err
	}
	return r, nil
}

func fileNameAt(dir string, n uint64) string {
	return filepath.Join(dir, fileName(n))
}

func (r *rotator) openNewSegment() error {
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			return fmt.Errorf("wal: close previous segment: %w", err)
		}
	}
	f, err := createSegment(r.dir, r.segmentNum, r.nextSeq)
	if err != nil {
		return err
	}
	r.current = f
	r.segmentSize = walHeaderSize
	return nil
}

// append writes entry to the current segment, rotating first if it would
// overflow maxSegmentBytes. It does not fsync — callers decide sync timing
// per the configured FsyncPolicy.
func (r *rotator) append(entry Entry) error {
	size := int64(entry.diskSize())
	if r.segmentSize+size > r.maxSegmentBytes && r.segmentSize > walHeaderSize {
		r.segmentNum++
		if err := r.openNewSegment(); err != nil {
			return fmt.Errorf("wal: rotate: %w", err)
		}
	}

	if _, err := r.current.Write(entry.encode()); err != nil {
		return fmt.Errorf("wal: append entry: %w", err)
	}
	r.segmentSize += size
	r.nextSeq++
	return nil
}

// sync fsyncs the current segment file.
func (r *rotator) sync() error {
	if r.current == nil {
		return nil
	}
	if err := r.current.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// close syncs and closes the current segment.
func (r *rotator) close() error {
	if r.current == nil {
		return nil
	}
	if err := r.current.Sync(); err != nil {
		_ = r.current.Close()
		return fmt.Errorf("wal: final sync: %w", err)
	}
	return r.current.Close()
}

// truncateBefore deletes every fully-written segment whose every entry has
// a timestamp <= cutoff, leaving the current (in-progress) segment alone.
// It returns how many segment files were removed. This is what lets the
// persistence layer reclaim WAL disk space once a delta is durably
// reflected in a segment/checkpoint, per spec's compaction story.
func (r *rotator) truncateBefore(cutoff uint64) (int, error) {
	paths, err := listSegmentFiles(r.dir)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, path := range paths {
		if path == r.current.Name() {
			continue
		}
		entries, err := readSegmentEntries(path)
		if err != nil {
			continue // unreadable segment; leave it for manual inspection
		}
		if len(entries) == 0 {
			continue
		}
		highest := entries[len(entries)-1].Timestamp
		for _, e := range entries {
			if e.Timestamp > highest {
				highest = e.Timestamp
			}
		}
		if highest <= cutoff {
			if err := os.Remove(path); err != nil {
				return deleted, fmt.Errorf("wal: remove segment %s: %w", path, err)
			}
			deleted++
		}
	}
	return deleted, nil
}
