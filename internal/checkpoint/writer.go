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

package checkpoint

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/wire"
)

// State is the full key-space snapshot a checkpoint captures.
type State map[string]crdt.ReplicatedValue

// Writer builds a single checkpoint file from a State snapshot.
type Writer struct {
	compression Compression
}

// NewWriter starts a checkpoint writer using the given compression codec.
func NewWriter(compression Compression) *Writer {
	return &Writer{compression: compression}
}

// Write serializes state into a checkpoint byte slice. timestampMs is the
// wall-clock time the snapshot was taken; lastSegmentID is the highest
// segment sequence number this checkpoint makes safe to delete once
// durably stored, per spec's compaction story.
func (w *Writer) Write(state State, timestampMs uint64, lastSegmentID uint64) ([]byte, error) {
	serialized := encodeState(state)

	dataChecksum := crc32.ChecksumIEEE(serialized)
	dataSize := uint64(len(serialized))

	finalData := serialized
	if w.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: create zstd encoder: %w", err)
		}
		finalData = enc.EncodeAll(serialized, nil)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("checkpoint: close zstd encoder: %w", err)
		}
	}

	header := newHeader(uint64(len(state)), timestampMs, lastSegmentID, w.compression)
	footer := newFooter(dataChecksum, dataSize)

	out := make([]byte, 0, headerSize+4+len(finalData)+footerSize)
	out = append(out, header.encode()...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(finalData)))
	out = append(out, lenBuf[:]...)
	out = append(out, finalData...)
	out = append(out, footer.encode()...)
	return out, nil
}

// encodeState serializes a State as: record_count(4) then, per key in
// sorted order (for deterministic output across identical snapshots),
// key_length(4) + key bytes + value_length(4) + wire-encoded
// ReplicatedValue. Sorting keys keeps checkpoints reproducible for DST
// replay, matching the determinism note in the format this package mirrors.
func encodeState(state State) []byte {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 4, 64*len(state)+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(state)))

	for _, k := range keys {
		v := state[k]
		keyBytes := []byte(k)
		var kLen [4]byte
		binary.LittleEndian.PutUint32(kLen[:], uint32(len(keyBytes)))
		buf = append(buf, kLen[:]...)
		buf = append(buf, keyBytes...)

		valBytes := wire.EncodeReplicatedValue(v)
		var vLen [4]byte
		binary.LittleEndian.PutUint32(vLen[:], uint32(len(valBytes)))
		buf = append(buf, vLen[:]...)
		buf = append(buf, valBytes...)
	}
	return buf
}
