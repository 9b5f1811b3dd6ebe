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

package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/wire"
)

// ErrEmpty is returned by Finish when the writer holds no records — an
// empty segment file is never meaningful, so Finish refuses to produce one.
var ErrEmpty = errors.New("segment: cannot finish an empty segment")

// Writer accumulates ReplicationDeltas and emits a single immutable
// segment byte slice once Finish is called.
type Writer struct {
	compression Compression
	records     [][]byte
	totalSize   int
	minTS       uint64
	maxTS       uint64
	hasRecords  bool
}

// NewWriter starts a segment writer using the given compression codec.
func NewWriter(compression Compression) *Writer {
	return &Writer{compression: compression, minTS: ^uint64(0)}
}

// WriteDelta wire-encodes delta and appends it as a length-prefixed record.
func (w *Writer) WriteDelta(delta crdt.ReplicationDelta) {
	data := wire.EncodeDelta(delta)
	record := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(record[0:4], uint32(len(data)))
	copy(record[4:], data)

	w.records = append(w.records, record)
	w.totalSize += len(record)
	w.hasRecords = true

	ts := delta.Value.Timestamp.Time
	if ts < w.minTS {
		w.minTS = ts
	}
	if ts > w.maxTS {
		w.maxTS = ts
	}
}

// RecordCount reports how many deltas have been written so far.
func (w *Writer) RecordCount() int { return len(w.records) }

// EstimatedSize reports the segment's size if Finish were called now.
func (w *Writer) EstimatedSize() int { return headerSize + w.totalSize + footerSize }

// IsEmpty reports whether any delta has been written yet.
func (w *Writer) IsEmpty() bool { return !w.hasRecords }

// Finish concatenates every record, computes the data checksum, applies
// compression, and assembles the final header+data+footer byte slice.
func (w *Writer) Finish() ([]byte, error) {
	if !w.hasRecords {
		return nil, ErrEmpty
	}

	recordData := make([]byte, 0, w.totalSize)
	for _, r := range w.records {
		recordData = append(recordData, r...)
	}

	dataChecksum := crc32.ChecksumIEEE(recordData)
	uncompressedSize := uint64(len(recordData))

	finalData := recordData
	compressedSize := uncompressedSize
	if w.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("segment: create zstd encoder: %w", err)
		}
		finalData = enc.EncodeAll(recordData, nil)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("segment: close zstd encoder: %w", err)
		}
		compressedSize = uint64(len(finalData))
	}

	header := newHeader(uint32(len(w.records)), w.minTS, w.maxTS, w.compression)
	footer := newFooter(dataChecksum, uncompressedSize, compressedSize)

	out := make([]byte, 0, headerSize+len(finalData)+footerSize)
	out = append(out, header.encode()...)
	out = append(out, finalData...)
	out = append(out, footer.encode()...)
	return out, nil
}
