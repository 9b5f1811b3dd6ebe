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

// Package wal implements the write-ahead log spec §6.1 sits in front of
// every shard's segment/checkpoint files: every ReplicationDelta drained
// from a shard is appended here, individually CRC32-checksummed. In
// cmd/kvengine the drain runs on a ticker, after the client that caused a
// delta has already been replied to. Recovery reads the segment files in
// order; within each file it stops at the first truncated or corrupted
// entry and then goes on to the next file, recovering everything written
// before a crash rather than rejecting the whole log.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/wire"
)

// entryOverhead is data_length(4) + timestamp(8) + checksum(4).
const entryOverhead = 16

// Entry is one WAL record: a wire-encoded ReplicationDelta plus the
// Lamport timestamp that ordered it, and a CRC32 over the encoded bytes.
type Entry struct {
	Data      []byte
	Timestamp uint64
	Checksum  uint32
}

// NewEntry wire-encodes delta and stamps it with timestamp (the delta's own
// Lamport time, not wall-clock — recovery and truncation both key on it).
func NewEntry(delta crdt.ReplicationDelta, timestamp uint64) Entry {
	data := wire.EncodeDelta(delta)
	return Entry{
		Data:      data,
		Timestamp: timestamp,
		Checksum:  crc32.ChecksumIEEE(data),
	}
}

// Delta decodes the entry's payload back into a ReplicationDelta.
func (e Entry) Delta() (crdt.ReplicationDelta, error) {
	return wire.DecodeDelta(e.Data)
}

// Valid reports whether the entry's checksum matches its data.
func (e Entry) Valid() bool {
	return crc32.ChecksumIEEE(e.Data) == e.Checksum
}

// diskSize is the entry's footprint once encoded.
func (e Entry) diskSize() int {
	return entryOverhead + len(e.Data)
}

// encode serializes the entry as: data_length(4) | timestamp(8) | checksum(4) | data.
func (e Entry) encode() []byte {
	buf := make([]byte, e.diskSize())
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Data)))
	binary.LittleEndian.PutUint64(buf[4:12], e.Timestamp)
	binary.LittleEndian.PutUint32(buf[12:16], e.Checksum)
	copy(buf[entryOverhead:], e.Data)
	return buf
}

// decodeEntry parses one entry from the head of data. It returns the
// number of bytes consumed so the caller can advance past it, or an error
// if data is too short to hold a full, checksum-valid entry — the signal
// recovery uses to stop reading a segment at a crash boundary.
func decodeEntry(data []byte) (Entry, int, error) {
	if len(data) < entryOverhead {
		return Entry{}, 0, fmt.Errorf("wal: truncated entry header (%d bytes)", len(data))
	}
	dataLen := binary.LittleEndian.Uint32(data[0:4])
	timestamp := binary.LittleEndian.Uint64(data[4:12])
	checksum := binary.LittleEndian.Uint32(data[12:16])

	total := entryOverhead + int(dataLen)
	if len(data) < total {
		return Entry{}, 0, fmt.Errorf("wal: truncated entry body (need %d, have %d)", total, len(data))
	}

	payload := make([]byte, dataLen)
	copy(payload, data[entryOverhead:total])

	if crc32.ChecksumIEEE(payload) != checksum {
		return Entry{}, 0, fmt.Errorf("wal: checksum mismatch at timestamp %d", timestamp)
	}

	return Entry{Data: payload, Timestamp: timestamp, Checksum: checksum}, total, nil
}
