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

// Package checkpoint implements full key-space snapshots: a point-in-time
// copy of every live key's ReplicatedValue, written so recovery can skip
// straight to a recent checkpoint plus whatever WAL/segment data follows
// it, instead of replaying the entire history. The file layout mirrors
// internal/segment (fixed header, length-prefixed optionally-compressed
// data block, fixed footer) but the header carries checkpoint-specific
// metadata (key count, wall-clock timestamp, last covered segment) instead
// of a Lamport timestamp range.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var checkpointMagic = [4]byte{'R', 'C', 'H', 'K'}

const (
	formatVersion = 1

	// headerSize is magic(4) + version(1) + flags(1) + padding(2) +
	// key_count(8) + timestamp_ms(8) + last_segment_id(8) + reserved(12) +
	// header_checksum(4) = 48.
	headerSize = 48
	// footerSize is data_checksum(4) + data_size(8) + footer_checksum(4) = 16.
	footerSize = 16
)

// Compression selects the codec applied to a checkpoint's data block.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// Header is the checkpoint's fixed-size leading metadata block.
type Header struct {
	Version        uint8
	Flags          uint8
	KeyCount       uint64
	TimestampMs    uint64
	LastSegmentID  uint64
	HeaderChecksum uint32
}

// Compression reports which codec Flags selects.
func (h Header) Compression() Compression {
	if h.Flags&1 != 0 {
		return CompressionZstd
	}
	return CompressionNone
}

func newHeader(keyCount, timestampMs, lastSegmentID uint64, compression Compression) Header {
	h := Header{
		Version:       formatVersion,
		KeyCount:      keyCount,
		TimestampMs:   timestampMs,
		LastSegmentID: lastSegmentID,
	}
	if compression == CompressionZstd {
		h.Flags = 1
	}
	h.HeaderChecksum = h.computeChecksum()
	return h
}

func (h Header) computeChecksum() uint32 {
	crc := crc32.NewIEEE()
	crc.Write(checkpointMagic[:])
	crc.Write([]byte{h.Version, h.Flags})
	var tmp [24]byte
	binary.LittleEndian.PutUint64(tmp[0:8], h.KeyCount)
	binary.LittleEndian.PutUint64(tmp[8:16], h.TimestampMs)
	binary.LittleEndian.PutUint64(tmp[16:24], h.LastSegmentID)
	crc.Write(tmp[:])
	return crc.Sum32()
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], checkpointMagic[:])
	buf[4] = h.Version
	buf[5] = h.Flags
	// buf[6:8] padding, left zero.
	binary.LittleEndian.PutUint64(buf[8:16], h.KeyCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.TimestampMs)
	binary.LittleEndian.PutUint64(buf[24:32], h.LastSegmentID)
	// buf[32:44] reserved, left zero.
	binary.LittleEndian.PutUint32(buf[44:48], h.HeaderChecksum)
	return buf
}

func decodeHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("checkpoint: header too short (%d bytes)", len(data))
	}
	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != checkpointMagic {
		return Header{}, fmt.Errorf("checkpoint: invalid magic %q", magic)
	}
	h := Header{
		Version:        data[4],
		Flags:          data[5],
		KeyCount:       binary.LittleEndian.Uint64(data[8:16]),
		TimestampMs:    binary.LittleEndian.Uint64(data[16:24]),
		LastSegmentID:  binary.LittleEndian.Uint64(data[24:32]),
		HeaderChecksum: binary.LittleEndian.Uint32(data[44:48]),
	}
	if h.Version != formatVersion {
		return Header{}, fmt.Errorf("checkpoint: unsupported version %d", h.Version)
	}
	if expected := h.computeChecksum(); expected != h.HeaderChecksum {
		return Header{}, fmt.Errorf("checkpoint: header checksum mismatch: expected %d, got %d", expected, h.HeaderChecksum)
	}
	return h, nil
}

// Footer is the checkpoint's fixed-size trailing metadata block.
type Footer struct {
	DataChecksum   uint32
	DataSize       uint64
	FooterChecksum uint32
}

func newFooter(dataChecksum uint32, dataSize uint64) Footer {
	f := Footer{DataChecksum: dataChecksum, DataSize: dataSize}
	f.FooterChecksum = f.computeChecksum()
	return f
}

func (f Footer) computeChecksum() uint32 {
	crc := crc32.NewIEEE()
	var tmp [12]byte
	binary.LittleEndian.PutUint32(tmp[0:4], f.DataChecksum)
	binary.LittleEndian.PutUint64(tmp[4:12], f.DataSize)
	crc.Write(tmp[:])
	return crc.Sum32()
}

func (f Footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.DataChecksum)
	binary.LittleEndian.PutUint64(buf[4:12], f.DataSize)
	binary.LittleEndian.PutUint32(buf[12:16], f.FooterChecksum)
	return buf
}

func decodeFooter(data []byte) (Footer, error) {
	if len(data) < footerSize {
		return Footer{}, fmt.Errorf("checkpoint: footer too short (%d bytes)", len(data))
	}
	f := Footer{
		DataChecksum:   binary.LittleEndian.Uint32(data[0:4]),
		DataSize:       binary.LittleEndian.Uint64(data[4:12]),
		FooterChecksum: binary.LittleEndian.Uint32(data[12:16]),
	}
	if expected := f.computeChecksum(); expected != f.FooterChecksum {
		return Footer{}, fmt.Errorf("checkpoint: footer checksum mismatch: expected %d, got %d", expected, f.FooterChecksum)
	}
	return f, nil
}
