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

// Package segment implements the immutable, batched segment file format
// spec §6.2 persists drained WAL deltas into once they've been grouped for
// longer-term storage: a fixed-size header (magic, version, record count,
// min/max Lamport timestamp, header checksum), a run of length-prefixed
// wire-encoded records, optionally zstd-compressed, and a fixed-size
// footer (data checksum, uncompressed/compressed sizes, reversed magic).
// Segments are write-once: a Writer accumulates records and emits a
// single byte slice; a Reader only ever reads.
package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var (
	segmentMagic = [4]byte{'R', 'S', 'E', 'G'}
	footerMagic  = [4]byte{'G', 'E', 'S', 'R'}
)

const (
	formatVersion = 1

	// headerSize is magic(4) + version(1) + flags(1) + record_count(4) +
	// min_timestamp(8) + max_timestamp(8) + header_checksum(4) = 30,
	// padded to a round 40 bytes.
	headerSize = 40
	// footerSize is data_checksum(4) + uncompressed_size(8) +
	// compressed_size(8) + footer_magic(4) = 24.
	footerSize = 24
)

// Compression selects the codec applied to a segment's record bytes.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// Header is the segment's fixed-size leading metadata block.
type Header struct {
	Version        uint8
	Flags          uint8
	RecordCount    uint32
	MinTimestamp   uint64
	MaxTimestamp   uint64
	HeaderChecksum uint32
}

// Compression reports which codec Flags selects.
func (h Header) Compression() Compression {
	if h.Flags&1 != 0 {
		return CompressionZstd
	}
	return CompressionNone
}

func newHeader(recordCount uint32, minTS, maxTS uint64, compression Compression) Header {
	h := Header{
		Version:      formatVersion,
		RecordCount:  recordCount,
		MinTimestamp: minTS,
		MaxTimestamp: maxTS,
	}
	if compression == CompressionZstd {
		h.Flags = 1
	}
	h.HeaderChecksum = h.computeChecksum()
	return h
}

func (h Header) computeChecksum() uint32 {
	crc := crc32.NewIEEE()
	crc.Write(segmentMagic[:])
	crc.Write([]byte{h.Version, h.Flags})
	var tmp [20]byte
	binary.LittleEndian.PutUint32(tmp[0:4], h.RecordCount)
	binary.LittleEndian.PutUint64(tmp[4:12], h.MinTimestamp)
	binary.LittleEndian.PutUint64(tmp[12:20], h.MaxTimestamp)
	crc.Write(tmp[:])
	return crc.Sum32()
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], segmentMagic[:])
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.LittleEndian.PutUint32(buf[6:10], h.RecordCount)
	binary.LittleEndian.PutUint64(buf[10:18], h.MinTimestamp)
	binary.LittleEndian.PutUint64(buf[18:26], h.MaxTimestamp)
	binary.LittleEndian.PutUint32(buf[26:30], h.HeaderChecksum)
	// buf[30:40] reserved, left zero.
	return buf
}

func decodeHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("segment: header too short (%d bytes)", len(data))
	}
	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != segmentMagic {
		return Header{}, fmt.Errorf("segment: invalid magic %q", magic)
	}
	h := Header{
		Version:        data[4],
		Flags:          data[5],
		RecordCount:    binary.LittleEndian.Uint32(data[6:10]),
		MinTimestamp:   binary.LittleEndian.Uint64(data[10:18]),
		MaxTimestamp:   binary.LittleEndian.Uint64(data[18:26]),
		HeaderChecksum: binary.LittleEndian.Uint32(data[26:30]),
	}
	if h.Version != formatVersion {
		return Header{}, fmt.Errorf("segment: unsupported version %d", h.Version)
	}
	if expected := h.computeChecksum(); expected != h.HeaderChecksum {
		return Header{}, fmt.Errorf("segment: header checksum mismatch: expected %d, got %d", expected, h.HeaderChecksum)
	}
	return h, nil
}

// Footer is the segment's fixed-size trailing metadata block.
type Footer struct {
	DataChecksum     uint32
	UncompressedSize uint64
	CompressedSize   uint64
}

func newFooter(dataChecksum uint32, uncompressedSize, compressedSize uint64) Footer {
	return Footer{DataChecksum: dataChecksum, UncompressedSize: uncompressedSize, CompressedSize: compressedSize}
}

func (f Footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.DataChecksum)
	binary.LittleEndian.PutUint64(buf[4:12], f.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[12:20], f.CompressedSize)
	copy(buf[20:24], footerMagic[:])
	return buf
}

func decodeFooter(data []byte) (Footer, error) {
	if len(data) < footerSize {
		return Footer{}, fmt.Errorf("segment: footer too short (%d bytes)", len(data))
	}
	var magic [4]byte
	copy(magic[:], data[20:24])
	if magic != footerMagic {
		return Footer{}, fmt.Errorf("segment: invalid footer magic %q", magic)
	}
	return Footer{
		DataChecksum:     binary.LittleEndian.Uint32(data[0:4]),
		UncompressedSize: binary.LittleEndian.Uint64(data[4:12]),
		CompressedSize:   binary.LittleEndian.Uint64(data[12:20]),
	}, nil
}
