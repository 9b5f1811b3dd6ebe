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
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/wire"
)

// Reader parses a complete segment byte slice produced by Writer.Finish.
type Reader struct {
	header     Header
	footer     Footer
	recordData []byte // between header and footer, still compressed if applicable
}

// Open parses and validates data's header and footer (but not the data
// checksum — call Validate separately, since that requires decompressing).
func Open(data []byte) (*Reader, error) {
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("segment: too small (%d bytes)", len(data))
	}
	header, err := decodeHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}
	footerStart := len(data) - footerSize
	footer, err := decodeFooter(data[footerStart:])
	if err != nil {
		return nil, err
	}
	return &Reader{
		header:     header,
		footer:     footer,
		recordData: data[headerSize:footerStart],
	}, nil
}

func (r *Reader) Header() Header { return r.header }
func (r *Reader) Footer() Footer { return r.footer }

// Validate decompresses the record data (if needed) and checks it against
// the footer's data checksum.
func (r *Reader) Validate() error {
	decompressed, err := r.decompress()
	if err != nil {
		return err
	}
	actual := crc32.ChecksumIEEE(decompressed)
	if actual != r.footer.DataChecksum {
		return fmt.Errorf("segment: data checksum mismatch: expected %d, got %d", r.footer.DataChecksum, actual)
	}
	return nil
}

func (r *Reader) decompress() ([]byte, error) {
	if r.header.Compression() == CompressionNone {
		return r.recordData, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("segment: create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(r.recordData, nil)
	if err != nil {
		return nil, fmt.Errorf("segment: zstd decode: %w", err)
	}
	return out, nil
}

// ReadAll decompresses and decodes every record into a ReplicationDelta,
// in the order they were written.
func (r *Reader) ReadAll() ([]crdt.ReplicationDelta, error) {
	data, err := r.decompress()
	if err != nil {
		return nil, err
	}

	deltas := make([]crdt.ReplicationDelta, 0, r.header.RecordCount)
	offset := 0
	for i := uint32(0); i < r.header.RecordCount; i++ {
		if offset+4 > len(data) {
			return deltas, fmt.Errorf("segment: unexpected end of record data at record %d", i)
		}
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+length > len(data) {
			return deltas, fmt.Errorf("segment: truncated record %d", i)
		}
		delta, err := wire.DecodeDelta(data[offset : offset+length])
		if err != nil {
			return deltas, fmt.Errorf("segment: decode record %d: %w", i, err)
		}
		deltas = append(deltas, delta)
		offset += length
	}
	return deltas, nil
}
