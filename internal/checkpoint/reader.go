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

	"github.com/klauspost/compress/zstd"

	"github.com/etalazz/rkv/internal/wire"
)

// Reader parses a complete checkpoint byte slice produced by Writer.Write.
type Reader struct {
	header       Header
	footer       Footer
	compressed   []byte // or uncompressed, if Header.Compression() is None
}

// Open parses and validates the header, the data-length prefix, and the
// footer's own checksum. It does not decompress or verify the data
// checksum — call Validate for that, since decompression is only needed
// when the caller actually wants the data.
func Open(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("checkpoint: too small (%d bytes)", len(data))
	}
	header, err := decodeHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}

	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("checkpoint: missing data length")
	}
	dataLen := int(binary.LittleEndian.Uint32(data[headerSize : headerSize+4]))
	dataStart := headerSize + 4
	dataEnd := dataStart + dataLen
	if len(data) < dataEnd+footerSize {
		return nil, fmt.Errorf("checkpoint: truncated data or missing footer")
	}

	footer, err := decodeFooter(data[dataEnd : dataEnd+footerSize])
	if err != nil {
		return nil, err
	}

	return &Reader{
		header:     header,
		footer:     footer,
		compressed: data[dataStart:dataEnd],
	}, nil
}

func (r *Reader) Header() Header { return r.header }
func (r *Reader) Footer() Footer { return r.footer }

func (r *Reader) KeyCount() uint64      { return r.header.KeyCount }
func (r *Reader) TimestampMs() uint64   { return r.header.TimestampMs }
func (r *Reader) LastSegmentID() uint64 { return r.header.LastSegmentID }

func (r *Reader) decompress() ([]byte, error) {
	if r.header.Compression() == CompressionNone {
		return r.compressed, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(r.compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: zstd decode: %w", err)
	}
	return out, nil
}

// Validate decompresses the data block and checks it against the footer's
// recorded checksum and size.
func (r *Reader) Validate() error {
	uncompressed, err := r.decompress()
	if err != nil {
		return err
	}
	if actual := crc32.ChecksumIEEE(uncompressed); actual != r.footer.DataChecksum {
		return fmt.Errorf("checkpoint: data checksum mismatch: expected %d, got %d", r.footer.DataChecksum, actual)
	}
	if uint64(len(uncompressed)) != r.footer.DataSize {
		return fmt.Errorf("checkpoint: data size mismatch: expected %d, got %d", r.footer.DataSize, len(uncompressed))
	}
	return nil
}

// Load decompresses and decodes the full key-space snapshot.
func (r *Reader) Load() (State, error) {
	uncompressed, err := r.decompress()
	if err != nil {
		return nil, err
	}
	return decodeState(uncompressed)
}

func decodeState(data []byte) (State, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("checkpoint: missing record count")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	offset := 4

	state := make(State, count)
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(data) {
			return state, fmt.Errorf("checkpoint: truncated key length at record %d", i)
		}
		kLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+kLen > len(data) {
			return state, fmt.Errorf("checkpoint: truncated key at record %d", i)
		}
		key := string(data[offset : offset+kLen])
		offset += kLen

		if offset+4 > len(data) {
			return state, fmt.Errorf("checkpoint: truncated value length at record %d", i)
		}
		vLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+vLen > len(data) {
			return state, fmt.Errorf("checkpoint: truncated value at record %d", i)
		}
		value, err := wire.DecodeReplicatedValue(data[offset : offset+vLen])
		if err != nil {
			return state, fmt.Errorf("checkpoint: decode value for key %q: %w", key, err)
		}
		offset += vLen

		state[key] = value
	}
	return state, nil
}
