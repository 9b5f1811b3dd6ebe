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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/crdt"
)

func testValue(n uint64) crdt.ReplicatedValue {
	return crdt.ReplicatedValue{
		Crdt: crdt.CrdtValue{
			Kind:        crdt.KindGCounter,
			GCounterInc: map[uint64]uint64{1: n},
		},
		Timestamp: crdt.LamportClock{Time: n, ReplicaID: 1},
	}
}

func TestCheckpointRoundTripUncompressed(t *testing.T) {
	state := State{
		"a": testValue(1),
		"b": testValue(2),
		"c": testValue(3),
	}
	w := NewWriter(CompressionNone)
	data, err := w.Write(state, 1_700_000_000_000, 42)
	require.NoError(t, err)

	r, err := Open(data)
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	assert.Equal(t, uint64(3), r.KeyCount())
	assert.Equal(t, uint64(1_700_000_000_000), r.TimestampMs())
	assert.Equal(t, uint64(42), r.LastSegmentID())
	assert.Equal(t, CompressionNone, r.Header().Compression())

	loaded, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.Equal(t, uint64(1), loaded["a"].Crdt.GCounterInc[1])
	assert.Equal(t, uint64(2), loaded["b"].Crdt.GCounterInc[1])
}

func TestCheckpointRoundTripZstd(t *testing.T) {
	state := make(State, 200)
	for i := 0; i < 200; i++ {
		state[fmt.Sprintf("key-%d", i)] = testValue(uint64(i))
	}
	w := NewWriter(CompressionZstd)
	data, err := w.Write(state, 1, 1)
	require.NoError(t, err)

	r, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, r.Header().Compression())
	require.NoError(t, r.Validate())

	loaded, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 200)
}

func TestCheckpointEmptyState(t *testing.T) {
	w := NewWriter(CompressionNone)
	data, err := w.Write(State{}, 1, 0)
	require.NoError(t, err)

	r, err := Open(data)
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	assert.Equal(t, uint64(0), r.KeyCount())

	loaded, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestCheckpointInvalidMagic(t *testing.T) {
	w := NewWriter(CompressionNone)
	data, err := w.Write(State{"a": testValue(1)}, 1, 1)
	require.NoError(t, err)

	data[0] = 'X'
	_, err = Open(data)
	assert.Error(t, err)
}

func TestCheckpointHeaderChecksumMismatch(t *testing.T) {
	w := NewWriter(CompressionNone)
	data, err := w.Write(State{"a": testValue(1)}, 1, 1)
	require.NoError(t, err)

	data[44] ^= 0xFF
	_, err = Open(data)
	assert.Error(t, err)
}

func TestCheckpointDataChecksumMismatch(t *testing.T) {
	w := NewWriter(CompressionNone)
	data, err := w.Write(State{"a": testValue(1), "b": testValue(2)}, 1, 1)
	require.NoError(t, err)

	data[headerSize+4+1] ^= 0xFF

	r, err := Open(data)
	require.NoError(t, err)
	assert.Error(t, r.Validate())
}

func TestCheckpointFooterChecksumMismatch(t *testing.T) {
	w := NewWriter(CompressionNone)
	data, err := w.Write(State{"a": testValue(1)}, 1, 1)
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF
	_, err = Open(data)
	assert.Error(t, err)
}

func TestCheckpointTooSmall(t *testing.T) {
	_, err := Open(make([]byte, 5))
	assert.Error(t, err)
}

func TestHeaderFooterSerialization(t *testing.T) {
	h := newHeader(10, 123456, 7, CompressionZstd)
	decoded, err := decodeHeader(h.encode())
	require.NoError(t, err)
	assert.Equal(t, h, decoded)

	f := newFooter(999, 4096)
	fDecoded, err := decodeFooter(f.encode())
	require.NoError(t, err)
	assert.Equal(t, f, fDecoded)
}
