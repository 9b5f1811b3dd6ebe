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

// Package wire is the binary on-disk encoding for ReplicationDelta and the
// CrdtValue variants it carries. It is what internal/wal writes as entry
// payloads and internal/checkpoint writes as key snapshots, so both need a
// format that is compact and stable across the process restarts recovery
// depends on. The encoding carries no format version (see FormatVersion).
//
// Every value type encodes as: a length-prefixed sequence of fixed- and
// variable-width fields, little-endian, built directly on encoding/binary
// rather than a general-purpose serializer — the message shapes here are
// small, fixed in number, and known at compile time, so there is nothing
// for a schema-driven codec to buy that hand-rolled framing doesn't already
// give for free (see DESIGN.md).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/pkg/sds"
)

// FormatVersion is bumped whenever a field is added, removed, or reordered
// below. It is not written into the encoded bytes, and the decoders here do
// not check it.
const FormatVersion = 1

var ErrUnsupportedVersion = errors.New("wire: unsupported format version")

// byteOrder is fixed at little-endian throughout this package; every
// encode/decode pair below must agree on it.
var byteOrder = binary.LittleEndian

// EncodeDelta serializes a ReplicationDelta to its wire form.
func EncodeDelta(d crdt.ReplicationDelta) []byte {
	var buf []byte
	buf = appendString(buf, d.Key)
	buf = appendUint64(buf, d.SourceReplica)
	buf = appendReplicatedValue(buf, d.Value)
	return buf
}

// DecodeDelta parses a ReplicationDelta previously produced by EncodeDelta.
func DecodeDelta(b []byte) (crdt.ReplicationDelta, error) {
	r := &reader{buf: b}
	key, err := r.readString()
	if err != nil {
		return crdt.ReplicationDelta{}, fmt.Errorf("wire: decode delta key: %w", err)
	}
	source, err := r.readUint64()
	if err != nil {
		return crdt.ReplicationDelta{}, fmt.Errorf("wire: decode delta source: %w", err)
	}
	value, err := r.readReplicatedValue()
	if err != nil {
		return crdt.ReplicationDelta{}, fmt.Errorf("wire: decode delta value: %w", err)
	}
	if !r.exhausted() {
		return crdt.ReplicationDelta{}, fmt.Errorf("wire: decode delta: %d trailing bytes", len(r.buf)-r.pos)
	}
	return crdt.ReplicationDelta{Key: key, SourceReplica: source, Value: value}, nil
}

// EncodeReplicatedValue serializes a single ReplicatedValue, used by the
// checkpoint writer for full key snapshots (no Key/SourceReplica wrapper).
func EncodeReplicatedValue(v crdt.ReplicatedValue) []byte {
	return appendReplicatedValue(nil, v)
}

// DecodeReplicatedValue is EncodeReplicatedValue's inverse.
func DecodeReplicatedValue(b []byte) (crdt.ReplicatedValue, error) {
	r := &reader{buf: b}
	v, err := r.readReplicatedValue()
	if err != nil {
		return crdt.ReplicatedValue{}, err
	}
	if !r.exhausted() {
		return crdt.ReplicatedValue{}, fmt.Errorf("wire: decode value: %d trailing bytes", len(r.buf)-r.pos)
	}
	return v, nil
}

func appendReplicatedValue(buf []byte, v crdt.ReplicatedValue) []byte {
	buf = appendCrdtValue(buf, v.Crdt)
	buf = appendLamportClock(buf, v.Timestamp)
	buf = appendOptionalVectorClock(buf, v.VectorClock)
	buf = appendOptionalUint64(buf, v.ExpiryMs)
	buf = appendOptionalUint8(buf, v.ReplicationFactor)
	return buf
}

func (r *reader) readReplicatedValue() (crdt.ReplicatedValue, error) {
	var v crdt.ReplicatedValue
	var err error
	if v.Crdt, err = r.readCrdtValue(); err != nil {
		return v, err
	}
	if v.Timestamp, err = r.readLamportClock(); err != nil {
		return v, err
	}
	if v.VectorClock, err = r.readOptionalVectorClock(); err != nil {
		return v, err
	}
	if v.ExpiryMs, err = r.readOptionalUint64(); err != nil {
		return v, err
	}
	if v.ReplicationFactor, err = r.readOptionalUint8(); err != nil {
		return v, err
	}
	return v, nil
}

func appendCrdtValue(buf []byte, v crdt.CrdtValue) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case crdt.KindLWW:
		buf = appendLWW(buf, v.LWW)
	case crdt.KindGCounter:
		buf = appendUint64Map(buf, v.GCounterInc)
	case crdt.KindPNCounter:
		buf = appendUint64Map(buf, v.PNCounterInc)
		buf = appendUint64Map(buf, v.PNCounterDec)
	case crdt.KindGSet:
		buf = appendStringSet(buf, v.GSet)
	case crdt.KindORSet:
		buf = appendUint32(buf, uint32(len(v.ORSetAdds)))
		for _, e := range v.ORSetAdds {
			buf = appendString(buf, e.Elem)
			buf = appendUint64(buf, e.Tag)
		}
		buf = appendUint32(buf, uint32(len(v.ORSetTombs)))
		for tag := range v.ORSetTombs {
			buf = appendUint64(buf, tag)
		}
	case crdt.KindHash:
		buf = appendUint32(buf, uint32(len(v.Hash)))
		for field, reg := range v.Hash {
			buf = appendString(buf, field)
			buf = appendLWW(buf, reg)
		}
	}
	return buf
}

func (r *reader) readCrdtValue() (crdt.CrdtValue, error) {
	kindByte, err := r.readByte()
	if err != nil {
		return crdt.CrdtValue{}, fmt.Errorf("read kind: %w", err)
	}
	kind := crdt.Kind(kindByte)
	v := crdt.CrdtValue{Kind: kind}

	switch kind {
	case crdt.KindLWW:
		v.LWW, err = r.readLWW()
	case crdt.KindGCounter:
		v.GCounterInc, err = r.readUint64Map()
	case crdt.KindPNCounter:
		if v.PNCounterInc, err = r.readUint64Map(); err != nil {
			break
		}
		v.PNCounterDec, err = r.readUint64Map()
	case crdt.KindGSet:
		v.GSet, err = r.readStringSet()
	case crdt.KindORSet:
		var n uint32
		if n, err = r.readUint32(); err != nil {
			break
		}
		if n > 0 {
			v.ORSetAdds = make([]crdt.ORSetEntry, n)
		}
		for i := uint32(0); i < n && err == nil; i++ {
			var elem string
			var tag uint64
			if elem, err = r.readString(); err != nil {
				break
			}
			if tag, err = r.readUint64(); err != nil {
				break
			}
			v.ORSetAdds[i] = crdt.ORSetEntry{Elem: elem, Tag: tag}
		}
		if err != nil {
			break
		}
		var tombCount uint32
		if tombCount, err = r.readUint32(); err != nil {
			break
		}
		if tombCount > 0 {
			v.ORSetTombs = make(map[uint64]struct{}, tombCount)
		}
		for i := uint32(0); i < tombCount && err == nil; i++ {
			var tag uint64
			if tag, err = r.readUint64(); err != nil {
				break
			}
			v.ORSetTombs[tag] = struct{}{}
		}
	case crdt.KindHash:
		var n uint32
		if n, err = r.readUint32(); err != nil {
			break
		}
		if n > 0 {
			v.Hash = make(map[string]crdt.LwwRegister, n)
		}
		for i := uint32(0); i < n && err == nil; i++ {
			var field string
			if field, err = r.readString(); err != nil {
				break
			}
			var reg crdt.LwwRegister
			if reg, err = r.readLWW(); err != nil {
				break
			}
			v.Hash[field] = reg
		}
	default:
		err = fmt.Errorf("wire: unknown crdt kind %d", kindByte)
	}
	return v, err
}

func appendLWW(buf []byte, reg crdt.LwwRegister) []byte {
	var flags byte
	if reg.HasValue {
		flags |= 1
	}
	if reg.Tombstone {
		flags |= 2
	}
	buf = append(buf, flags)
	buf = appendBytes(buf, reg.Value.Bytes())
	buf = appendLamportClock(buf, reg.Timestamp)
	return buf
}

func (r *reader) readLWW() (crdt.LwwRegister, error) {
	var reg crdt.LwwRegister
	flags, err := r.readByte()
	if err != nil {
		return reg, fmt.Errorf("read lww flags: %w", err)
	}
	reg.HasValue = flags&1 != 0
	reg.Tombstone = flags&2 != 0
	raw, err := r.readBytes()
	if err != nil {
		return reg, fmt.Errorf("read lww value: %w", err)
	}
	reg.Value = sds.New(raw)
	if reg.Timestamp, err = r.readLamportClock(); err != nil {
		return reg, fmt.Errorf("read lww timestamp: %w", err)
	}
	return reg, nil
}

func appendLamportClock(buf []byte, c crdt.LamportClock) []byte {
	buf = appendUint64(buf, c.Time)
	buf = appendUint64(buf, c.ReplicaID)
	return buf
}

func (r *reader) readLamportClock() (crdt.LamportClock, error) {
	var c crdt.LamportClock
	var err error
	if c.Time, err = r.readUint64(); err != nil {
		return c, err
	}
	if c.ReplicaID, err = r.readUint64(); err != nil {
		return c, err
	}
	return c, nil
}

func appendOptionalVectorClock(buf []byte, vc *crdt.VectorClock) []byte {
	if vc == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendUint64Map(buf, vc.Entries)
}

func (r *reader) readOptionalVectorClock() (*crdt.VectorClock, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, fmt.Errorf("read vector clock presence: %w", err)
	}
	if present == 0 {
		return nil, nil
	}
	entries, err := r.readUint64Map()
	if err != nil {
		return nil, err
	}
	return &crdt.VectorClock{Entries: entries}, nil
}

func appendOptionalUint64(buf []byte, v *uint64) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendUint64(buf, *v)
}

func (r *reader) readOptionalUint64() (*uint64, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func appendOptionalUint8(buf []byte, v *uint8) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, *v)
}

func (r *reader) readOptionalUint8() (*uint8, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func appendUint64Map(buf []byte, m map[uint64]uint64) []byte {
	buf = appendUint32(buf, uint32(len(m)))
	for k, v := range m {
		buf = appendUint64(buf, k)
		buf = appendUint64(buf, v)
	}
	return buf
}

func (r *reader) readUint64Map() (map[uint64]uint64, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("read map len: %w", err)
	}
	m := make(map[uint64]uint64, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		v, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func appendStringSet(buf []byte, m map[string]struct{}) []byte {
	buf = appendUint32(buf, uint32(len(m)))
	for k := range m {
		buf = appendString(buf, k)
	}
	return buf
}

func (r *reader) readStringSet() (map[string]struct{}, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("read set len: %w", err)
	}
	m := make(map[string]struct{}, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.readString()
		if err != nil {
			return nil, err
		}
		m[k] = struct{}{}
	}
	return m, nil
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	byteOrder.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	byteOrder.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// reader walks a []byte left to right, erroring on short reads instead of
// panicking — decode paths see this data straight from disk (WAL/segment/
// checkpoint files), which a crash can truncate or corrupt at any offset.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) exhausted() bool { return r.pos == len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := byteOrder.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) readUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := byteOrder.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
