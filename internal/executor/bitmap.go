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

package executor

import (
	"strconv"

	"github.com/etalazz/rkv/internal/datatypes"
	"github.com/etalazz/rkv/pkg/sds"
)

// maxBitOffset is 2^32 bits, per spec §4.1.
const maxBitOffset = uint64(1) << 32

// cmdSetBit treats bit 0 as the MSB of byte 0 and auto-grows the string
// (spec §4.1).
func (s *Shard) cmdSetBit(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	key := args[0]
	offset, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || offset >= maxBitOffset {
		return Err(ErrOffsetOutOfRange)
	}
	bit, err := strconv.Atoi(args[2])
	if err != nil || (bit != 0 && bit != 1) {
		return Err(ErrSyntax)
	}

	v := s.get(key)
	var buf []byte
	if v != nil {
		if err := v.CheckType(datatypes.KindString); err != nil {
			return Err(err)
		}
		buf = append([]byte(nil), v.Str.Bytes()...)
	}

	byteIdx := offset / 8
	bitIdx := offset % 8
	neededLen := int(byteIdx) + 1
	if len(buf) < neededLen {
		grown := make([]byte, neededLen)
		copy(grown, buf)
		buf = grown
	}

	mask := byte(1) << (7 - bitIdx)
	oldBit := 0
	if buf[byteIdx]&mask != 0 {
		oldBit = 1
	}
	if bit == 1 {
		buf[byteIdx] |= mask
	} else {
		buf[byteIdx] &^= mask
	}

	s.setString(key, sds.New(buf))
	return Int(int64(oldBit))
}

func (s *Shard) cmdGetBit(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v := s.get(args[0])
	offset, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || offset >= maxBitOffset {
		return Err(ErrOffsetOutOfRange)
	}
	if v == nil {
		return Int(0)
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	b := v.Str.Bytes()
	byteIdx := offset / 8
	if int(byteIdx) >= len(b) {
		return Int(0)
	}
	bitIdx := offset % 8
	mask := byte(1) << (7 - bitIdx)
	if b[byteIdx]&mask != 0 {
		return Int(1)
	}
	return Int(0)
}
