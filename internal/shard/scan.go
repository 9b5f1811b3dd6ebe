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

package shard

import (
	"strconv"

	"github.com/etalazz/rkv/internal/executor"
)

// execScan generalizes spec §4.1's single-shard SCAN ("cursor is an
// offset; 0 means exhausted") to N shards: the cursor this layer hands
// back packs the target shard index into the high 32 bits and that
// shard's own offset cursor into the low 32 bits. A caller paging through
// a full keyspace scan sees cursor 0 only once every shard has reported
// exhaustion, the same externally-visible contract a single shard gives,
// just stretched across the store.
func (st *Store) execScan(cmd executor.Command) executor.RespValue {
	if len(cmd.Args) < 1 {
		return executor.Err(executor.ErrSyntax)
	}
	raw, err := strconv.ParseInt(cmd.Args[0], 10, 64)
	if err != nil || raw < 0 {
		return executor.Err(executor.ErrNotAnInteger)
	}
	shardIdx := int(uint64(raw) >> 32)
	innerCursor := int(uint64(raw) & 0xFFFFFFFF)
	if shardIdx >= len(st.slots) {
		return executor.Err(executor.ErrSyntax)
	}

	innerArgs := append([]string{strconv.Itoa(innerCursor)}, cmd.Args[1:]...)

	st.RLockShard(shardIdx)
	reply := st.slots[shardIdx].shard.Execute(executor.NewCommand("SCAN", innerArgs...))
	st.RUnlockShard(shardIdx)

	nextInner := reply.Array[0].Int
	keys := reply.Array[1]

	if nextInner != 0 {
		return executor.Array(executor.Int(packCursor(shardIdx, nextInner)), keys)
	}
	if shardIdx+1 < len(st.slots) {
		return executor.Array(executor.Int(packCursor(shardIdx+1, 0)), keys)
	}
	return executor.Array(executor.Int(0), keys)
}

func packCursor(shardIdx int, inner int64) int64 {
	return int64(uint64(shardIdx)<<32 | uint64(inner))
}
