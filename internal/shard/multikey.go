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

import "github.com/etalazz/rkv/internal/executor"

// execMultiKey fans a multi-key command out across the shards its keys
// land on, gathers each shard's partial reply, and recombines them in the
// original key order (spec §4.2).
func (st *Store) execMultiKey(cmd executor.Command) executor.RespValue {
	switch cmd.Name {
	case "MGET":
		return st.execMGet(cmd.Args)
	case "EXISTS":
		return st.execExistsOrDel(cmd.Args, false)
	case "DEL":
		return st.execExistsOrDel(cmd.Args, true)
	case "KEYS":
		return st.execKeys(cmd.Args)
	case "MSET":
		return st.execMSet(cmd.Args)
	case "MSETNX":
		return st.execMSetNX(cmd.Args)
	default:
		return executor.Err(executor.ErrSyntax)
	}
}

// groupByShard buckets keys by destination shard index, preserving each
// key's original position so results can be recombined in request order.
func (st *Store) groupByShard(keys []string) map[int][]int {
	groups := make(map[int][]int)
	for pos, k := range keys {
		idx := st.Index(k)
		groups[idx] = append(groups[idx], pos)
	}
	return groups
}

func (st *Store) execMGet(keys []string) executor.RespValue {
	out := make([]executor.RespValue, len(keys))
	for idx, positions := range st.groupByShard(keys) {
		shardKeys := make([]string, len(positions))
		for i, pos := range positions {
			shardKeys[i] = keys[pos]
		}
		st.RLockShard(idx)
		reply := st.slots[idx].shard.Execute(executor.NewCommand("MGET", shardKeys...))
		st.RUnlockShard(idx)
		for i, pos := range positions {
			out[pos] = reply.Array[i]
		}
	}
	return executor.Array(out...)
}

// execExistsOrDel implements both EXISTS and DEL: both simply sum a
// per-shard integer count across every shard touched. del selects DEL's
// write-lock/mutating path over EXISTS's read-lock/counting one.
func (st *Store) execExistsOrDel(keys []string, del bool) executor.RespValue {
	var total int64
	name := "EXISTS"
	if del {
		name = "DEL"
	}
	for idx, positions := range st.groupByShard(keys) {
		shardKeys := make([]string, len(positions))
		for i, pos := range positions {
			shardKeys[i] = keys[pos]
		}
		if del {
			st.LockShard(idx)
		} else {
			st.RLockShard(idx)
		}
		reply := st.slots[idx].shard.Execute(executor.NewCommand(name, shardKeys...))
		if del {
			st.UnlockShard(idx)
		} else {
			st.RUnlockShard(idx)
		}
		total += reply.Int
	}
	return executor.Int(total)
}

// execKeys fans KEYS's glob pattern out to every shard and concatenates
// the matches; order across shards is not meaningful (spec makes no
// ordering guarantee for KEYS).
func (st *Store) execKeys(args []string) executor.RespValue {
	var out []executor.RespValue
	for i := range st.slots {
		st.RLockShard(i)
		reply := st.slots[i].shard.Execute(executor.NewCommand("KEYS", args...))
		st.RUnlockShard(i)
		if reply.IsError() {
			return reply
		}
		out = append(out, reply.Array...)
	}
	return executor.Array(out...)
}

func (st *Store) execMSet(args []string) executor.RespValue {
	if len(args) == 0 || len(args)%2 != 0 {
		return executor.Err(executor.ErrSyntax)
	}
	groups := make(map[int][]string)
	for i := 0; i < len(args); i += 2 {
		idx := st.Index(args[i])
		groups[idx] = append(groups[idx], args[i], args[i+1])
	}
	for idx, pairs := range groups {
		st.LockShard(idx)
		st.slots[idx].shard.Execute(executor.NewCommand("MSET", pairs...))
		st.UnlockShard(idx)
	}
	return executor.Simple("OK")
}

// execMSetNX is a best-effort, two-phase MSETNX across shards: it checks
// that none of the target keys exist anywhere, then sets all of them.
// Unlike single-shard MSETNX (atomic within one executor.Shard, since the
// check and the set happen under the same lock acquisition), this cannot
// be made atomic across shards without a distributed transaction
// coordinator, which spec's concurrency model (§5) does not describe. A
// key could in principle be created by a concurrent write between the
// check phase and the set phase; this is a documented, accepted
// limitation rather than an attempt at cross-shard two-phase commit.
func (st *Store) execMSetNX(args []string) executor.RespValue {
	if len(args) == 0 || len(args)%2 != 0 {
		return executor.Err(executor.ErrSyntax)
	}
	groups := make(map[int][]string)
	keysByShard := make(map[int][]string)
	for i := 0; i < len(args); i += 2 {
		idx := st.Index(args[i])
		groups[idx] = append(groups[idx], args[i], args[i+1])
		keysByShard[idx] = append(keysByShard[idx], args[i])
	}

	var anyExists bool
	for idx, keys := range keysByShard {
		st.RLockShard(idx)
		reply := st.slots[idx].shard.Execute(executor.NewCommand("EXISTS", keys...))
		st.RUnlockShard(idx)
		if reply.Int > 0 {
			anyExists = true
		}
	}
	if anyExists {
		return executor.Int(0)
	}

	for idx, pairs := range groups {
		st.LockShard(idx)
		st.slots[idx].shard.Execute(executor.NewCommand("MSET", pairs...))
		st.UnlockShard(idx)
	}
	return executor.Int(1)
}
