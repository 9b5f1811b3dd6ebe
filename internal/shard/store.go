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

// Package shard implements the sharded-state layer of spec §4.2: N
// independent executor.Shard keyspaces, each guarded by its own
// reader-writer lock, with keys routed to a shard by a deterministic
// 64-bit hash mod N. Single-key commands lock exactly one shard;
// multi-key commands (MGET, MSET, MSETNX, EXISTS, DEL) run on each shard
// their keys land on, KEYS runs on every shard, and results are gathered;
// FLUSHDB/FLUSHALL take every shard's write
// lock; PING/INFO touch no shard at all.
package shard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/etalazz/rkv/internal/executor"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/replica"
)

// readOnlyCommands never mutate shard state. The routing layer takes a
// shared read lock for these instead of a shard's exclusive write lock,
// matching spec §5's "single-threaded executor... protected by a
// reader-writer lock; only one writer at a time, reads may share."
var readOnlyCommands = map[string]bool{
	"GET": true, "STRLEN": true, "EXISTS": true, "TTL": true, "TYPE": true,
	"LLEN": true, "LINDEX": true, "LRANGE": true,
	"HGET": true, "HGETALL": true, "HLEN": true, "HEXISTS": true,
	"SMEMBERS": true, "SISMEMBER": true, "SCARD": true,
	"ZSCORE": true, "ZRANK": true, "ZRANGE": true, "ZRANGEBYSCORE": true,
	"ZCARD": true, "GETBIT": true,
}

// multiKeyCommands are not routed to a single shard: KEYS runs on every
// shard, and the others run on each shard their keys land on (spec §4.2:
// "MGET, MSET, EXISTS, KEYS"). DEL is included too: a DEL naming keys on
// different shards still has to delete each of them.
var multiKeyCommands = map[string]bool{
	"MGET": true, "MSET": true, "MSETNX": true, "EXISTS": true,
	"KEYS": true, "DEL": true,
}

// allShardCommands touch every shard but take no key argument.
var allShardCommands = map[string]bool{
	"FLUSHDB": true, "FLUSHALL": true,
}

// noKeyCommands need no shard routing at all (spec §4.2: "PING and INFO
// are global no-key operations").
var noKeyCommands = map[string]bool{
	"PING": true, "INFO": true,
}

// lockedShard pairs one executor.Shard with the reader-writer lock that
// serializes access to it, per spec §5's concurrency model.
type lockedShard struct {
	mu    sync.RWMutex
	shard *executor.Shard
}

// Store is the N-way sharded keyspace: spec §4.2's "Sharded state"
// module. It owns no keyspace data itself; each shard's executor.Shard
// does, reachable only while that shard's lock is held.
type Store struct {
	slots []*lockedShard
}

// New builds a Store of shardCount independent shards. Replica IDs are
// assigned baseReplicaID, baseReplicaID+1, ... so every shard's CRDT
// state stamps writes with a distinct identity (spec §3's
// ShardReplicaState is explicitly per-shard, not per-node).
func New(shardCount int, baseReplicaID uint64, level replica.ConsistencyLevel, clock executor.Clock) *Store {
	if shardCount < 1 {
		shardCount = 1
	}
	slots := make([]*lockedShard, shardCount)
	for i := range slots {
		repl := replica.New(baseReplicaID+uint64(i), level)
		slots[i] = &lockedShard{shard: executor.New(repl, clock)}
	}
	return &Store{slots: slots}
}

// ShardCount reports N.
func (st *Store) ShardCount() int { return len(st.slots) }

// Index returns the deterministic shard a key routes to (spec §4.2:
// "deterministic 64-bit hash mod N").
func (st *Store) Index(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(st.slots)))
}

// ShardAt exposes shard i's raw executor.Shard. Callers that use this
// directly (rather than through Execute) are responsible for holding the
// matching lock via LockShard/RLockShard themselves; Session does this
// for transaction replay.
func (st *Store) ShardAt(i int) *executor.Shard { return st.slots[i].shard }

func (st *Store) LockShard(i int)    { st.slots[i].mu.Lock() }
func (st *Store) UnlockShard(i int)  { st.slots[i].mu.Unlock() }
func (st *Store) RLockShard(i int)   { st.slots[i].mu.RLock() }
func (st *Store) RUnlockShard(i int) { st.slots[i].mu.RUnlock() }

// Execute routes a single, non-transactional command per spec §4.2.
func (st *Store) Execute(cmd executor.Command) executor.RespValue {
	start := time.Now()
	result := st.dispatch(cmd)

	outcome := "ok"
	if result.IsError() {
		outcome = "error"
	}
	metrics.ObserveCommand(cmd.Name, outcome, time.Since(start))

	return result
}

func (st *Store) dispatch(cmd executor.Command) executor.RespValue {
	switch {
	case noKeyCommands[cmd.Name]:
		return st.execGlobal(cmd)
	case allShardCommands[cmd.Name]:
		return st.execAllShards(cmd)
	case cmd.Name == "SCAN":
		return st.execScan(cmd)
	case multiKeyCommands[cmd.Name]:
		return st.execMultiKey(cmd)
	default:
		return st.execSingleKey(cmd)
	}
}

func (st *Store) execSingleKey(cmd executor.Command) executor.RespValue {
	if len(cmd.Args) == 0 {
		return executor.Err(executor.ErrSyntax)
	}
	idx := st.Index(cmd.Args[0])
	if readOnlyCommands[cmd.Name] {
		st.RLockShard(idx)
		defer st.RUnlockShard(idx)
	} else {
		st.LockShard(idx)
		defer st.UnlockShard(idx)
	}
	return st.slots[idx].shard.Execute(cmd)
}

// execGlobal answers PING/INFO without touching any shard's lock.
func (st *Store) execGlobal(cmd executor.Command) executor.RespValue {
	switch cmd.Name {
	case "PING":
		if len(cmd.Args) > 0 {
			return executor.Bulk(cmd.Args[0])
		}
		return executor.Simple("PONG")
	case "INFO":
		return executor.Bulk(st.info())
	default:
		return executor.Err(executor.ErrSyntax)
	}
}

func (st *Store) info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\nshard_count:%d\r\n", len(st.slots))
	fmt.Fprintf(&b, "# Replication\r\n")
	for i, slot := range st.slots {
		st.RLockShard(i)
		pending := slot.shard.ReplicaState().PendingCount()
		keys := slot.shard.ReplicaState().KeyCount()
		st.RUnlockShard(i)
		fmt.Fprintf(&b, "shard%d_replicated_keys:%d\r\nshard%d_pending_deltas:%d\r\n", i, keys, i, pending)
	}
	return b.String()
}

// execAllShards runs FLUSHDB/FLUSHALL across every shard under its write
// lock (spec §4.2: "FLUSHDB/FLUSHALL iterate shards with write locks").
func (st *Store) execAllShards(cmd executor.Command) executor.RespValue {
	for i, slot := range st.slots {
		st.LockShard(i)
		reply := slot.shard.Execute(cmd)
		st.UnlockShard(i)
		if reply.IsError() {
			return reply
		}
	}
	return executor.Simple("OK")
}
