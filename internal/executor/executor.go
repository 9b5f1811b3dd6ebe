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
	"github.com/etalazz/rkv/internal/datatypes"
	"github.com/etalazz/rkv/internal/replica"
)

// Clock returns the current time in milliseconds. Production wiring uses
// wall-clock time; DST harnesses inject a controllable fake so
// expiry/TTL behavior stays reproducible (spec §4.1: "Absolute timestamps
// are interpreted against a fixed simulation-epoch to preserve
// determinism").
type Clock func() uint64

// Shard is the single-threaded mutator over one shard's keyspace (spec
// §4.1). Every exported method assumes the caller already holds whatever
// external lock the owning internal/shard.Store uses to serialize access
// — Shard itself does not lock, matching "single-threaded executor,
// protected from outside by a reader-writer lock" (spec §5 Concurrency
// Model). Shard holds only keyspace state shared across every connection;
// MULTI/WATCH state is per-connection and lives in Session instead (spec
// §7: two clients against the same keyspace must not share transaction
// state).
type Shard struct {
	data        map[string]*datatypes.Value
	expirations map[string]uint64 // key -> expiry time in ms, lazily checked
	accessTimes map[string]uint64
	generations map[string]uint64 // bumped on every write that touches a key; backs WATCH

	replica *replica.State
	now     Clock
}

// New returns an empty shard keyspace backed by repl for CRDT
// replication bookkeeping, using clock for expiry/TTL computations.
func New(repl *replica.State, clock Clock) *Shard {
	return &Shard{
		data:        make(map[string]*datatypes.Value),
		expirations: make(map[string]uint64),
		accessTimes: make(map[string]uint64),
		generations: make(map[string]uint64),
		replica:     repl,
		now:         clock,
	}
}

// touch bumps key's write generation (used by WATCH/EXEC) and records an
// access time.
func (s *Shard) touch(key string) {
	s.generations[key]++
	s.accessTimes[key] = s.now()
}

// expireIfNeeded is the lazy expiry check of spec §4.1's state machine:
// Live -> Expired when now >= expirations[key]. Observing Expired removes
// the key from data/expirations/access_times atomically and bumps its
// write generation.
func (s *Shard) expireIfNeeded(key string) {
	exp, hasExpiry := s.expirations[key]
	if !hasExpiry {
		return
	}
	if s.now() >= exp {
		delete(s.data, key)
		delete(s.expirations, key)
		delete(s.accessTimes, key)
		s.generations[key]++
	}
}

// get returns the live value for key, or nil if absent/expired.
func (s *Shard) get(key string) *datatypes.Value {
	s.expireIfNeeded(key)
	return s.data[key]
}

// getOrCreate returns the live value for key, creating it via zero if
// absent, and marks the key as touched.
func (s *Shard) getOrCreate(key string, zero func() datatypes.Value) *datatypes.Value {
	s.expireIfNeeded(key)
	v, ok := s.data[key]
	if !ok {
		nv := zero()
		v = &nv
		s.data[key] = v
	}
	return v
}

// deleteKey removes key entirely (DEL, auto-delete on empty collections,
// expiry). Returns true if the key had been present.
func (s *Shard) deleteKey(key string) bool {
	_, existed := s.data[key]
	delete(s.data, key)
	delete(s.expirations, key)
	delete(s.accessTimes, key)
	s.touch(key)
	return existed
}

// ReplicaState exposes this shard's replica.State for callers outside
// the package (metrics collection, WAL draining, checkpoint snapshotting)
// that need to observe or drain replication bookkeeping directly.
func (s *Shard) ReplicaState() *replica.State { return s.replica }

// Generation returns key's current write-generation counter, checking
// lazy expiry first. Exported for the shard-routing layer's own
// WATCH/EXEC bookkeeping (internal/shard.Session), which compares
// generations directly against a *Shard rather than going through this
// package's Session type — a sharded transaction is pinned to exactly
// one shard, so the routing layer needs read access to that one shard's
// generations without introducing a second layer of per-connection state.
func (s *Shard) Generation(key string) uint64 {
	s.expireIfNeeded(key)
	return s.generations[key]
}

// Execute interprets cmd directly against the shard's keyspace, with no
// transaction semantics: MULTI/EXEC/DISCARD/WATCH/UNWATCH are rejected
// here since they are meaningless without connection-scoped state.
// Connections drive a Session instead (see session.go).
func (s *Shard) Execute(cmd Command) RespValue {
	return s.dispatch(cmd)
}

// dispatch runs a single command immediately, outside of any queuing
// decision; EXEC uses this directly to replay queued_commands.
func (s *Shard) dispatch(cmd Command) RespValue {
	switch cmd.Name {
	// String ops
	case "GET":
		return s.cmdGet(cmd.Args)
	case "SET":
		return s.cmdSet(cmd.Args)
	case "APPEND":
		return s.cmdAppend(cmd.Args)
	case "GETSET":
		return s.cmdGetSet(cmd.Args)
	case "STRLEN":
		return s.cmdStrlen(cmd.Args)
	case "MGET":
		return s.cmdMGet(cmd.Args)
	case "MSET":
		return s.cmdMSet(cmd.Args)
	case "MSETNX":
		return s.cmdMSetNX(cmd.Args)
	case "SETNX":
		return s.cmdSetNX(cmd.Args)
	case "GETRANGE":
		return s.cmdGetRange(cmd.Args)
	case "SETRANGE":
		return s.cmdSetRange(cmd.Args)
	case "GETEX":
		return s.cmdGetEx(cmd.Args)
	case "GETDEL":
		return s.cmdGetDel(cmd.Args)
	case "INCR":
		return s.cmdIncrBy(cmd.Args, 1)
	case "DECR":
		return s.cmdIncrBy(cmd.Args, -1)
	case "INCRBY":
		return s.cmdIncrByArg(cmd.Args, 1)
	case "DECRBY":
		return s.cmdIncrByArg(cmd.Args, -1)
	case "INCRBYFLOAT":
		return s.cmdIncrByFloat(cmd.Args)

	// List ops
	case "LPUSH":
		return s.cmdPush(cmd.Args, true)
	case "RPUSH":
		return s.cmdPush(cmd.Args, false)
	case "LPOP":
		return s.cmdPop(cmd.Args, true)
	case "RPOP":
		return s.cmdPop(cmd.Args, false)
	case "LLEN":
		return s.cmdLLen(cmd.Args)
	case "LINDEX":
		return s.cmdLIndex(cmd.Args)
	case "LRANGE":
		return s.cmdLRange(cmd.Args)
	case "LSET":
		return s.cmdLSet(cmd.Args)
	case "LTRIM":
		return s.cmdLTrim(cmd.Args)
	case "RPOPLPUSH":
		return s.cmdRPopLPush(cmd.Args)
	case "LMOVE":
		return s.cmdLMove(cmd.Args)

	// Hash ops
	case "HSET":
		return s.cmdHSet(cmd.Args)
	case "HGET":
		return s.cmdHGet(cmd.Args)
	case "HDEL":
		return s.cmdHDel(cmd.Args)
	case "HGETALL":
		return s.cmdHGetAll(cmd.Args)
	case "HINCRBY":
		return s.cmdHIncrBy(cmd.Args)
	case "HLEN":
		return s.cmdHLen(cmd.Args)
	case "HEXISTS":
		return s.cmdHExists(cmd.Args)

	// Set ops
	case "SADD":
		return s.cmdSAdd(cmd.Args)
	case "SREM":
		return s.cmdSRem(cmd.Args)
	case "SMEMBERS":
		return s.cmdSMembers(cmd.Args)
	case "SISMEMBER":
		return s.cmdSIsMember(cmd.Args)
	case "SPOP":
		return s.cmdSPop(cmd.Args)
	case "SCARD":
		return s.cmdSCard(cmd.Args)

	// SortedSet ops
	case "ZADD":
		return s.cmdZAdd(cmd.Args)
	case "ZSCORE":
		return s.cmdZScore(cmd.Args)
	case "ZREM":
		return s.cmdZRem(cmd.Args)
	case "ZRANK":
		return s.cmdZRank(cmd.Args)
	case "ZRANGE":
		return s.cmdZRange(cmd.Args)
	case "ZRANGEBYSCORE":
		return s.cmdZRangeByScore(cmd.Args)
	case "ZCARD":
		return s.cmdZCard(cmd.Args)

	// Key ops
	case "DEL":
		return s.cmdDel(cmd.Args)
	case "EXISTS":
		return s.cmdExists(cmd.Args)
	case "EXPIRE":
		return s.cmdExpire(cmd.Args)
	case "EXPIREAT":
		return s.cmdExpireAt(cmd.Args)
	case "PEXPIREAT":
		return s.cmdPExpireAt(cmd.Args)
	case "TTL":
		return s.cmdTTL(cmd.Args)
	case "TYPE":
		return s.cmdType(cmd.Args)
	case "KEYS":
		return s.cmdKeys(cmd.Args)
	case "FLUSHDB":
		return s.cmdFlushDB(cmd.Args)
	case "FLUSHALL":
		return s.cmdFlushDB(cmd.Args)

	// Scan ops
	case "SCAN":
		return s.cmdScan(cmd.Args)
	case "HSCAN":
		return s.cmdHScan(cmd.Args)
	case "ZSCAN":
		return s.cmdZScan(cmd.Args)

	// Bitmap
	case "SETBIT":
		return s.cmdSetBit(cmd.Args)
	case "GETBIT":
		return s.cmdGetBit(cmd.Args)

	default:
		return Err(ErrSyntax)
	}
}
