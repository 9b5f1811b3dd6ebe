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
	"path"
	"strconv"

	"github.com/etalazz/rkv/internal/datatypes"
)

func (s *Shard) cmdDel(args []string) RespValue {
	var n int64
	for _, key := range args {
		if s.get(key) != nil {
			s.deleteKey(key)
			s.replica.Forget(key)
			n++
		}
	}
	return Int(n)
}

func (s *Shard) cmdExists(args []string) RespValue {
	var n int64
	for _, key := range args {
		if s.get(key) != nil {
			n++
		}
	}
	return Int(n)
}

// cmdExpire, cmdExpireAt, cmdPExpireAt: non-positive expire deletes the
// key immediately (spec §4.1).
func (s *Shard) cmdExpire(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	seconds, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return Err(ErrNotAnInteger)
	}
	return s.setExpiryAt(args[0], s.now()+uint64(seconds)*1000, seconds <= 0)
}

func (s *Shard) cmdExpireAt(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	atSeconds, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return Err(ErrNotAnInteger)
	}
	nonPositive := uint64(atSeconds)*1000 <= s.now()
	return s.setExpiryAt(args[0], uint64(atSeconds)*1000, nonPositive)
}

func (s *Shard) cmdPExpireAt(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	atMs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return Err(ErrNotAnInteger)
	}
	nonPositive := uint64(atMs) <= s.now()
	return s.setExpiryAt(args[0], uint64(atMs), nonPositive)
}

func (s *Shard) setExpiryAt(key string, atMs uint64, deleteNow bool) RespValue {
	if s.get(key) == nil {
		return Int(0)
	}
	if deleteNow {
		s.deleteKey(key)
		s.replica.Forget(key)
		return Int(1)
	}
	s.expirations[key] = atMs
	s.touch(key)
	return Int(1)
}

// cmdTTL returns -2 if absent, -1 if no TTL, else remaining seconds
// (spec §4.1).
func (s *Shard) cmdTTL(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	if s.get(key) == nil {
		return Int(-2)
	}
	exp, ok := s.expirations[key]
	if !ok {
		return Int(-1)
	}
	remainingMs := int64(exp) - int64(s.now())
	if remainingMs < 0 {
		remainingMs = 0
	}
	return Int(remainingMs / 1000)
}

func (s *Shard) cmdType(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v := s.get(args[0])
	if v == nil {
		return Simple("none")
	}
	return Simple(v.Kind.String())
}

// cmdKeys returns every live key in this shard matching pattern, using
// path.Match's glob syntax as a stand-in for Redis's own globbing ("*"
// matches everything including no-pattern callers that pass it literally).
// KEYS is one of the multi-key operations spec §4.2 fans out read-locks
// across every shard for; this method only ever sees its own shard's
// slice of the keyspace.
func (s *Shard) cmdKeys(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	pattern := args[0]
	out := make([]RespValue, 0)
	for k := range s.data {
		s.expireIfNeeded(k)
		if _, ok := s.data[k]; !ok {
			continue
		}
		matched := pattern == "*"
		if !matched {
			var merr error
			matched, merr = path.Match(pattern, k)
			if merr != nil {
				return Err(ErrSyntax)
			}
		}
		if matched {
			out = append(out, Bulk(k))
		}
	}
	return Array(out...)
}

// cmdFlushDB clears this shard's entire keyspace and replicated CRDT
// state. FLUSHDB and FLUSHALL have identical per-shard semantics here
// (there is exactly one keyspace per shard, not the multi-database
// layout real Redis supports) — the shard layer takes a write lock on
// every shard before calling this (spec §4.2).
func (s *Shard) cmdFlushDB(args []string) RespValue {
	if len(args) != 0 {
		return Err(ErrSyntax)
	}
	for k := range s.data {
		s.replica.Forget(k)
	}
	s.data = make(map[string]*datatypes.Value)
	s.expirations = make(map[string]uint64)
	s.accessTimes = make(map[string]uint64)
	// Generations are bumped, not reset: a connection that WATCHed a key
	// before the flush must still see EXEC abort if that key is recreated
	// afterward, which a zeroed generation counter would not guarantee.
	for k := range s.generations {
		s.generations[k]++
	}
	return Simple("OK")
}
