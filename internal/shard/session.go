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
	"errors"

	"github.com/etalazz/rkv/internal/executor"
)

// ErrCrossShardTransaction is returned when a transaction's WATCHed or
// queued keys hash to more than one shard. The single-threaded executor
// behind each shard (spec §5) gives no cross-shard atomicity, so rather
// than silently running part of a transaction non-atomically, a Session
// rejects it outright — the same stance Redis Cluster takes with
// CROSSSLOT for multi-key requests spanning hash slots.
var ErrCrossShardTransaction = errors.New("CROSSSHARD keys in request don't hash to the same shard")

// errWholeStoreInTransaction is returned for commands (KEYS, FLUSHDB,
// FLUSHALL, PING, INFO) that touch every shard or none, which cannot be
// reconciled with a transaction pinned to a single shard.
var errWholeStoreInTransaction = errors.New("ERR command not supported inside a sharded transaction")

// Session is one client connection's transactional view over a Store. It
// is the sharded analog of executor.Session, generalized per spec §4.2:
// since a transaction can only ever be serialized against one shard's
// single-threaded executor, a Session pins itself to the first shard its
// WATCHed or queued keys name and rejects anything that would span a
// second shard.
type Session struct {
	store *Store

	inTransaction bool
	queued        []executor.Command
	txErrored     bool

	pinned      bool
	pinnedShard int

	watched map[string]uint64
}

// NewSession opens a connection-scoped transactional view over store.
func NewSession(store *Store) *Session {
	return &Session{store: store, watched: make(map[string]uint64)}
}

// Execute interprets cmd against the session. Standalone commands (no
// open transaction, not WATCH/UNWATCH) are simply routed through the
// underlying Store exactly like a direct Store.Execute call.
func (cs *Session) Execute(cmd executor.Command) executor.RespValue {
	switch cmd.Name {
	case "MULTI":
		return cs.execMulti()
	case "DISCARD":
		return cs.execDiscard()
	case "EXEC":
		return cs.execExec()
	case "WATCH":
		return cs.execWatch(cmd.Args)
	case "UNWATCH":
		cs.watched = make(map[string]uint64)
		return executor.Simple("OK")
	}

	if !cs.inTransaction {
		return cs.store.Execute(cmd)
	}

	if !executor.IsKnownCommand(cmd.Name) {
		cs.txErrored = true
		return executor.Err(executor.ErrSyntax)
	}

	keys, err := commandKeys(cmd)
	if err != nil {
		cs.txErrored = true
		return executor.Err(err)
	}
	if err := cs.pin(keys); err != nil {
		cs.txErrored = true
		return executor.Err(err)
	}

	cs.queued = append(cs.queued, cmd)
	return executor.Simple("QUEUED")
}

// commandKeys extracts the key arguments cmd touches, for pinning
// purposes. Commands that inherently span (or need) no single shard are
// rejected inside a transaction rather than guessed at.
func commandKeys(cmd executor.Command) ([]string, error) {
	switch cmd.Name {
	case "KEYS", "FLUSHDB", "FLUSHALL", "PING", "INFO":
		return nil, errWholeStoreInTransaction
	case "MSET", "MSETNX":
		keys := make([]string, 0, len(cmd.Args)/2)
		for i := 0; i+1 < len(cmd.Args); i += 2 {
			keys = append(keys, cmd.Args[i])
		}
		return keys, nil
	case "MGET", "EXISTS", "DEL":
		return cmd.Args, nil
	default:
		if len(cmd.Args) == 0 {
			return nil, nil
		}
		return cmd.Args[:1], nil
	}
}

// pin records (or checks) which shard this transaction is bound to.
// Commands with no key argument (MULTI itself, a bare EXEC) leave the
// pin untouched.
func (cs *Session) pin(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	idx := cs.store.Index(keys[0])
	for _, k := range keys[1:] {
		if cs.store.Index(k) != idx {
			return ErrCrossShardTransaction
		}
	}
	if cs.pinned && idx != cs.pinnedShard {
		return ErrCrossShardTransaction
	}
	cs.pinnedShard = idx
	cs.pinned = true
	return nil
}

func (cs *Session) execMulti() executor.RespValue {
	if cs.inTransaction {
		return executor.Err(executor.ErrMultiNested)
	}
	cs.inTransaction = true
	cs.queued = nil
	cs.txErrored = false
	return executor.Simple("OK")
}

func (cs *Session) execDiscard() executor.RespValue {
	if !cs.inTransaction {
		return executor.Err(executor.ErrDiscardWithoutMulti)
	}
	cs.clear()
	return executor.Simple("OK")
}

func (cs *Session) execWatch(keys []string) executor.RespValue {
	if cs.inTransaction {
		return executor.Err(executor.ErrWatchInsideMulti)
	}
	if err := cs.pin(keys); err != nil {
		return executor.Err(err)
	}
	if len(keys) == 0 {
		return executor.Simple("OK")
	}
	idx := cs.pinnedShard
	shard := cs.store.ShardAt(idx)
	cs.store.RLockShard(idx)
	for _, k := range keys {
		cs.watched[k] = shard.Generation(k)
	}
	cs.store.RUnlockShard(idx)
	return executor.Simple("OK")
}

func (cs *Session) execExec() executor.RespValue {
	if !cs.inTransaction {
		return executor.Err(executor.ErrExecWithoutMulti)
	}
	if cs.txErrored {
		cs.clear()
		return executor.Err(executor.ErrExecAborted)
	}

	queued := cs.queued
	if !cs.pinned {
		// No keyed command was ever queued or watched, so there is
		// nothing to coordinate against any shard (an empty MULTI/EXEC,
		// or one that only ever queued no-op-like commands rejected
		// earlier). Nothing survives to queued in that case either.
		cs.clear()
		return executor.Array(make([]executor.RespValue, 0, len(queued))...)
	}

	idx := cs.pinnedShard
	shard := cs.store.ShardAt(idx)
	cs.store.LockShard(idx)
	defer cs.store.UnlockShard(idx)

	for key, gen := range cs.watched {
		if shard.Generation(key) != gen {
			cs.clear()
			return executor.Nil()
		}
	}

	cs.clear()
	results := make([]executor.RespValue, 0, len(queued))
	for _, c := range queued {
		results = append(results, shard.Execute(c))
	}
	return executor.Array(results...)
}

func (cs *Session) clear() {
	cs.inTransaction = false
	cs.queued = nil
	cs.txErrored = false
	cs.pinned = false
	cs.watched = make(map[string]uint64)
}
