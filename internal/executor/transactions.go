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

// execMulti opens a transaction. Nested MULTI is an error.
func (sess *Session) execMulti() RespValue {
	if sess.inTransaction {
		return Err(ErrMultiNested)
	}
	sess.inTransaction = true
	sess.queuedCommands = nil
	sess.txErrored = false
	return Simple("OK")
}

// execDiscard clears transaction state without executing anything.
func (sess *Session) execDiscard() RespValue {
	if !sess.inTransaction {
		return Err(ErrDiscardWithoutMulti)
	}
	sess.clearTransaction()
	return Simple("OK")
}

// execWatch snapshots the write-generation of each named key (tracked on
// the shared Shard) for later comparison at EXEC. WATCH inside an open
// transaction is an error.
func (sess *Session) execWatch(keys []string) RespValue {
	if sess.inTransaction {
		return Err(ErrWatchInsideMulti)
	}
	for _, k := range keys {
		sess.watchedKeys[k] = sess.shard.generations[k]
	}
	return Simple("OK")
}

// execUnwatch clears all watched keys.
func (sess *Session) execUnwatch() RespValue {
	sess.watchedKeys = make(map[string]uint64)
	return Simple("OK")
}

// execExec replays queued_commands in order against the shared shard,
// aborting (nil reply) if any watched key's generation changed since
// WATCH — whether from this session's own queued writes or a write
// issued by another session against the same shard — or if a queuing-time
// error was recorded (EXECABORT semantics).
func (sess *Session) execExec() RespValue {
	if !sess.inTransaction {
		return Err(ErrExecWithoutMulti)
	}
	if sess.txErrored {
		sess.clearTransaction()
		return Err(ErrExecAborted)
	}
	for key, gen := range sess.watchedKeys {
		if sess.shard.generations[key] != gen {
			sess.clearTransaction()
			return Nil()
		}
	}

	queued := sess.queuedCommands
	sess.clearTransaction()

	results := make([]RespValue, 0, len(queued))
	for _, cmd := range queued {
		results = append(results, sess.shard.dispatch(cmd))
	}
	return Array(results...)
}

func (sess *Session) clearTransaction() {
	sess.inTransaction = false
	sess.queuedCommands = nil
	sess.txErrored = false
	sess.watchedKeys = make(map[string]uint64)
}
