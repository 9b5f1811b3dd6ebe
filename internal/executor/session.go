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

// Session is one client connection's view of a shared Shard: it carries
// the MULTI/WATCH state spec §7 scopes per-connection, while every
// command it executes still mutates the same underlying keyspace. Two
// Sessions over the same Shard can hold independent (or no) open
// transactions at once.
type Session struct {
	shard *Shard

	inTransaction  bool
	queuedCommands []Command
	txErrored      bool

	watchedKeys map[string]uint64 // key -> generation observed at WATCH time
}

// NewSession opens a connection-scoped view over shard.
func NewSession(shard *Shard) *Session {
	return &Session{
		shard:       shard,
		watchedKeys: make(map[string]uint64),
	}
}

// Execute interprets cmd against the session's shard, per spec §4.1/§7.
// When a transaction is open (MULTI issued, EXEC/DISCARD not yet), any
// command other than EXEC/DISCARD/WATCH/MULTI is queued and QUEUED is
// returned instead of executed immediately.
func (sess *Session) Execute(cmd Command) RespValue {
	if sess.inTransaction && !multiExempt[cmd.Name] {
		if !knownCommands[cmd.Name] {
			sess.txErrored = true
			return Err(ErrSyntax)
		}
		sess.queuedCommands = append(sess.queuedCommands, cmd)
		return Simple("QUEUED")
	}

	switch cmd.Name {
	case "MULTI":
		return sess.execMulti()
	case "EXEC":
		return sess.execExec()
	case "DISCARD":
		return sess.execDiscard()
	case "WATCH":
		return sess.execWatch(cmd.Args)
	case "UNWATCH":
		return sess.execUnwatch()
	}

	return sess.shard.dispatch(cmd)
}
