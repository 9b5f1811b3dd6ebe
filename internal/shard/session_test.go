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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/executor"
)

func TestTransactionQueuesAndAppliesOnExec(t *testing.T) {
	st := newTestStore(8)
	sess := NewSession(st)

	assert.Equal(t, executor.Simple("OK"), sess.Execute(executor.NewCommand("MULTI")))
	assert.Equal(t, executor.Simple("QUEUED"), sess.Execute(executor.NewCommand("SET", "k", "v")))
	assert.Equal(t, executor.Nil(), st.Execute(executor.NewCommand("GET", "k")))

	reply := sess.Execute(executor.NewCommand("EXEC"))
	require.Equal(t, executor.RespArray, reply.Kind)
	require.Len(t, reply.Array, 1)
	assert.Equal(t, executor.Bulk("v"), st.Execute(executor.NewCommand("GET", "k")))
}

// TestCrossShardTransactionIsRejected is the shard-layer analog of
// Redis Cluster's CROSSSLOT: a transaction whose queued commands name
// keys on two different shards cannot be made atomic by this engine's
// per-shard single-threaded executor (spec §5), so it is rejected rather
// than silently run non-atomically.
func TestCrossShardTransactionIsRejected(t *testing.T) {
	st := newTestStore(8)
	keyA, keyB := "alpha", "beta"
	for i := 0; st.Index(keyA) == st.Index(keyB) && i < 100; i++ {
		keyB = keyB + "x"
	}
	require.NotEqual(t, st.Index(keyA), st.Index(keyB))

	sess := NewSession(st)
	sess.Execute(executor.NewCommand("MULTI"))
	sess.Execute(executor.NewCommand("SET", keyA, "1"))
	reply := sess.Execute(executor.NewCommand("SET", keyB, "2"))
	assert.ErrorIs(t, reply.Err, ErrCrossShardTransaction)

	execReply := sess.Execute(executor.NewCommand("EXEC"))
	assert.ErrorIs(t, execReply.Err, executor.ErrExecAborted)
	assert.Equal(t, executor.Nil(), st.Execute(executor.NewCommand("GET", keyA)))
}

func TestWholeStoreCommandRejectedInsideTransaction(t *testing.T) {
	st := newTestStore(8)
	sess := NewSession(st)
	sess.Execute(executor.NewCommand("MULTI"))
	reply := sess.Execute(executor.NewCommand("FLUSHDB"))
	assert.True(t, reply.IsError())
}

// TestWatchConflictAcrossSessionsAbortsExec mirrors spec §7's WATCH
// scenario, generalized to the sharded store: client A watches k, opens
// MULTI, queues a write; client B (a second Session over the same Store)
// writes k first; A's EXEC must abort.
func TestWatchConflictAcrossSessionsAbortsExec(t *testing.T) {
	st := newTestStore(8)
	clientA := NewSession(st)
	clientB := NewSession(st)

	st.Execute(executor.NewCommand("SET", "k", "v0"))

	clientA.Execute(executor.NewCommand("WATCH", "k"))
	clientA.Execute(executor.NewCommand("MULTI"))
	clientA.Execute(executor.NewCommand("SET", "k", "v_A"))

	clientB.Execute(executor.NewCommand("SET", "k", "v_B"))

	reply := clientA.Execute(executor.NewCommand("EXEC"))
	assert.Equal(t, executor.Nil(), reply)
	assert.Equal(t, executor.Bulk("v_B"), st.Execute(executor.NewCommand("GET", "k")))
}

func TestUnknownCommandDuringTransactionAborts(t *testing.T) {
	st := newTestStore(8)
	sess := NewSession(st)
	sess.Execute(executor.NewCommand("MULTI"))
	sess.Execute(executor.NewCommand("SET", "k", "v"))
	reply := sess.Execute(executor.NewCommand("NOTACOMMAND", "k"))
	assert.True(t, reply.IsError())

	execReply := sess.Execute(executor.NewCommand("EXEC"))
	assert.ErrorIs(t, execReply.Err, executor.ErrExecAborted)
}

func TestDiscardClearsPinAndQueue(t *testing.T) {
	st := newTestStore(8)
	sess := NewSession(st)
	sess.Execute(executor.NewCommand("MULTI"))
	sess.Execute(executor.NewCommand("SET", "k", "v"))
	assert.Equal(t, executor.Simple("OK"), sess.Execute(executor.NewCommand("DISCARD")))
	assert.Equal(t, executor.Nil(), st.Execute(executor.NewCommand("GET", "k")))
}
