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
	"github.com/etalazz/rkv/internal/replica"
)

func newTestStore(n int) *Store {
	var t uint64
	return New(n, 1, replica.Eventual, func() uint64 { return t })
}

func TestIndexIsDeterministic(t *testing.T) {
	st := newTestStore(16)
	a := st.Index("hello")
	b := st.Index("hello")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 16)
}

func TestSingleKeySetAndGetRoundTrip(t *testing.T) {
	st := newTestStore(8)
	reply := st.Execute(executor.NewCommand("SET", "k", "v"))
	assert.Equal(t, executor.Simple("OK"), reply)
	assert.Equal(t, executor.Bulk("v"), st.Execute(executor.NewCommand("GET", "k")))
}

func TestKeysOnDifferentShardsEachRouteIndependently(t *testing.T) {
	st := newTestStore(8)
	// Find two keys that land on different shards so this test actually
	// exercises routing rather than coincidentally hitting one shard.
	keyA, keyB := "alpha", "beta"
	for i := 0; st.Index(keyA) == st.Index(keyB) && i < 100; i++ {
		keyB = keyB + "x"
	}
	require.NotEqual(t, st.Index(keyA), st.Index(keyB))

	st.Execute(executor.NewCommand("SET", keyA, "1"))
	st.Execute(executor.NewCommand("SET", keyB, "2"))
	assert.Equal(t, executor.Bulk("1"), st.Execute(executor.NewCommand("GET", keyA)))
	assert.Equal(t, executor.Bulk("2"), st.Execute(executor.NewCommand("GET", keyB)))
}

func TestPingWithAndWithoutMessage(t *testing.T) {
	st := newTestStore(4)
	assert.Equal(t, executor.Simple("PONG"), st.Execute(executor.NewCommand("PING")))
	assert.Equal(t, executor.Bulk("hello"), st.Execute(executor.NewCommand("PING", "hello")))
}

func TestInfoReportsShardCount(t *testing.T) {
	st := newTestStore(4)
	reply := st.Execute(executor.NewCommand("INFO"))
	require.Equal(t, executor.RespBulkString, reply.Kind)
	assert.Contains(t, reply.Str, "shard_count:4")
}

func TestFlushAllClearsEveryShard(t *testing.T) {
	st := newTestStore(4)
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		st.Execute(executor.NewCommand("SET", k, "v"))
	}
	reply := st.Execute(executor.NewCommand("FLUSHALL"))
	assert.Equal(t, executor.Simple("OK"), reply)
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		assert.Equal(t, executor.Nil(), st.Execute(executor.NewCommand("GET", k)))
	}
}

func TestSingleKeyCommandWithNoArgsIsSyntaxError(t *testing.T) {
	st := newTestStore(4)
	reply := st.Execute(executor.NewCommand("GET"))
	assert.True(t, reply.IsError())
}
