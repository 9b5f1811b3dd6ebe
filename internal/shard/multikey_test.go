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

func TestMGetPreservesRequestOrderAcrossShards(t *testing.T) {
	st := newTestStore(8)
	st.Execute(executor.NewCommand("SET", "a", "1"))
	st.Execute(executor.NewCommand("SET", "b", "2"))
	// "missing" is never set.
	reply := st.Execute(executor.NewCommand("MGET", "a", "missing", "b"))
	require.Equal(t, executor.RespArray, reply.Kind)
	require.Len(t, reply.Array, 3)
	assert.Equal(t, executor.Bulk("1"), reply.Array[0])
	assert.Equal(t, executor.Nil(), reply.Array[1])
	assert.Equal(t, executor.Bulk("2"), reply.Array[2])
}

func TestMSetWritesAcrossMultipleShards(t *testing.T) {
	st := newTestStore(8)
	reply := st.Execute(executor.NewCommand("MSET", "a", "1", "b", "2", "c", "3"))
	assert.Equal(t, executor.Simple("OK"), reply)
	assert.Equal(t, executor.Bulk("1"), st.Execute(executor.NewCommand("GET", "a")))
	assert.Equal(t, executor.Bulk("2"), st.Execute(executor.NewCommand("GET", "b")))
	assert.Equal(t, executor.Bulk("3"), st.Execute(executor.NewCommand("GET", "c")))
}

func TestMSetNXFailsWholesaleIfAnyKeyExists(t *testing.T) {
	st := newTestStore(8)
	st.Execute(executor.NewCommand("SET", "b", "existing"))
	reply := st.Execute(executor.NewCommand("MSETNX", "a", "1", "b", "2", "c", "3"))
	assert.Equal(t, executor.Int(0), reply)
	assert.Equal(t, executor.Nil(), st.Execute(executor.NewCommand("GET", "a")))
	assert.Equal(t, executor.Bulk("existing"), st.Execute(executor.NewCommand("GET", "b")))
}

func TestMSetNXSucceedsWhenNoneExist(t *testing.T) {
	st := newTestStore(8)
	reply := st.Execute(executor.NewCommand("MSETNX", "a", "1", "b", "2"))
	assert.Equal(t, executor.Int(1), reply)
	assert.Equal(t, executor.Bulk("1"), st.Execute(executor.NewCommand("GET", "a")))
	assert.Equal(t, executor.Bulk("2"), st.Execute(executor.NewCommand("GET", "b")))
}

func TestExistsSumsAcrossShards(t *testing.T) {
	st := newTestStore(8)
	st.Execute(executor.NewCommand("SET", "a", "1"))
	st.Execute(executor.NewCommand("SET", "b", "2"))
	reply := st.Execute(executor.NewCommand("EXISTS", "a", "b", "missing"))
	assert.Equal(t, executor.Int(2), reply)
}

func TestDelRemovesAcrossShards(t *testing.T) {
	st := newTestStore(8)
	st.Execute(executor.NewCommand("SET", "a", "1"))
	st.Execute(executor.NewCommand("SET", "b", "2"))
	reply := st.Execute(executor.NewCommand("DEL", "a", "b", "missing"))
	assert.Equal(t, executor.Int(2), reply)
	assert.Equal(t, executor.Int(0), st.Execute(executor.NewCommand("EXISTS", "a", "b")))
}

func TestKeysConcatenatesMatchesFromEveryShard(t *testing.T) {
	st := newTestStore(8)
	st.Execute(executor.NewCommand("SET", "user:1", "a"))
	st.Execute(executor.NewCommand("SET", "user:2", "b"))
	st.Execute(executor.NewCommand("SET", "order:1", "c"))

	reply := st.Execute(executor.NewCommand("KEYS", "user:*"))
	require.Equal(t, executor.RespArray, reply.Kind)
	got := make([]string, 0, len(reply.Array))
	for _, v := range reply.Array {
		got = append(got, v.Str)
	}
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, got)
}
