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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/replica"
)

func newTestShard() *Shard {
	repl := replica.New(1, replica.Eventual)
	var t uint64
	return New(repl, func() uint64 { return t })
}

func newTestShardWithClock(clock *uint64) *Shard {
	repl := replica.New(1, replica.Eventual)
	return New(repl, func() uint64 { return *clock })
}

func TestSetAndGet(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SET", "k", "v"))
	assert.Equal(t, Simple("OK"), reply)

	got := s.Execute(NewCommand("GET", "k"))
	assert.Equal(t, Bulk("v"), got)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Nil(), s.Execute(NewCommand("GET", "missing")))
}

func TestSetNXOnlySetsWhenAbsent(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Simple("OK"), s.Execute(NewCommand("SET", "k", "a", "NX")))
	assert.Equal(t, Nil(), s.Execute(NewCommand("SET", "k", "b", "NX")))
	assert.Equal(t, Bulk("a"), s.Execute(NewCommand("GET", "k")))
}

func TestSetXXOnlySetsWhenPresent(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Nil(), s.Execute(NewCommand("SET", "k", "a", "XX")))
	s.Execute(NewCommand("SET", "k", "a"))
	assert.Equal(t, Simple("OK"), s.Execute(NewCommand("SET", "k", "b", "XX")))
	assert.Equal(t, Bulk("b"), s.Execute(NewCommand("GET", "k")))
}

func TestSetGetFlagReturnsPriorValue(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "old"))
	reply := s.Execute(NewCommand("SET", "k", "new", "GET"))
	assert.Equal(t, Bulk("old"), reply)
	assert.Equal(t, Bulk("new"), s.Execute(NewCommand("GET", "k")))
}

func TestSetNXAndXXTogetherIsSyntaxError(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SET", "k", "v", "NX", "XX"))
	assert.True(t, reply.IsError())
}

func TestSetKeepTTLPreservesExpiry(t *testing.T) {
	clock := uint64(0)
	s := newTestShardWithClock(&clock)
	s.Execute(NewCommand("SET", "k", "v", "EX", "10"))
	s.Execute(NewCommand("SET", "k", "v2", "KEEPTTL"))
	ttl := s.Execute(NewCommand("TTL", "k"))
	assert.Equal(t, RespInteger, ttl.Kind)
	assert.Greater(t, ttl.Int, int64(0))
}

func TestSetWithoutKeepTTLClearsExpiry(t *testing.T) {
	clock := uint64(0)
	s := newTestShardWithClock(&clock)
	s.Execute(NewCommand("SET", "k", "v", "EX", "10"))
	s.Execute(NewCommand("SET", "k", "v2"))
	assert.Equal(t, Int(-1), s.Execute(NewCommand("TTL", "k")))
}

func TestAppendCreatesAndGrows(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(5), s.Execute(NewCommand("APPEND", "k", "hello")))
	assert.Equal(t, Int(10), s.Execute(NewCommand("APPEND", "k", "world")))
	assert.Equal(t, Bulk("helloworld"), s.Execute(NewCommand("GET", "k")))
}

func TestAppendOnWrongTypeErrors(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("LPUSH", "k", "a"))
	reply := s.Execute(NewCommand("APPEND", "k", "x"))
	assert.True(t, reply.IsError())
}

func TestGetSetReturnsPriorAndReplaces(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "old"))
	assert.Equal(t, Bulk("old"), s.Execute(NewCommand("GETSET", "k", "new")))
	assert.Equal(t, Bulk("new"), s.Execute(NewCommand("GET", "k")))
}

func TestStrlen(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(0), s.Execute(NewCommand("STRLEN", "missing")))
	s.Execute(NewCommand("SET", "k", "hello"))
	assert.Equal(t, Int(5), s.Execute(NewCommand("STRLEN", "k")))
}

func TestMGetSkipsMissingAndWrongType(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "a", "1"))
	s.Execute(NewCommand("LPUSH", "b", "x"))
	reply := s.Execute(NewCommand("MGET", "a", "b", "c"))
	require.Equal(t, RespArray, reply.Kind)
	assert.Equal(t, []RespValue{Bulk("1"), Nil(), Nil()}, reply.Array)
}

func TestMSetNXAllOrNothing(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "b", "existing"))
	reply := s.Execute(NewCommand("MSETNX", "a", "1", "b", "2"))
	assert.Equal(t, Int(0), reply)
	assert.Equal(t, Nil(), s.Execute(NewCommand("GET", "a")))
}

func TestGetRangeNegativeIndices(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "This is a string"))
	assert.Equal(t, Bulk("ing"), s.Execute(NewCommand("GETRANGE", "k", "-3", "-1")))
	assert.Equal(t, Bulk("This"), s.Execute(NewCommand("GETRANGE", "k", "0", "3")))
}

func TestSetRangeGrowsAndPatches(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "Hello World"))
	reply := s.Execute(NewCommand("SETRANGE", "k", "6", "Redis"))
	assert.Equal(t, Int(11), reply)
	assert.Equal(t, Bulk("Hello Redis"), s.Execute(NewCommand("GET", "k")))
}

func TestSetRangeOnMissingKeyZeroPads(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SETRANGE", "k", "5", "hello"))
	assert.Equal(t, Int(10), reply)
	got := s.Execute(NewCommand("GET", "k"))
	require.Equal(t, RespBulkString, got.Kind)
	assert.Equal(t, "\x00\x00\x00\x00\x00hello", got.Str)
}

func TestGetExPersistRemovesExpiry(t *testing.T) {
	clock := uint64(0)
	s := newTestShardWithClock(&clock)
	s.Execute(NewCommand("SET", "k", "v", "EX", "10"))
	reply := s.Execute(NewCommand("GETEX", "k", "PERSIST"))
	assert.Equal(t, Bulk("v"), reply)
	assert.Equal(t, Int(-1), s.Execute(NewCommand("TTL", "k")))
}

func TestGetExWithEXSetsExpiry(t *testing.T) {
	clock := uint64(0)
	s := newTestShardWithClock(&clock)
	s.Execute(NewCommand("SET", "k", "v"))
	s.Execute(NewCommand("GETEX", "k", "EX", "100"))
	ttl := s.Execute(NewCommand("TTL", "k"))
	assert.Equal(t, Int(100), ttl)
}

func TestGetDelRemovesKey(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "v"))
	assert.Equal(t, Bulk("v"), s.Execute(NewCommand("GETDEL", "k")))
	assert.Equal(t, Nil(), s.Execute(NewCommand("GET", "k")))
}

func TestIncrDecrBasic(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(1), s.Execute(NewCommand("INCR", "counter")))
	assert.Equal(t, Int(2), s.Execute(NewCommand("INCR", "counter")))
	assert.Equal(t, Int(1), s.Execute(NewCommand("DECR", "counter")))
	assert.Equal(t, Int(11), s.Execute(NewCommand("INCRBY", "counter", "10")))
	assert.Equal(t, Int(1), s.Execute(NewCommand("DECRBY", "counter", "10")))
}

func TestIncrOnNonIntegerErrors(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "notanumber"))
	reply := s.Execute(NewCommand("INCR", "k"))
	assert.True(t, reply.IsError())
}

func TestIncrOverflowErrors(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "9223372036854775807"))
	reply := s.Execute(NewCommand("INCR", "k"))
	assert.ErrorIs(t, reply.Err, ErrIntOverflow)
}

// TestIncrReplicatesAsPNCounterNotLWW guards against a regression where
// setString's LWW mutate call would clobber the PNCounter CRDT kind that
// INCR-family ops stamp for replication.
func TestIncrReplicatesAsPNCounterNotLWW(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "5"))
	s.Execute(NewCommand("INCRBY", "k", "3"))

	rv, ok := s.replica.Get("k")
	require.True(t, ok)
	assert.Equal(t, crdt.KindPNCounter, rv.Crdt.Kind)
	assert.Equal(t, int64(3), rv.Crdt.PNCounterValue())

	// The local fast path still reflects the plain integer string.
	assert.Equal(t, Bulk("8"), s.Execute(NewCommand("GET", "k")))
}

func TestIncrByFloat(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "10.50"))
	reply := s.Execute(NewCommand("INCRBYFLOAT", "k", "0.1"))
	assert.Equal(t, Bulk("10.6"), reply)
}

func TestIncrByFloatRejectsNonFinite(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("INCRBYFLOAT", "k", "nan"))
	assert.ErrorIs(t, reply.Err, ErrNotAFloat)
}
