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
)

func TestPushAndLen(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(1), s.Execute(NewCommand("RPUSH", "k", "a")))
	assert.Equal(t, Int(3), s.Execute(NewCommand("RPUSH", "k", "b", "c")))
	assert.Equal(t, Int(3), s.Execute(NewCommand("LLEN", "k")))
}

func TestLPushPrependsInOrder(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("LPUSH", "k", "a"))
	s.Execute(NewCommand("LPUSH", "k", "b"))
	reply := s.Execute(NewCommand("LRANGE", "k", "0", "-1"))
	require.Equal(t, RespArray, reply.Kind)
	assert.Equal(t, []RespValue{Bulk("b"), Bulk("a")}, reply.Array)
}

func TestPopAutoDeletesEmptyList(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "k", "only"))
	assert.Equal(t, Bulk("only"), s.Execute(NewCommand("LPOP", "k")))
	assert.Equal(t, Int(0), s.Execute(NewCommand("EXISTS", "k")))
}

func TestLIndexNegative(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "k", "a", "b", "c"))
	assert.Equal(t, Bulk("c"), s.Execute(NewCommand("LINDEX", "k", "-1")))
	assert.Equal(t, Bulk("a"), s.Execute(NewCommand("LINDEX", "k", "0")))
	assert.Equal(t, Nil(), s.Execute(NewCommand("LINDEX", "k", "99")))
}

func TestLSetRejectsOutOfRange(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "k", "a"))
	reply := s.Execute(NewCommand("LSET", "k", "5", "x"))
	assert.True(t, reply.IsError())
}

func TestLTrimKeepsRangeAndAutoDeletes(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "k", "a", "b", "c", "d"))
	s.Execute(NewCommand("LTRIM", "k", "1", "2"))
	reply := s.Execute(NewCommand("LRANGE", "k", "0", "-1"))
	assert.Equal(t, []RespValue{Bulk("b"), Bulk("c")}, reply.Array)

	s.Execute(NewCommand("LTRIM", "k", "5", "10"))
	assert.Equal(t, Int(0), s.Execute(NewCommand("EXISTS", "k")))
}

func TestRPopLPush(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "src", "a", "b"))
	reply := s.Execute(NewCommand("RPOPLPUSH", "src", "dst"))
	assert.Equal(t, Bulk("b"), reply)
	got := s.Execute(NewCommand("LRANGE", "dst", "0", "-1"))
	assert.Equal(t, []RespValue{Bulk("b")}, got.Array)
}

func TestLMoveLeftToRight(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("RPUSH", "src", "a", "b"))
	reply := s.Execute(NewCommand("LMOVE", "src", "dst", "LEFT", "RIGHT"))
	assert.Equal(t, Bulk("a"), reply)
	got := s.Execute(NewCommand("LRANGE", "dst", "0", "-1"))
	assert.Equal(t, []RespValue{Bulk("a")}, got.Array)
}

func TestListWrapsAroundRingBufferUnderExecutor(t *testing.T) {
	s := newTestShard()
	for i := 0; i < 20; i++ {
		s.Execute(NewCommand("RPUSH", "k", string(rune('a'+i%26))))
	}
	for i := 0; i < 15; i++ {
		s.Execute(NewCommand("LPOP", "k"))
	}
	for i := 0; i < 20; i++ {
		s.Execute(NewCommand("RPUSH", "k", "z"))
	}
	assert.Equal(t, Int(25), s.Execute(NewCommand("LLEN", "k")))
}

func TestPushOnWrongTypeErrors(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SET", "k", "v"))
	reply := s.Execute(NewCommand("RPUSH", "k", "x"))
	assert.True(t, reply.IsError())
}
