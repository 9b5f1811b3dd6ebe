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
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScanIsDeterministicAndExhaustive walks SCAN to exhaustion with a
// small COUNT and checks every key is visited exactly once, in sorted
// order, regardless of Go map iteration order.
func TestScanIsDeterministicAndExhaustive(t *testing.T) {
	s := newTestShard()
	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		s.Execute(NewCommand("SET", k, "v"))
	}

	var seen []string
	cursor := int64(0)
	first := true
	for first || cursor != 0 {
		first = false
		reply := s.Execute(NewCommand("SCAN", strconv.FormatInt(cursor, 10), "COUNT", "2"))
		require.Equal(t, RespArray, reply.Kind)
		require.Len(t, reply.Array, 2)
		cursor = reply.Array[0].Int
		for _, v := range reply.Array[1].Array {
			seen = append(seen, v.Str)
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestHScanReturnsFieldValuePairs(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("HSET", "k", "a", "1", "b", "2"))
	reply := s.Execute(NewCommand("HSCAN", "k", "0"))
	require.Equal(t, RespArray, reply.Kind)
	assert.Equal(t, Int(0), reply.Array[0])
	assert.Len(t, reply.Array[1].Array, 4)
}

func TestZScanReturnsMemberScorePairsSorted(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("ZADD", "k", "2", "b", "1", "a"))
	reply := s.Execute(NewCommand("ZSCAN", "k", "0"))
	require.Equal(t, RespArray, reply.Kind)
	assert.Equal(t, []RespValue{Bulk("a"), Bulk("1"), Bulk("b"), Bulk("2")}, reply.Array[1].Array)
}

func TestScanOnEmptyKeyspace(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SCAN", "0"))
	assert.Equal(t, Int(0), reply.Array[0])
	assert.Empty(t, reply.Array[1].Array)
}
