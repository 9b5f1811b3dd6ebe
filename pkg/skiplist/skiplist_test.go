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

package skiplist

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIsSortedInvariant(t *testing.T) {
	sl := NewSeeded(1)
	members := []struct {
		m string
		s float64
	}{
		{"c", 3}, {"a", 1}, {"b", 1}, {"z", 100}, {"m", 50.5},
	}
	for _, e := range members {
		sl.Insert(e.m, e.s)
		assert.True(t, sl.IsSorted())
	}
	assert.Equal(t, 5, sl.Len())
}

func TestRankRoundTrip(t *testing.T) {
	sl := NewSeeded(42)
	want := map[string]float64{}
	for i := 0; i < 200; i++ {
		member := fmt.Sprintf("member-%03d", i)
		score := float64(rand.New(rand.NewSource(int64(i))).Intn(50))
		sl.Insert(member, score)
		want[member] = score
	}
	require.True(t, sl.IsSorted())
	for member, score := range want {
		rank, ok := sl.GetRank(member, score)
		require.True(t, ok, "member %s must be found", member)
		el, ok := sl.GetByRank(rank)
		require.True(t, ok)
		assert.Equal(t, member, el.Member)
		assert.Equal(t, score, el.Score)
	}
}

func TestRemoveMaintainsInvariants(t *testing.T) {
	sl := NewSeeded(7)
	for i := 0; i < 100; i++ {
		sl.Insert(fmt.Sprintf("k%d", i), float64(i))
	}
	for i := 0; i < 100; i += 3 {
		ok := sl.Remove(fmt.Sprintf("k%d", i), float64(i))
		require.True(t, ok)
		assert.True(t, sl.IsSorted())
	}
	assert.Equal(t, 100-34, sl.Len())
	_, found := sl.GetRank("k0", 0)
	assert.False(t, found)
}

func TestRangeByScoreExclusive(t *testing.T) {
	sl := New()
	for i := 1; i <= 10; i++ {
		sl.Insert(fmt.Sprintf("m%02d", i), float64(i))
	}
	els := sl.RangeByScore(3, 7, true, false)
	require.Len(t, els, 4) // 4,5,6,7
	assert.Equal(t, 4.0, els[0].Score)
	assert.Equal(t, 7.0, els[len(els)-1].Score)
}

func TestRangeByRankClampsBounds(t *testing.T) {
	sl := New()
	for i := 0; i < 5; i++ {
		sl.Insert(fmt.Sprintf("m%d", i), float64(i))
	}
	els := sl.RangeByRank(-10, 100)
	assert.Len(t, els, 5)
}

func TestMinMax(t *testing.T) {
	sl := New()
	_, ok := sl.Min()
	assert.False(t, ok)
	sl.Insert("b", 2)
	sl.Insert("a", 1)
	sl.Insert("c", 3)
	min, ok := sl.Min()
	require.True(t, ok)
	assert.Equal(t, "a", min.Member)
	max, ok := sl.Max()
	require.True(t, ok)
	assert.Equal(t, "c", max.Member)
}

func TestNaNScorePanics(t *testing.T) {
	sl := New()
	assert.Panics(t, func() {
		sl.Insert("x", nanScore())
	})
}

func nanScore() float64 {
	var zero float64
	return zero / zero
}
