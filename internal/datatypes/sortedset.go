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

package datatypes

import (
	"github.com/etalazz/rkv/pkg/skiplist"
)

// SortedSet pairs a member->score map (O(1) score lookup, ZSCORE) with a
// skip list ordered by (score, member) for O(log n) rank/range queries
// (ZRANK, ZRANGE, ZRANGEBYSCORE), per spec §3. The invariant
// scores.Len() == skiplist.Len(), with every member present in both, is
// maintained by routing every mutation through Add/Remove below rather
// than letting callers touch either structure directly.
type SortedSet struct {
	scores map[string]float64
	sl     *skiplist.SkipList
}

// NewSortedSet returns an empty sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{
		scores: map[string]float64{},
		sl:     skiplist.NewSeeded(nextSkiplistSeed()),
	}
}

// Len reports the number of members.
func (z *SortedSet) Len() int { return len(z.scores) }

// Add inserts or updates member's score (ZADD), returning true if member
// is new. Re-adding an existing member removes its old skip-list node
// before inserting at the new score, preserving the shared invariant.
func (z *SortedSet) Add(member string, score float64) bool {
	old, existed := z.scores[member]
	if existed {
		z.sl.Remove(member, old)
	}
	z.scores[member] = score
	z.sl.Insert(member, score)
	return !existed
}

// Score returns member's score (ZSCORE).
func (z *SortedSet) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Remove deletes member, returning true if it was present (ZREM).
func (z *SortedSet) Remove(member string) bool {
	score, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.sl.Remove(member, score)
	return true
}

// Rank returns member's 0-based ascending rank (ZRANK).
func (z *SortedSet) Rank(member string) (int, bool) {
	score, ok := z.scores[member]
	if !ok {
		return 0, false
	}
	return z.sl.GetRank(member, score)
}

// Element is one (member, score) pair from a range query.
type Element = skiplist.Element

// RangeByRank returns elements with ranks in [start, stop] (ZRANGE).
func (z *SortedSet) RangeByRank(start, stop int) []Element {
	return z.sl.RangeByRank(start, stop)
}

// RangeByScore returns elements with scores in [min, max] subject to the
// exclusivity flags (ZRANGEBYSCORE).
func (z *SortedSet) RangeByScore(min, max float64, minExclusive, maxExclusive bool) []Element {
	return z.sl.RangeByScore(min, max, minExclusive, maxExclusive)
}

// IsConsistent reports whether the map/skiplist invariant holds;
// exercised by DST harnesses, not the hot path.
func (z *SortedSet) IsConsistent() bool {
	return len(z.scores) == z.sl.Len() && z.sl.IsSorted()
}
