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

// Package skiplist implements the ordered-set skip list backing SortedSet:
// an arena of nodes addressed by index (not heap pointers), so there is no
// cyclic ownership and node reuse is a simple free-slot stack. Ordering is
// (score ascending, member ascending lexicographically). Level is chosen
// geometrically with p=0.25, capped at maxLevel.
package skiplist

import (
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

const (
	maxLevel = 32
	p        = 0.25
)

// nilIdx marks the absence of a node. It is -1 rather than 0 because index
// 0 is the header sentinel.
const nilIdx = -1

// level holds one rung of a node's forward list: the index of the next
// node at this level, and the number of level-0 nodes spanned to reach it
// (used for O(log n) rank-by-index).
type level struct {
	forward int
	span    int
}

type node struct {
	member string
	score  float64
	levels []level
	backward int
}

// SkipList is a probabilistic ordered set of (score, member) pairs.
// The zero value is not ready for use; call New.
type SkipList struct {
	nodes   []node // arena; index 0 is the header sentinel
	free    []int  // reusable slot indices
	tail    int
	level   int // current max level in use, 1-based
	length  int
	rng     *rand.Rand
}

// New returns an empty skip list.
func New() *SkipList {
	sl := &SkipList{
		tail:  nilIdx,
		level: 1,
		rng:   rand.New(rand.NewSource(seed())),
	}
	header := node{levels: make([]level, maxLevel), backward: nilIdx}
	for i := range header.levels {
		header.levels[i] = level{forward: nilIdx, span: 0}
	}
	sl.nodes = append(sl.nodes, header)
	return sl
}

// seed derives the fixed default seed that every list made by New starts
// from; NewSeeded lets a caller choose the seed instead.
func seed() int64 {
	h := xxhash.Sum64String("skiplist-default-seed")
	return int64(h)
}

// NewSeeded returns an empty skip list whose level coin-flips are driven by
// the given seed, for deterministic simulation testing.
func NewSeeded(seed int64) *SkipList {
	sl := New()
	sl.rng = rand.New(rand.NewSource(seed))
	return sl
}

// Len returns the number of elements.
func (sl *SkipList) Len() int { return sl.length }

func (sl *SkipList) randomLevel() int {
	lvl := 1
	for sl.rng.Float64() < p && lvl < maxLevel {
		lvl++
	}
	return lvl
}

func less(scoreA float64, memberA string, scoreB float64, memberB string) bool {
	if scoreA != scoreB {
		return scoreA < scoreB
	}
	return memberA < memberB
}

// allocNode returns an index for a fresh node with cap levels, reusing a
// freed slot when available.
func (sl *SkipList) allocNode(member string, score float64, lvl int) int {
	n := node{
		member:   member,
		score:    score,
		levels:   make([]level, lvl),
		backward: nilIdx,
	}
	if len(sl.free) > 0 {
		idx := sl.free[len(sl.free)-1]
		sl.free = sl.free[:len(sl.free)-1]
		sl.nodes[idx] = n
		return idx
	}
	sl.nodes = append(sl.nodes, n)
	return len(sl.nodes) - 1
}

// Insert adds (member, score). If member already exists the caller must
// Remove it first; Insert does not check for duplicates (SortedSet enforces
// uniqueness at the hash-table layer).
func (sl *SkipList) Insert(member string, score float64) {
	if math.IsNaN(score) {
		panic("skiplist: NaN score is disallowed")
	}
	update := make([]int, maxLevel)
	rank := make([]int, maxLevel)

	x := 0 // header
	for i := sl.level - 1; i >= 0; i-- {
		if i == sl.level-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for sl.nodes[x].levels[i].forward != nilIdx {
			fwd := sl.nodes[x].levels[i].forward
			fn := &sl.nodes[fwd]
			if less(fn.score, fn.member, score, member) {
				rank[i] += sl.nodes[x].levels[i].span
				x = fwd
			} else {
				break
			}
		}
		update[i] = x
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			rank[i] = 0
			update[i] = 0
			sl.nodes[0].levels[i].span = sl.length
		}
		sl.level = newLevel
	}

	idx := sl.allocNode(member, score, newLevel)
	for i := 0; i < newLevel; i++ {
		sl.nodes[idx].levels[i].forward = sl.nodes[update[i]].levels[i].forward
		sl.nodes[update[i]].levels[i].forward = idx

		sl.nodes[idx].levels[i].span = sl.nodes[update[i]].levels[i].span - (rank[0] - rank[i])
		sl.nodes[update[i]].levels[i].span = (rank[0] - rank[i]) + 1
	}

	// increment span for untouched levels above newLevel
	for i := newLevel; i < sl.level; i++ {
		sl.nodes[update[i]].levels[i].span++
	}

	if update[0] == 0 {
		sl.nodes[idx].backward = nilIdx
	} else {
		sl.nodes[idx].backward = update[0]
	}
	if sl.nodes[idx].levels[0].forward != nilIdx {
		sl.nodes[sl.nodes[idx].levels[0].forward].backward = idx
	} else {
		sl.tail = idx
	}
	sl.length++
}

// Remove deletes (member, score); it is a no-op if the pair is not present.
// Returns true if an element was removed.
func (sl *SkipList) Remove(member string, score float64) bool {
	update := make([]int, maxLevel)
	x := 0
	for i := sl.level - 1; i >= 0; i-- {
		for sl.nodes[x].levels[i].forward != nilIdx {
			fwd := sl.nodes[x].levels[i].forward
			fn := &sl.nodes[fwd]
			if less(fn.score, fn.member, score, member) {
				x = fwd
			} else {
				break
			}
		}
		update[i] = x
	}
	x = sl.nodes[x].levels[0].forward
	if x == nilIdx || sl.nodes[x].score != score || sl.nodes[x].member != member {
		return false
	}
	sl.deleteNode(x, update)
	return true
}

func (sl *SkipList) deleteNode(x int, update []int) {
	for i := 0; i < sl.level; i++ {
		if sl.nodes[update[i]].levels[i].forward == x {
			sl.nodes[update[i]].levels[i].span += sl.nodes[x].levels[i].span - 1
			sl.nodes[update[i]].levels[i].forward = sl.nodes[x].levels[i].forward
		} else {
			sl.nodes[update[i]].levels[i].span--
		}
	}
	if sl.nodes[x].levels[0].forward != nilIdx {
		sl.nodes[sl.nodes[x].levels[0].forward].backward = sl.nodes[x].backward
	} else {
		sl.tail = sl.nodes[x].backward
	}
	for sl.level > 1 && sl.nodes[0].levels[sl.level-1].forward == nilIdx {
		sl.level--
	}
	sl.length--
	// release the slot for reuse
	sl.nodes[x] = node{}
	sl.free = append(sl.free, x)
}

// GetRank returns the 0-based rank of (member, score) in ascending order,
// or (-1, false) if not present.
func (sl *SkipList) GetRank(member string, score float64) (int, bool) {
	x := 0
	rank := 0
	for i := sl.level - 1; i >= 0; i-- {
		for sl.nodes[x].levels[i].forward != nilIdx {
			fwd := sl.nodes[x].levels[i].forward
			fn := &sl.nodes[fwd]
			if fn.score < score || (fn.score == score && fn.member <= member) {
				rank += sl.nodes[x].levels[i].span
				x = fwd
			} else {
				break
			}
		}
	}
	if x != 0 && sl.nodes[x].score == score && sl.nodes[x].member == member {
		return rank - 1, true
	}
	return -1, false
}

// Element is a (member, score) pair returned by range/rank queries.
type Element struct {
	Member string
	Score  float64
}

// GetByRank returns the element at 0-based rank, or (Element{}, false) if
// out of bounds.
func (sl *SkipList) GetByRank(rank int) (Element, bool) {
	if rank < 0 || rank >= sl.length {
		return Element{}, false
	}
	x := 0
	traversed := 0
	for i := sl.level - 1; i >= 0; i-- {
		for sl.nodes[x].levels[i].forward != nilIdx && traversed+sl.nodes[x].levels[i].span <= rank+1 {
			traversed += sl.nodes[x].levels[i].span
			x = sl.nodes[x].levels[i].forward
		}
		if traversed == rank+1 {
			break
		}
	}
	if x == 0 {
		return Element{}, false
	}
	n := &sl.nodes[x]
	return Element{Member: n.member, Score: n.score}, true
}

// RangeByRank returns elements with 0-based rank in [start, stop] inclusive,
// clamped to the list bounds.
func (sl *SkipList) RangeByRank(start, stop int) []Element {
	if sl.length == 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if stop >= sl.length {
		stop = sl.length - 1
	}
	if start > stop {
		return nil
	}
	out := make([]Element, 0, stop-start+1)
	x := 0
	traversed := 0
	for i := sl.level - 1; i >= 0; i-- {
		for sl.nodes[x].levels[i].forward != nilIdx && traversed+sl.nodes[x].levels[i].span <= start {
			traversed += sl.nodes[x].levels[i].span
			x = sl.nodes[x].levels[i].forward
		}
		if traversed == start {
			break
		}
	}
	x = sl.nodes[x].levels[0].forward
	for i := start; i <= stop && x != nilIdx; i++ {
		n := &sl.nodes[x]
		out = append(out, Element{Member: n.member, Score: n.score})
		x = n.levels[0].forward
	}
	return out
}

// RangeByScore returns elements with score between min and max in
// ascending order; minExclusive and maxExclusive make the matching bound
// exclusive, matching ZRANGEBYSCORE's "(" prefix semantics.
func (sl *SkipList) RangeByScore(min, max float64, minExclusive, maxExclusive bool) []Element {
	var out []Element
	x := 0
	for i := sl.level - 1; i >= 0; i-- {
		for sl.nodes[x].levels[i].forward != nilIdx {
			fwd := sl.nodes[x].levels[i].forward
			if scoreBelow(sl.nodes[fwd].score, min, minExclusive) {
				x = fwd
			} else {
				break
			}
		}
	}
	x = sl.nodes[x].levels[0].forward
	for x != nilIdx {
		n := &sl.nodes[x]
		if scoreAbove(n.score, max, maxExclusive) {
			break
		}
		out = append(out, Element{Member: n.member, Score: n.score})
		x = n.levels[0].forward
	}
	return out
}

func scoreBelow(score, bound float64, exclusive bool) bool {
	if exclusive {
		return score <= bound
	}
	return score < bound
}

func scoreAbove(score, bound float64, exclusive bool) bool {
	if exclusive {
		return score >= bound
	}
	return score > bound
}

// IsSorted verifies the level-0 chain is in ascending (score, member) order
// (equal neighbours are accepted) and that its node count matches the
// recorded length; spans are not checked. SortedSet's invariant check
// calls it.
func (sl *SkipList) IsSorted() bool {
	x := sl.nodes[0].levels[0].forward
	var prevScore float64
	var prevMember string
	first := true
	count := 0
	for x != nilIdx {
		n := &sl.nodes[x]
		if !first {
			if less(n.score, n.member, prevScore, prevMember) {
				return false
			}
		}
		prevScore, prevMember = n.score, n.member
		first = false
		count++
		x = n.levels[0].forward
	}
	return count == sl.length
}

// Min returns the lowest-ordered element, if any.
func (sl *SkipList) Min() (Element, bool) {
	x := sl.nodes[0].levels[0].forward
	if x == nilIdx {
		return Element{}, false
	}
	n := &sl.nodes[x]
	return Element{Member: n.member, Score: n.score}, true
}

// Max returns the highest-ordered element, if any.
func (sl *SkipList) Max() (Element, bool) {
	if sl.tail == nilIdx {
		return Element{}, false
	}
	n := &sl.nodes[sl.tail]
	return Element{Member: n.member, Score: n.score}, true
}
