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

import "github.com/etalazz/rkv/pkg/sds"

// Set is an unordered set of unique SDS members over a Go map, mirroring
// the spec's "hash table" requirement.
type Set struct {
	members map[string]sds.SDS
	// insertOrder preserves the order members were added so SPOP is
	// "arbitrary but deterministic per iterator state": repeated SPOP
	// calls against the same Set walk insertion order rather than the
	// nondeterministic Go map iteration order.
	insertOrder []string
}

// NewSetStruct returns an empty set.
func NewSetStruct() *Set {
	return &Set{members: map[string]sds.SDS{}}
}

// Len reports the number of members.
func (s *Set) Len() int { return len(s.members) }

// Add inserts v, returning true if it was not already present (SADD).
func (s *Set) Add(v sds.SDS) bool {
	key := v.String()
	if _, exists := s.members[key]; exists {
		return false
	}
	s.members[key] = v
	s.insertOrder = append(s.insertOrder, key)
	return true
}

// Remove deletes v, returning true if it was present (SREM).
func (s *Set) Remove(v sds.SDS) bool {
	key := v.String()
	if _, exists := s.members[key]; !exists {
		return false
	}
	delete(s.members, key)
	for i, k := range s.insertOrder {
		if k == key {
			s.insertOrder = append(s.insertOrder[:i], s.insertOrder[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports membership (SISMEMBER).
func (s *Set) Contains(v sds.SDS) bool {
	_, ok := s.members[v.String()]
	return ok
}

// Members returns all members in insertion order (SMEMBERS).
func (s *Set) Members() []sds.SDS {
	out := make([]sds.SDS, 0, len(s.insertOrder))
	for _, k := range s.insertOrder {
		out = append(out, s.members[k])
	}
	return out
}

// Pop removes and returns the oldest-inserted member still present
// (SPOP with no count): arbitrary in the sense that callers cannot
// predict it without knowing insertion order, but fully deterministic
// given the set's history, matching spec §3.
func (s *Set) Pop() (sds.SDS, bool) {
	if len(s.insertOrder) == 0 {
		return sds.SDS{}, false
	}
	key := s.insertOrder[0]
	v := s.members[key]
	s.Remove(v)
	return v, true
}
