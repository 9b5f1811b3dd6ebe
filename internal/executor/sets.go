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
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/datatypes"
)

func (s *Shard) setFor(key string) (*datatypes.Value, error) {
	v := s.get(key)
	if v == nil {
		return nil, nil
	}
	if err := v.CheckType(datatypes.KindSet); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Shard) cmdSAdd(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.setFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		nv := datatypes.NewSet()
		v = &nv
		s.data[key] = v
	}

	var added int64
	for _, member := range args[1:] {
		if v.Set.Add(sdsOf(member)) {
			added++
			tag := s.replica.NextTag()
			s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewORSet() }, func(c *crdt.CrdtValue) {
				if c.Kind != crdt.KindORSet {
					*c = crdt.NewORSet()
				}
				c.ORSetAdd(member, tag)
			})
		}
	}
	if added > 0 {
		s.touch(key)
	}
	return Int(added)
}

func (s *Shard) cmdSRem(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.setFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	var removed int64
	for _, member := range args[1:] {
		if v.Set.Remove(sdsOf(member)) {
			removed++
			s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewORSet() }, func(c *crdt.CrdtValue) {
				if c.Kind != crdt.KindORSet {
					*c = crdt.NewORSet()
				}
				c.ORSetRemove(member)
			})
		}
	}
	if removed > 0 {
		s.touch(key)
	}
	if v.Set.Len() == 0 {
		s.deleteKey(key)
	}
	return Int(removed)
}

func (s *Shard) cmdSMembers(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.setFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Array()
	}
	members := v.Set.Members()
	out := make([]RespValue, 0, len(members))
	for _, m := range members {
		out = append(out, Bulk(m.String()))
	}
	return Array(out...)
}

func (s *Shard) cmdSIsMember(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.setFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	if v.Set.Contains(sdsOf(args[1])) {
		return Int(1)
	}
	return Int(0)
}

// cmdSPop returns an arbitrary but deterministic-per-iterator-state
// member (spec §3): this implementation always pops the oldest surviving
// insertion, which is deterministic given the set's mutation history.
func (s *Shard) cmdSPop(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.setFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	member, ok := v.Set.Pop()
	if !ok {
		return Nil()
	}
	s.touch(key)
	s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewORSet() }, func(c *crdt.CrdtValue) {
		if c.Kind != crdt.KindORSet {
			*c = crdt.NewORSet()
		}
		c.ORSetRemove(member.String())
	})
	if v.Set.Len() == 0 {
		s.deleteKey(key)
	}
	return Bulk(member.String())
}

func (s *Shard) cmdSCard(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.setFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	return Int(int64(v.Set.Len()))
}
