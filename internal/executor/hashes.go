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

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/datatypes"
)

func (s *Shard) hashFor(key string) (*datatypes.Value, error) {
	v := s.get(key)
	if v == nil {
		return nil, nil
	}
	if err := v.CheckType(datatypes.KindHash); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Shard) cmdHSet(args []string) RespValue {
	if len(args) < 3 || len(args)%2 != 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.hashFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		nv := datatypes.NewHashValue()
		v = &nv
		s.data[key] = v
	}

	var newFields int64
	for i := 1; i < len(args); i += 2 {
		field, val := args[i], args[i+1]
		if v.Hash.Set(field, sdsOf(val)) {
			newFields++
		}
		s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewHash() }, func(c *crdt.CrdtValue) {
			if c.Kind != crdt.KindHash {
				*c = crdt.NewHash()
			}
			c.Hash[field] = crdt.Set(sdsOf(val), crdt.LamportClock{})
		})
	}
	s.touch(key)
	return Int(newFields)
}

func (s *Shard) cmdHGet(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.hashFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	val, ok := v.Hash.Get(args[1])
	if !ok {
		return Nil()
	}
	return Bulk(val.String())
}

func (s *Shard) cmdHDel(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.hashFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	var removed int64
	for _, field := range args[1:] {
		if v.Hash.Delete(field) {
			removed++
			s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewHash() }, func(c *crdt.CrdtValue) {
				if c.Kind != crdt.KindHash {
					*c = crdt.NewHash()
				}
				c.Hash[field] = crdt.Delete(crdt.LamportClock{})
			})
		}
	}
	if removed > 0 {
		s.touch(key)
	}
	// Hash auto-deletes when it reaches zero fields (spec §3/§4.1).
	if v.Hash.Len() == 0 {
		s.deleteKey(key)
	}
	return Int(removed)
}

func (s *Shard) cmdHGetAll(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.hashFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Array()
	}
	all := v.Hash.All()
	out := make([]RespValue, 0, len(all)*2)
	for field, val := range all {
		out = append(out, Bulk(field), Bulk(val.String()))
	}
	return Array(out...)
}

// cmdHIncrBy overflow-checks like INCRBY (spec §4.1).
func (s *Shard) cmdHIncrBy(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	key, field := args[0], args[1]
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return Err(ErrNotAnInteger)
	}

	v, herr := s.hashFor(key)
	if herr != nil {
		return Err(herr)
	}
	if v == nil {
		nv := datatypes.NewHashValue()
		v = &nv
		s.data[key] = v
	}

	var cur int64
	if existing, ok := v.Hash.Get(field); ok {
		parsed, perr := strconv.ParseInt(existing.String(), 10, 64)
		if perr != nil {
			return Err(ErrNotAnInteger)
		}
		cur = parsed
	}
	result := cur + delta
	if (delta > 0 && result < cur) || (delta < 0 && result > cur) {
		return Err(ErrIntOverflow)
	}
	v.Hash.Set(field, sdsOf(strconv.FormatInt(result, 10)))
	s.touch(key)

	s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewHash() }, func(c *crdt.CrdtValue) {
		if c.Kind != crdt.KindHash {
			*c = crdt.NewHash()
		}
		c.Hash[field] = crdt.Set(sdsOf(strconv.FormatInt(result, 10)), crdt.LamportClock{})
	})
	return Int(result)
}

func (s *Shard) cmdHLen(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.hashFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	return Int(int64(v.Hash.Len()))
}

func (s *Shard) cmdHExists(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.hashFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	if _, ok := v.Hash.Get(args[1]); ok {
		return Int(1)
	}
	return Int(0)
}
