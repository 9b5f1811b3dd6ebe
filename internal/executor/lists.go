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

// List mutations are not replicated through the CRDT lattice: spec §3's
// CrdtValue tagged union has no List variant (only LWW/counters/sets/
// hash), so ordered sequences stay shard-local rather than being
// merge-reconciled across replicas. This mirrors the spec's silence
// rather than an oversight — see DESIGN.md.
package executor

import (
	"strconv"

	"github.com/etalazz/rkv/internal/datatypes"
)

func (s *Shard) listFor(key string) (*datatypes.Value, error) {
	v := s.get(key)
	if v == nil {
		return nil, nil
	}
	if err := v.CheckType(datatypes.KindList); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Shard) cmdPush(args []string, left bool) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.listFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		nv := datatypes.NewList()
		v = &nv
		s.data[key] = v
	}
	for _, elem := range args[1:] {
		if left {
			v.List.PushLeft(sdsOf(elem))
		} else {
			v.List.PushRight(sdsOf(elem))
		}
	}
	s.touch(key)
	return Int(int64(v.List.Len()))
}

func (s *Shard) cmdPop(args []string, left bool) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.listFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	var elem sdsType
	var ok bool
	if left {
		elem, ok = v.List.PopLeft()
	} else {
		elem, ok = v.List.PopRight()
	}
	if !ok {
		return Nil()
	}
	s.touch(key)
	if v.List.Len() == 0 {
		s.deleteKey(key)
	}
	return Bulk(elem.String())
}

func (s *Shard) cmdLLen(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.listFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	return Int(int64(v.List.Len()))
}

func (s *Shard) cmdLIndex(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.listFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	idx, e := strconv.Atoi(args[1])
	if e != nil {
		return Err(ErrNotAnInteger)
	}
	elem, ok := v.List.Index(idx)
	if !ok {
		return Nil()
	}
	return Bulk(elem.String())
}

func (s *Shard) cmdLRange(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	v, err := s.listFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Array()
	}
	start, e1 := strconv.Atoi(args[1])
	stop, e2 := strconv.Atoi(args[2])
	if e1 != nil || e2 != nil {
		return Err(ErrNotAnInteger)
	}
	elems := v.List.Range(start, stop)
	out := make([]RespValue, 0, len(elems))
	for _, e := range elems {
		out = append(out, Bulk(e.String()))
	}
	return Array(out...)
}

func (s *Shard) cmdLSet(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	v, err := s.listFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Err(ErrNoSuchKey)
	}
	idx, e := strconv.Atoi(args[1])
	if e != nil {
		return Err(ErrNotAnInteger)
	}
	if err := v.List.Set(idx, sdsOf(args[2])); err != nil {
		return Err(err)
	}
	s.touch(args[0])
	return Simple("OK")
}

func (s *Shard) cmdLTrim(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.listFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Simple("OK")
	}
	start, e1 := strconv.Atoi(args[1])
	stop, e2 := strconv.Atoi(args[2])
	if e1 != nil || e2 != nil {
		return Err(ErrNotAnInteger)
	}
	v.List.Trim(start, stop)
	s.touch(key)
	if v.List.Len() == 0 {
		s.deleteKey(key)
	}
	return Simple("OK")
}

func (s *Shard) cmdRPopLPush(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	return s.moveOne(args[0], args[1], false, true)
}

func (s *Shard) cmdLMove(args []string) RespValue {
	if len(args) != 4 {
		return Err(ErrSyntax)
	}
	srcLeft, err := parseLeftRight(args[2])
	if err != nil {
		return Err(err)
	}
	dstLeft, err := parseLeftRight(args[3])
	if err != nil {
		return Err(err)
	}
	return s.moveOne(args[0], args[1], srcLeft, dstLeft)
}

func parseLeftRight(dir string) (bool, error) {
	switch dir {
	case "LEFT":
		return true, nil
	case "RIGHT":
		return false, nil
	default:
		return false, ErrSyntax
	}
}

func (s *Shard) moveOne(srcKey, dstKey string, srcLeft, dstLeft bool) RespValue {
	src, err := s.listFor(srcKey)
	if err != nil {
		return Err(err)
	}
	if src == nil {
		return Nil()
	}
	var elem sdsType
	var ok bool
	if srcLeft {
		elem, ok = src.List.PopLeft()
	} else {
		elem, ok = src.List.PopRight()
	}
	if !ok {
		return Nil()
	}
	s.touch(srcKey)
	if src.List.Len() == 0 {
		s.deleteKey(srcKey)
	}

	dst, err := s.listFor(dstKey)
	if err != nil {
		return Err(err)
	}
	if dst == nil {
		nv := datatypes.NewList()
		dst = &nv
		s.data[dstKey] = dst
	}
	if dstLeft {
		dst.List.PushLeft(elem)
	} else {
		dst.List.PushRight(elem)
	}
	s.touch(dstKey)
	return Bulk(elem.String())
}
