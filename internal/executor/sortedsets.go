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

// SortedSet mutations, like List, are not CRDT-replicated: spec §3's
// CrdtValue union has no SortedSet variant. See DESIGN.md.
package executor

import (
	"math"
	"strconv"
	"strings"

	"github.com/etalazz/rkv/internal/datatypes"
)

func (s *Shard) zsetFor(key string) (*datatypes.Value, error) {
	v := s.get(key)
	if v == nil {
		return nil, nil
	}
	if err := v.CheckType(datatypes.KindSortedSet); err != nil {
		return nil, err
	}
	return v, nil
}

type zaddFlags struct {
	nx, xx, gt, lt, ch bool
}

func parseZAddFlags(args []string) ([]string, zaddFlags, error) {
	var f zaddFlags
	i := 0
	for ; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "NX":
			f.nx = true
		case "XX":
			f.xx = true
		case "GT":
			f.gt = true
		case "LT":
			f.lt = true
		case "CH":
			f.ch = true
		default:
			goto done
		}
	}
done:
	if f.nx && (f.xx || f.gt || f.lt) {
		return nil, f, ErrSyntax
	}
	if f.gt && f.lt {
		return nil, f, ErrSyntax
	}
	return args[i:], f, nil
}

func (s *Shard) cmdZAdd(args []string) RespValue {
	if len(args) < 3 {
		return Err(ErrSyntax)
	}
	key := args[0]
	rest, flags, err := parseZAddFlags(args[1:])
	if err != nil {
		return Err(err)
	}
	if len(rest) == 0 || len(rest)%2 != 0 {
		return Err(ErrSyntax)
	}

	v, zerr := s.zsetFor(key)
	if zerr != nil {
		return Err(zerr)
	}
	if v == nil {
		nv := datatypes.NewSortedSetValue()
		v = &nv
		s.data[key] = v
	}

	var added, changed int64
	for i := 0; i < len(rest); i += 2 {
		score, perr := strconv.ParseFloat(rest[i], 64)
		if perr != nil || math.IsNaN(score) {
			return Err(ErrNotAFloat)
		}
		member := rest[i+1]

		oldScore, exists := v.SortedSet.Score(member)
		if flags.nx && exists {
			continue
		}
		if flags.xx && !exists {
			continue
		}
		if exists && flags.gt && score <= oldScore {
			continue
		}
		if exists && flags.lt && score >= oldScore {
			continue
		}

		isNew := v.SortedSet.Add(member, score)
		if isNew {
			added++
		} else if oldScore != score {
			changed++
		}
	}
	s.touch(key)

	if flags.ch {
		return Int(added + changed)
	}
	return Int(added)
}

func (s *Shard) cmdZScore(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.zsetFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	score, ok := v.SortedSet.Score(args[1])
	if !ok {
		return Nil()
	}
	return Bulk(formatScore(score))
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s *Shard) cmdZRem(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v, err := s.zsetFor(key)
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	var removed int64
	for _, member := range args[1:] {
		if v.SortedSet.Remove(member) {
			removed++
		}
	}
	if removed > 0 {
		s.touch(key)
	}
	if v.SortedSet.Len() == 0 {
		s.deleteKey(key)
	}
	return Int(removed)
}

func (s *Shard) cmdZRank(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	v, err := s.zsetFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Nil()
	}
	rank, ok := v.SortedSet.Rank(args[1])
	if !ok {
		return Nil()
	}
	return Int(int64(rank))
}

func (s *Shard) cmdZRange(args []string) RespValue {
	if len(args) < 3 {
		return Err(ErrSyntax)
	}
	v, err := s.zsetFor(args[0])
	if err != nil {
		return Err(err)
	}
	withScores := len(args) > 3 && strings.EqualFold(args[3], "WITHSCORES")
	if v == nil {
		return Array()
	}
	start, e1 := strconv.Atoi(args[1])
	stop, e2 := strconv.Atoi(args[2])
	if e1 != nil || e2 != nil {
		return Err(ErrNotAnInteger)
	}
	// Negative indices on ZRANGE count from the end, like LRANGE; convert
	// against the set's current length.
	n := v.SortedSet.Len()
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)
	elems := v.SortedSet.RangeByRank(start, stop)
	return elementsToResp(elems, withScores)
}

func elementsToResp(elems []datatypes.Element, withScores bool) RespValue {
	out := make([]RespValue, 0, len(elems)*2)
	for _, e := range elems {
		out = append(out, Bulk(e.Member))
		if withScores {
			out = append(out, Bulk(formatScore(e.Score)))
		}
	}
	return Array(out...)
}

// cmdZRangeByScore parses -inf/+inf and the "(" exclusive prefix, with
// optional WITHSCORES and LIMIT offset count (spec §4.1).
func (s *Shard) cmdZRangeByScore(args []string) RespValue {
	if len(args) < 3 {
		return Err(ErrSyntax)
	}
	v, err := s.zsetFor(args[0])
	if err != nil {
		return Err(err)
	}

	min, minExcl, perr := parseScoreBound(args[1])
	if perr != nil {
		return Err(perr)
	}
	max, maxExcl, perr := parseScoreBound(args[2])
	if perr != nil {
		return Err(perr)
	}

	withScores := false
	offset, count := 0, -1
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return Err(ErrSyntax)
			}
			o, e1 := strconv.Atoi(args[i+1])
			c, e2 := strconv.Atoi(args[i+2])
			if e1 != nil || e2 != nil {
				return Err(ErrNotAnInteger)
			}
			offset, count = o, c
			i += 2
		default:
			return Err(ErrSyntax)
		}
	}

	if v == nil {
		return Array()
	}
	elems := v.SortedSet.RangeByScore(min, max, minExcl, maxExcl)
	if offset > 0 {
		if offset >= len(elems) {
			elems = nil
		} else {
			elems = elems[offset:]
		}
	}
	if count >= 0 && count < len(elems) {
		elems = elems[:count]
	}
	return elementsToResp(elems, withScores)
}

func parseScoreBound(raw string) (float64, bool, error) {
	exclusive := false
	if strings.HasPrefix(raw, "(") {
		exclusive = true
		raw = raw[1:]
	}
	switch raw {
	case "-inf":
		return math.Inf(-1), exclusive, nil
	case "+inf", "inf":
		return math.Inf(1), exclusive, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, ErrNotAFloat
	}
	return f, exclusive, nil
}

func (s *Shard) cmdZCard(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v, err := s.zsetFor(args[0])
	if err != nil {
		return Err(err)
	}
	if v == nil {
		return Int(0)
	}
	return Int(int64(v.SortedSet.Len()))
}
