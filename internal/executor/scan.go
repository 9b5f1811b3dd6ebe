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
	"sort"
	"strconv"

	"github.com/etalazz/rkv/internal/datatypes"
)

const scanDefaultCount = 10

// SCAN/HSCAN/ZSCAN sort their keyspace before paging so iteration is
// deterministic (spec §4.1): the cursor is a plain offset into the sorted
// key list, and a returned cursor of 0 means the scan is exhausted.
func (s *Shard) cmdScan(args []string) RespValue {
	if len(args) < 1 {
		return Err(ErrSyntax)
	}
	cursor, err := strconv.Atoi(args[0])
	if err != nil || cursor < 0 {
		return Err(ErrNotAnInteger)
	}
	count := scanDefaultCount
	for i := 1; i+1 < len(args); i += 2 {
		if args[i] == "COUNT" {
			c, cerr := strconv.Atoi(args[i+1])
			if cerr != nil || c <= 0 {
				return Err(ErrNotAnInteger)
			}
			count = c
		}
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		s.expireIfNeeded(k)
		if _, ok := s.data[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	nextCursor, page := pageStrings(keys, cursor, count)
	out := make([]RespValue, 0, len(page))
	for _, k := range page {
		out = append(out, Bulk(k))
	}
	return Array(Int(int64(nextCursor)), Array(out...))
}

func pageStrings(all []string, cursor, count int) (int, []string) {
	if cursor >= len(all) {
		return 0, nil
	}
	end := cursor + count
	if end >= len(all) {
		return 0, all[cursor:]
	}
	return end, all[cursor:end]
}

func (s *Shard) cmdHScan(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	cursor, err := strconv.Atoi(args[1])
	if err != nil || cursor < 0 {
		return Err(ErrNotAnInteger)
	}
	count := scanDefaultCount
	for i := 2; i+1 < len(args); i += 2 {
		if args[i] == "COUNT" {
			c, cerr := strconv.Atoi(args[i+1])
			if cerr != nil || c <= 0 {
				return Err(ErrNotAnInteger)
			}
			count = c
		}
	}

	v, herr := s.hashFor(key)
	if herr != nil {
		return Err(herr)
	}
	if v == nil {
		return Array(Int(0), Array())
	}
	all := v.Hash.All()
	fields := make([]string, 0, len(all))
	for f := range all {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	nextCursor, page := pageStrings(fields, cursor, count)
	out := make([]RespValue, 0, len(page)*2)
	for _, f := range page {
		out = append(out, Bulk(f), Bulk(all[f].String()))
	}
	return Array(Int(int64(nextCursor)), Array(out...))
}

func (s *Shard) cmdZScan(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	cursor, err := strconv.Atoi(args[1])
	if err != nil || cursor < 0 {
		return Err(ErrNotAnInteger)
	}
	count := scanDefaultCount
	for i := 2; i+1 < len(args); i += 2 {
		if args[i] == "COUNT" {
			c, cerr := strconv.Atoi(args[i+1])
			if cerr != nil || c <= 0 {
				return Err(ErrNotAnInteger)
			}
			count = c
		}
	}

	v, zerr := s.zsetFor(key)
	if zerr != nil {
		return Err(zerr)
	}
	if v == nil {
		return Array(Int(0), Array())
	}
	elems := v.SortedSet.RangeByRank(0, -1)
	members := make([]string, len(elems))
	byMember := make(map[string]datatypes.Element, len(elems))
	for i, e := range elems {
		members[i] = e.Member
		byMember[e.Member] = e
	}
	sort.Strings(members)

	nextCursor, page := pageStrings(members, cursor, count)
	out := make([]RespValue, 0, len(page)*2)
	for _, m := range page {
		out = append(out, Bulk(m), Bulk(formatScore(byMember[m].Score)))
	}
	return Array(Int(int64(nextCursor)), Array(out...))
}
