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

// Package datatypes implements the keyspace value types of spec §3: the
// String/List/Set/Hash/SortedSet tagged union, backed by pkg/sds for
// string storage and pkg/skiplist for sorted-set ordering.
package datatypes

import (
	"fmt"
	"sync/atomic"

	"github.com/etalazz/rkv/pkg/sds"
)

// Kind tags which variant a Value currently holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindList
	KindSet
	KindHash
	KindSortedSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindSortedSet:
		return "zset"
	default:
		return "none"
	}
}

// Value is the tagged union every key maps to: exactly one of the
// following is meaningful, selected by Kind.
type Value struct {
	Kind      Kind
	Str       sds.SDS
	List      *List
	Set       *Set
	Hash      *Hash
	SortedSet *SortedSet
}

// NewString wraps s as a String value.
func NewString(s sds.SDS) Value { return Value{Kind: KindString, Str: s} }

// NewList wraps an empty List value.
func NewList() Value { return Value{Kind: KindList, List: NewListStruct()} }

// NewSet wraps an empty Set value.
func NewSet() Value { return Value{Kind: KindSet, Set: NewSetStruct()} }

// NewHashValue wraps an empty Hash value.
func NewHashValue() Value { return Value{Kind: KindHash, Hash: NewHash()} }

// NewSortedSetValue wraps an empty SortedSet value.
func NewSortedSetValue() Value { return Value{Kind: KindSortedSet, SortedSet: NewSortedSet()} }

// ErrWrongType mirrors Redis' WRONGTYPE error: the key exists but holds a
// different type than the operation requires.
type ErrWrongType struct {
	Want Kind
	Have Kind
}

func (e *ErrWrongType) Error() string {
	return fmt.Sprintf("WRONGTYPE Operation against a key holding the wrong kind of value (want %s, have %s)", e.Want, e.Have)
}

// CheckType returns ErrWrongType unless v is Null (absent key, caller
// will create) or already of kind want.
func (v *Value) CheckType(want Kind) error {
	if v.Kind == KindNull || v.Kind == want {
		return nil
	}
	return &ErrWrongType{Want: want, Have: v.Kind}
}

var globalSeed int64 = 1

// nextSkiplistSeed hands out distinct deterministic seeds to successive
// sorted sets so DST runs stay reproducible without sharing PRNG state
// across keys, even when sorted sets are created from multiple shards
// concurrently.
func nextSkiplistSeed() int64 {
	return atomic.AddInt64(&globalSeed, 1)
}
