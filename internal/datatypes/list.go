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
	"errors"

	"github.com/etalazz/rkv/pkg/sds"
)

// ErrIndexOutOfRange is returned by LSet when the target index is not
// currently occupied.
var ErrIndexOutOfRange = errors.New("index out of range")

// List is an ordered sequence of SDS values backed by a ring buffer so
// push/pop at either end (LPUSH/RPUSH/LPOP/RPOP) are O(1) amortized, per
// spec §3, while Index/Range stay O(n).
type List struct {
	buf   []sds.SDS
	head  int // index of the first logical element within buf
	count int
}

const listInitialCap = 8

// NewListStruct returns an empty list.
func NewListStruct() *List {
	return &List{}
}

// Len reports the number of elements.
func (l *List) Len() int { return l.count }

func (l *List) grow() {
	newCap := listInitialCap
	if len(l.buf) > 0 {
		newCap = len(l.buf) * 2
	}
	newBuf := make([]sds.SDS, newCap)
	for i := 0; i < l.count; i++ {
		newBuf[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	l.buf = newBuf
	l.head = 0
}

// PushRight appends to the tail (RPUSH).
func (l *List) PushRight(v sds.SDS) {
	if l.count == len(l.buf) {
		l.grow()
	}
	l.buf[(l.head+l.count)%len(l.buf)] = v
	l.count++
}

// PushLeft prepends to the head (LPUSH).
func (l *List) PushLeft(v sds.SDS) {
	if l.count == len(l.buf) {
		l.grow()
	}
	l.head = (l.head - 1 + len(l.buf)) % len(l.buf)
	l.buf[l.head] = v
	l.count++
}

// PopRight removes and returns the tail element (RPOP).
func (l *List) PopRight() (sds.SDS, bool) {
	if l.count == 0 {
		return sds.SDS{}, false
	}
	idx := (l.head + l.count - 1) % len(l.buf)
	v := l.buf[idx]
	l.buf[idx] = sds.SDS{}
	l.count--
	return v, true
}

// PopLeft removes and returns the head element (LPOP).
func (l *List) PopLeft() (sds.SDS, bool) {
	if l.count == 0 {
		return sds.SDS{}, false
	}
	v := l.buf[l.head]
	l.buf[l.head] = sds.SDS{}
	l.head = (l.head + 1) % len(l.buf)
	l.count--
	return v, true
}

// Index returns the element at i, supporting negative indices counted
// from the tail (LINDEX).
func (l *List) Index(i int) (sds.SDS, bool) {
	idx, ok := l.resolveIndex(i)
	if !ok {
		return sds.SDS{}, false
	}
	return l.buf[(l.head+idx)%len(l.buf)], true
}

// Set replaces the element at index i (LSET). Index must already be
// occupied; LSET never extends the list.
func (l *List) Set(i int, v sds.SDS) error {
	idx, ok := l.resolveIndex(i)
	if !ok {
		return ErrIndexOutOfRange
	}
	l.buf[(l.head+idx)%len(l.buf)] = v
	return nil
}

// Range returns a copy of items in [start, stop] inclusive, both
// supporting negative indices, clamped to the list's bounds (LRANGE).
func (l *List) Range(start, stop int) []sds.SDS {
	n := l.count
	if n == 0 {
		return nil
	}
	s := normalizeIndex(start, n)
	e := normalizeIndex(stop, n)
	if s < 0 {
		s = 0
	}
	if e >= n {
		e = n - 1
	}
	if s > e || s >= n {
		return nil
	}
	out := make([]sds.SDS, e-s+1)
	for i := s; i <= e; i++ {
		out[i-s] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Trim keeps only [start, stop] inclusive, discarding the rest (LTRIM).
func (l *List) Trim(start, stop int) {
	kept := l.Range(start, stop)
	l.buf = nil
	l.head = 0
	l.count = 0
	for _, v := range kept {
		l.PushRight(v)
	}
}

func (l *List) resolveIndex(i int) (int, bool) {
	n := l.count
	idx := normalizeIndex(i, n)
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}
