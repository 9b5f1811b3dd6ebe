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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalazz/rkv/pkg/sds"
)

func s(v string) sds.SDS { return sds.FromString(v) }

func TestListPushPopBothEnds(t *testing.T) {
	l := NewListStruct()
	l.PushRight(s("b"))
	l.PushLeft(s("a"))
	l.PushRight(s("c"))
	assert.Equal(t, 3, l.Len())

	vals := l.Range(0, -1)
	require.Len(t, vals, 3)
	assert.Equal(t, "a", vals[0].String())
	assert.Equal(t, "b", vals[1].String())
	assert.Equal(t, "c", vals[2].String())

	left, ok := l.PopLeft()
	require.True(t, ok)
	assert.Equal(t, "a", left.String())

	right, ok := l.PopRight()
	require.True(t, ok)
	assert.Equal(t, "c", right.String())

	assert.Equal(t, 1, l.Len())
}

func TestListPopEmptyReturnsFalse(t *testing.T) {
	l := NewListStruct()
	_, ok := l.PopLeft()
	assert.False(t, ok)
	_, ok = l.PopRight()
	assert.False(t, ok)
}

func TestListIndexNegativeAndOutOfBounds(t *testing.T) {
	l := NewListStruct()
	l.PushRight(s("a"))
	l.PushRight(s("b"))
	l.PushRight(s("c"))

	v, ok := l.Index(-1)
	require.True(t, ok)
	assert.Equal(t, "c", v.String())

	_, ok = l.Index(3)
	assert.False(t, ok)
	_, ok = l.Index(-4)
	assert.False(t, ok)
}

func TestListSetRequiresExistingIndex(t *testing.T) {
	l := NewListStruct()
	l.PushRight(s("a"))
	require.NoError(t, l.Set(0, s("z")))
	v, _ := l.Index(0)
	assert.Equal(t, "z", v.String())

	err := l.Set(5, s("nope"))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestListTrim(t *testing.T) {
	l := NewListStruct()
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		l.PushRight(s(v))
	}
	l.Trim(1, 3)
	vals := l.Range(0, -1)
	require.Len(t, vals, 3)
	assert.Equal(t, "b", vals[0].String())
	assert.Equal(t, "d", vals[2].String())
}

func TestListWrapsAroundRingBufferAfterManyOps(t *testing.T) {
	l := NewListStruct()
	// Push/pop enough from both ends to force the ring buffer's head
	// index past its backing array multiple times, exercising the
	// modulo wraparound in every method.
	for i := 0; i < 100; i++ {
		l.PushRight(s("x"))
		l.PushLeft(s("y"))
		l.PopRight()
	}
	assert.Equal(t, 100, l.Len())
}
