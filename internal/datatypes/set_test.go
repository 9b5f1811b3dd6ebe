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
)

func TestSetAddRejectsDuplicate(t *testing.T) {
	set := NewSetStruct()
	assert.True(t, set.Add(s("a")))
	assert.False(t, set.Add(s("a")))
	assert.Equal(t, 1, set.Len())
}

func TestSetRemoveAndContains(t *testing.T) {
	set := NewSetStruct()
	set.Add(s("a"))
	assert.True(t, set.Contains(s("a")))
	assert.True(t, set.Remove(s("a")))
	assert.False(t, set.Contains(s("a")))
	assert.False(t, set.Remove(s("a")))
}

func TestSetPopIsDeterministicPerIteratorState(t *testing.T) {
	set := NewSetStruct()
	set.Add(s("a"))
	set.Add(s("b"))
	set.Add(s("c"))

	first, ok := set.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.String(), "pop walks insertion order deterministically")

	second, _ := set.Pop()
	assert.Equal(t, "b", second.String())
	assert.Equal(t, 1, set.Len())
}

func TestSetPopEmpty(t *testing.T) {
	set := NewSetStruct()
	_, ok := set.Pop()
	assert.False(t, ok)
}

func TestSetMembersReflectsInsertionOrder(t *testing.T) {
	set := NewSetStruct()
	set.Add(s("z"))
	set.Add(s("a"))
	members := set.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "z", members[0].String())
	assert.Equal(t, "a", members[1].String())
}
