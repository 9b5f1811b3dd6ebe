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

func TestHashSetGetDelete(t *testing.T) {
	h := NewHash()
	assert.True(t, h.Set("f1", s("v1")))
	assert.False(t, h.Set("f1", s("v2")), "overwrite reports not-new")

	v, ok := h.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "v2", v.String())

	assert.True(t, h.Delete("f1"))
	assert.False(t, h.Delete("f1"))
}

func TestHashAutoDeleteWhenEmpty(t *testing.T) {
	h := NewHash()
	h.Set("only", s("v"))
	h.Delete("only")
	assert.Equal(t, 0, h.Len(), "caller (shard store) checks Len()==0 to drop the key")
}

func TestHashAll(t *testing.T) {
	h := NewHash()
	h.Set("a", s("1"))
	h.Set("b", s("2"))
	all := h.All()
	assert.Len(t, all, 2)
	assert.Equal(t, "1", all["a"].String())
}
