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

import "github.com/etalazz/rkv/pkg/sds"

// Hash maps field names to SDS values (HSET/HGET/HDEL/HGETALL). A Hash
// that reaches zero fields auto-deletes: the shard store checks Len()
// after HDEL and removes the key entirely, per spec §3.
type Hash struct {
	fields map[string]sds.SDS
}

// NewHash returns an empty hash.
func NewHash() *Hash {
	return &Hash{fields: map[string]sds.SDS{}}
}

// Len reports the number of fields.
func (h *Hash) Len() int { return len(h.fields) }

// Set stores value under field, returning true if field is new (HSET).
func (h *Hash) Set(field string, value sds.SDS) bool {
	_, existed := h.fields[field]
	h.fields[field] = value
	return !existed
}

// Get retrieves the value for field (HGET).
func (h *Hash) Get(field string) (sds.SDS, bool) {
	v, ok := h.fields[field]
	return v, ok
}

// Delete removes field, returning true if it was present (HDEL).
func (h *Hash) Delete(field string) bool {
	_, ok := h.fields[field]
	if ok {
		delete(h.fields, field)
	}
	return ok
}

// All returns every field/value pair (HGETALL). Order is not meaningful.
func (h *Hash) All() map[string]sds.SDS {
	out := make(map[string]sds.SDS, len(h.fields))
	for k, v := range h.fields {
		out[k] = v
	}
	return out
}
