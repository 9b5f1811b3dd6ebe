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

package crdt

import "github.com/etalazz/rkv/pkg/sds"

// LwwRegister is a last-writer-wins register over an SDS value. A register
// whose Tombstone is set represents a delete rather than an unset value —
// the empty-slot state still participates in merges so a delete can beat a
// concurrent write with an earlier timestamp.
type LwwRegister struct {
	Value     sds.SDS
	HasValue  bool
	Timestamp LamportClock
	Tombstone bool
}

// Set returns a new register holding value, stamped with ts.
func Set(value sds.SDS, ts LamportClock) LwwRegister {
	return LwwRegister{Value: value, HasValue: true, Timestamp: ts}
}

// Delete returns a tombstoned register stamped with ts.
func Delete(ts LamportClock) LwwRegister {
	return LwwRegister{Timestamp: ts, Tombstone: true}
}

// MergeLWW picks the register with the greater timestamp; ties are broken
// by replica id (LamportClock.Less is already total on (time, replica)).
func MergeLWW(a, b LwwRegister) LwwRegister {
	if b.Timestamp.After(a.Timestamp) {
		return b
	}
	return a
}
