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

// Kind tags the variant held by a CrdtValue. A tagged struct is used
// instead of dynamic dispatch over a "CRDT trait"/interface (spec §9
// design notes): each variant encodes its own merge in Merge, and its own
// wire encoding in internal/wire.
type Kind uint8

const (
	KindLWW Kind = iota
	KindGCounter
	KindPNCounter
	KindGSet
	KindORSet
	KindHash
)

// ORSetEntry is one observed-remove element: a unique tag per add so a
// concurrent remove only removes the adds it has observed.
type ORSetEntry struct {
	Elem string
	Tag  uint64
}

// CrdtValue is the tagged union of supported replicated value types.
// Only the field(s) matching Kind are meaningful.
type CrdtValue struct {
	Kind Kind

	LWW LwwRegister

	// GCounter/PNCounter: per-replica monotonic increments (PN also tracks
	// decrements) so the sum converges regardless of delivery order.
	GCounterInc map[uint64]uint64
	PNCounterInc map[uint64]uint64
	PNCounterDec map[uint64]uint64

	// GSet: grow-only set of strings, keyed by element for O(1) membership.
	GSet map[string]struct{}

	// ORSet: add-wins observed-remove set. Live adds minus observed tombs.
	ORSetAdds  []ORSetEntry
	ORSetTombs map[uint64]struct{}

	// Hash: field -> LWW register, backing HSET/HDEL/HINCRBY (the latter
	// deliberately NOT commutative — see cmdHIncrBy in
	// internal/executor/hashes.go).
	Hash map[string]LwwRegister
}

// NewLWW constructs a CrdtValue wrapping a single LwwRegister.
func NewLWW(reg LwwRegister) CrdtValue {
	return CrdtValue{Kind: KindLWW, LWW: reg}
}

// NewGCounter constructs an empty grow-only counter.
func NewGCounter() CrdtValue {
	return CrdtValue{Kind: KindGCounter, GCounterInc: map[uint64]uint64{}}
}

// NewPNCounter constructs an empty positive-negative counter.
func NewPNCounter() CrdtValue {
	return CrdtValue{Kind: KindPNCounter, PNCounterInc: map[uint64]uint64{}, PNCounterDec: map[uint64]uint64{}}
}

// NewGSet constructs an empty grow-only set.
func NewGSet() CrdtValue {
	return CrdtValue{Kind: KindGSet, GSet: map[string]struct{}{}}
}

// NewORSet constructs an empty observed-remove set.
func NewORSet() CrdtValue {
	return CrdtValue{Kind: KindORSet, ORSetTombs: map[uint64]struct{}{}}
}

// NewHash constructs an empty LWW-field hash.
func NewHash() CrdtValue {
	return CrdtValue{Kind: KindHash, Hash: map[string]LwwRegister{}}
}

// GCounterIncrement records a local increment of n at replicaID.
func (v *CrdtValue) GCounterIncrement(replicaID uint64, n uint64) {
	if v.GCounterInc == nil {
		v.GCounterInc = map[uint64]uint64{}
	}
	v.GCounterInc[replicaID] += n
}

// GCounterValue returns the sum across all replicas.
func (v *CrdtValue) GCounterValue() uint64 {
	var total uint64
	for _, n := range v.GCounterInc {
		total += n
	}
	return total
}

// PNCounterAdd records a signed delta at replicaID (positive->Inc, negative->Dec).
func (v *CrdtValue) PNCounterAdd(replicaID uint64, delta int64) {
	if v.PNCounterInc == nil {
		v.PNCounterInc = map[uint64]uint64{}
	}
	if v.PNCounterDec == nil {
		v.PNCounterDec = map[uint64]uint64{}
	}
	if delta >= 0 {
		v.PNCounterInc[replicaID] += uint64(delta)
	} else {
		v.PNCounterDec[replicaID] += uint64(-delta)
	}
}

// PNCounterValue returns sum(increments) - sum(decrements) across replicas.
func (v *CrdtValue) PNCounterValue() int64 {
	var inc, dec uint64
	for _, n := range v.PNCounterInc {
		inc += n
	}
	for _, n := range v.PNCounterDec {
		dec += n
	}
	return int64(inc) - int64(dec)
}

// GSetAdd adds elem (grow-only: no remove).
func (v *CrdtValue) GSetAdd(elem string) {
	if v.GSet == nil {
		v.GSet = map[string]struct{}{}
	}
	v.GSet[elem] = struct{}{}
}

// ORSetAdd adds elem with a fresh unique tag (add-wins over concurrent removes
// of earlier tags for the same element).
func (v *CrdtValue) ORSetAdd(elem string, tag uint64) {
	v.ORSetAdds = append(v.ORSetAdds, ORSetEntry{Elem: elem, Tag: tag})
}

// ORSetRemove tombstones every currently-visible tag for elem.
func (v *CrdtValue) ORSetRemove(elem string) {
	if v.ORSetTombs == nil {
		v.ORSetTombs = map[uint64]struct{}{}
	}
	for _, e := range v.ORSetAdds {
		if e.Elem == elem {
			v.ORSetTombs[e.Tag] = struct{}{}
		}
	}
}

// ORSetMembers returns the set of elements with at least one live (untombed) tag.
func (v *CrdtValue) ORSetMembers() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range v.ORSetAdds {
		if _, tombed := v.ORSetTombs[e.Tag]; tombed {
			continue
		}
		if _, ok := seen[e.Elem]; ok {
			continue
		}
		seen[e.Elem] = struct{}{}
		out = append(out, e.Elem)
	}
	return out
}
