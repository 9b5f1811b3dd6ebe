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

import "fmt"

// ErrTypeMismatch is returned by TryMerge when the two values carry
// different CRDT variants. Merge itself never returns this: it silently
// falls back to the LWW-by-timestamp rule described in spec §4.3 so no
// concurrent write is ever dropped without a deterministic, predictable
// outcome. TryMerge exists for callers that want to treat the mismatch as
// an error condition to surface to operators.
var ErrTypeMismatch = fmt.Errorf("crdt: merge of mismatched variants")

// Merge combines a and b into their CRDT join. When both are the same
// Kind, the variant-specific merge applies (commutative, associative,
// idempotent). When Kind differs — the "critical correctness fix" of
// spec §4.3/§9 — neither side is silently discarded: the value with the
// later Timestamp wins, with the usual (time, replica id) tiebreak.
//
// Merge takes explicit timestamps because CrdtValue itself carries no
// timestamp (that lives one level up, in ReplicatedValue); ReplicatedValue.Merge
// is the caller that has both the values and their timestamps.
func Merge(a CrdtValue, aTS LamportClock, b CrdtValue, bTS LamportClock) CrdtValue {
	if a.Kind != b.Kind {
		if bTS.After(aTS) {
			return b
		}
		return a
	}
	switch a.Kind {
	case KindLWW:
		return CrdtValue{Kind: KindLWW, LWW: MergeLWW(a.LWW, b.LWW)}
	case KindGCounter:
		return CrdtValue{Kind: KindGCounter, GCounterInc: mergeMaxMap(a.GCounterInc, b.GCounterInc)}
	case KindPNCounter:
		return CrdtValue{
			Kind:         KindPNCounter,
			PNCounterInc: mergeMaxMap(a.PNCounterInc, b.PNCounterInc),
			PNCounterDec: mergeMaxMap(a.PNCounterDec, b.PNCounterDec),
		}
	case KindGSet:
		return CrdtValue{Kind: KindGSet, GSet: mergeSetUnion(a.GSet, b.GSet)}
	case KindORSet:
		return mergeORSet(a, b)
	case KindHash:
		return mergeHash(a, b)
	default:
		panic(fmt.Sprintf("crdt: unknown Kind %d", a.Kind))
	}
}

// TryMerge behaves like Merge but returns ErrTypeMismatch instead of
// silently applying the LWW fallback, for callers (e.g. an admin API) that
// must be told a conflict occurred.
func TryMerge(a CrdtValue, aTS LamportClock, b CrdtValue, bTS LamportClock) (CrdtValue, error) {
	if a.Kind != b.Kind {
		var winner CrdtValue
		if bTS.After(aTS) {
			winner = b
		} else {
			winner = a
		}
		return winner, ErrTypeMismatch
	}
	return Merge(a, aTS, b, bTS), nil
}

func mergeMaxMap(a, b map[uint64]uint64) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if cur, ok := out[k]; !ok || v > cur {
			out[k] = v
		}
	}
	return out
}

func mergeSetUnion(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func mergeORSet(a, b CrdtValue) CrdtValue {
	out := NewORSet()
	seenTags := make(map[uint64]struct{}, len(a.ORSetAdds)+len(b.ORSetAdds))
	for _, e := range a.ORSetAdds {
		if _, ok := seenTags[e.Tag]; !ok {
			seenTags[e.Tag] = struct{}{}
			out.ORSetAdds = append(out.ORSetAdds, e)
		}
	}
	for _, e := range b.ORSetAdds {
		if _, ok := seenTags[e.Tag]; !ok {
			seenTags[e.Tag] = struct{}{}
			out.ORSetAdds = append(out.ORSetAdds, e)
		}
	}
	for tag := range a.ORSetTombs {
		out.ORSetTombs[tag] = struct{}{}
	}
	for tag := range b.ORSetTombs {
		out.ORSetTombs[tag] = struct{}{}
	}
	return out
}

func mergeHash(a, b CrdtValue) CrdtValue {
	out := NewHash()
	for field, reg := range a.Hash {
		out.Hash[field] = reg
	}
	for field, reg := range b.Hash {
		if existing, ok := out.Hash[field]; ok {
			out.Hash[field] = MergeLWW(existing, reg)
		} else {
			out.Hash[field] = reg
		}
	}
	return out
}
