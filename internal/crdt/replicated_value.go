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

// ReplicatedValue wraps a CrdtValue with the metadata needed to replicate
// and expire it: an optional vector clock (populated under Causal
// consistency), an optional TTL, the Lamport timestamp of the last local or
// merged write, and an optional replication factor.
type ReplicatedValue struct {
	Crdt              CrdtValue
	VectorClock       *VectorClock
	ExpiryMs          *uint64
	Timestamp         LamportClock
	ReplicationFactor *uint8
}

// Merge combines two ReplicatedValues for the same key per spec §3:
//   - same Kind: CRDT-specific merge
//   - different Kind: keep the later-timestamped value (never silently
//     drop either side)
//   - ExpiryMs: max (the longer-lived TTL wins, matching LWW intuition
//     that a more recent write's intent should not be undone by staleness)
//   - VectorClock: pointwise max
//   - ReplicationFactor: max
func (rv ReplicatedValue) Merge(other ReplicatedValue) ReplicatedValue {
	merged := ReplicatedValue{
		Crdt:      Merge(rv.Crdt, rv.Timestamp, other.Crdt, other.Timestamp),
		Timestamp: laterOf(rv.Timestamp, other.Timestamp),
	}
	merged.ExpiryMs = maxExpiry(rv.ExpiryMs, other.ExpiryMs)
	merged.VectorClock = mergeVectorClockPtrs(rv.VectorClock, other.VectorClock)
	merged.ReplicationFactor = maxRF(rv.ReplicationFactor, other.ReplicationFactor)
	return merged
}

// TryMerge is the error-surfacing counterpart used by callers that need to
// detect a CRDT type mismatch explicitly.
func (rv ReplicatedValue) TryMerge(other ReplicatedValue) (ReplicatedValue, error) {
	crdtMerged, err := TryMerge(rv.Crdt, rv.Timestamp, other.Crdt, other.Timestamp)
	merged := ReplicatedValue{
		Crdt:              crdtMerged,
		Timestamp:         laterOf(rv.Timestamp, other.Timestamp),
		ExpiryMs:          maxExpiry(rv.ExpiryMs, other.ExpiryMs),
		VectorClock:       mergeVectorClockPtrs(rv.VectorClock, other.VectorClock),
		ReplicationFactor: maxRF(rv.ReplicationFactor, other.ReplicationFactor),
	}
	return merged, err
}

func laterOf(a, b LamportClock) LamportClock {
	if b.After(a) {
		return b
	}
	return a
}

func maxExpiry(a, b *uint64) *uint64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

func maxRF(a, b *uint8) *uint8 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

func mergeVectorClockPtrs(a, b *VectorClock) *VectorClock {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := b.Clone()
		return &c
	case b == nil:
		c := a.Clone()
		return &c
	default:
		m := MergeMax(*a, *b)
		return &m
	}
}

// ReplicationDelta is the unit of replication: a key's new ReplicatedValue
// plus the replica that produced it, pushed to the WAL, the segment
// buffer, and (eventually) a gossip transport.
type ReplicationDelta struct {
	Key           string
	Value         ReplicatedValue
	SourceReplica uint64
}
