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

// Package crdt implements the replication lattice: Lamport and vector
// clocks, the CRDT value variants (LWW register, G/PN counter, G/OR set,
// LWW hash), and the merge functions that give the system its causal +
// eventual consistency (never strict linearizability, by design — see
// spec Non-goals).
package crdt

// LamportClock is totally ordered by (Time, ReplicaID). Tick advances Time;
// Update folds in an observed remote clock.
type LamportClock struct {
	Time      uint64
	ReplicaID uint64
}

// Tick increments the clock's logical time and returns the new value.
func (c *LamportClock) Tick() LamportClock {
	c.Time++
	return *c
}

// Update advances the clock so it is causally after other: Time becomes
// max(Time, other.Time)+1. ReplicaID never changes; it identifies this
// replica, not the observed one.
func (c *LamportClock) Update(other LamportClock) {
	if other.Time > c.Time {
		c.Time = other.Time
	}
	c.Time++
}

// Less reports whether c sorts strictly before other: by Time, then by
// ReplicaID as the deterministic tiebreak (§9 Open Question: retained).
func (c LamportClock) Less(other LamportClock) bool {
	if c.Time != other.Time {
		return c.Time < other.Time
	}
	return c.ReplicaID < other.ReplicaID
}

// After reports whether c sorts strictly after other.
func (c LamportClock) After(other LamportClock) bool {
	return other.Less(c)
}

// VectorClock tracks, per replica id, the highest Lamport time this replica
// has observed from that replica — used only when consistency_level is
// Causal (spec §3, ShardReplicaState).
type VectorClock struct {
	Entries map[uint64]uint64
}

// NewVectorClock returns an empty vector clock.
func NewVectorClock() VectorClock {
	return VectorClock{Entries: make(map[uint64]uint64)}
}

// Observe records that replicaID has been seen at time t, keeping the max.
func (v *VectorClock) Observe(replicaID, t uint64) {
	if v.Entries == nil {
		v.Entries = make(map[uint64]uint64)
	}
	if cur, ok := v.Entries[replicaID]; !ok || t > cur {
		v.Entries[replicaID] = t
	}
}

// MergeMax returns the pointwise max of two vector clocks (used by
// ReplicatedValue.Merge per spec §3).
func MergeMax(a, b VectorClock) VectorClock {
	out := NewVectorClock()
	for k, v := range a.Entries {
		out.Entries[k] = v
	}
	for k, v := range b.Entries {
		if cur, ok := out.Entries[k]; !ok || v > cur {
			out.Entries[k] = v
		}
	}
	return out
}

// Clone returns an independent copy.
func (v VectorClock) Clone() VectorClock {
	out := NewVectorClock()
	for k, val := range v.Entries {
		out.Entries[k] = val
	}
	return out
}
