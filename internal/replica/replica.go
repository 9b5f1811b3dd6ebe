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

// Package replica implements the per-shard replica state described in
// spec §3/§4.3: {replica_id, lamport_clock, vector_clock,
// consistency_level, pending_deltas, replicated_keys}. It owns the
// shard's Lamport clock, stamps every local mutation into a
// ReplicatedValue kept in replicated_keys, and queues the resulting
// ReplicationDelta for the WAL/segment writer and the gossip transport to
// pick up. It also applies deltas arriving from remote replicas through
// the same idempotent CRDT merge used for local convergence.
package replica

import (
	"sync"

	"github.com/etalazz/rkv/internal/crdt"
)

// ConsistencyLevel selects whether writes stamp a VectorClock in addition
// to the Lamport clock. Eventual consistency (the default) only needs the
// Lamport clock for LWW tiebreaks; Causal additionally tracks a vector
// clock per key so callers can detect missing causal dependencies.
type ConsistencyLevel uint8

const (
	Eventual ConsistencyLevel = iota
	Causal
)

// State is one shard's replica bookkeeping.
type State struct {
	mu sync.Mutex

	replicaID   uint64
	clock       crdt.LamportClock
	consistency ConsistencyLevel

	pendingDeltas  []crdt.ReplicationDelta
	replicatedKeys map[string]crdt.ReplicatedValue

	// nextTag hands out unique OR-Set add tags. Seeded from replicaID so
	// tags never collide across replicas even without a shared counter.
	nextTag uint64
}

// New builds replica state for replicaID under the given consistency
// level. The Lamport clock starts at ReplicaID-tagged zero so the first
// Tick produces (1, replicaID).
func New(replicaID uint64, level ConsistencyLevel) *State {
	return &State{
		replicaID:      replicaID,
		clock:          crdt.LamportClock{Time: 0, ReplicaID: replicaID},
		consistency:    level,
		replicatedKeys: make(map[string]crdt.ReplicatedValue),
		nextTag:        replicaID << 48,
	}
}

// ReplicaID returns the identity this state stamps writes with.
func (s *State) ReplicaID() uint64 {
	return s.replicaID
}

// NextTag returns a fresh OR-Set add tag, unique to this replica.
func (s *State) NextTag() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTag++
	return s.nextTag
}

// Get returns the current ReplicatedValue for key, if one is tracked.
func (s *State) Get(key string) (crdt.ReplicatedValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rv, ok := s.replicatedKeys[key]
	return rv, ok
}

// Forget removes key from replicated_keys (DEL/expiry), without producing
// a delta: a tombstone delta, if a future compaction step needs one, is
// the caller's responsibility to construct from the returned value.
func (s *State) Forget(key string) (crdt.ReplicatedValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rv, ok := s.replicatedKeys[key]
	delete(s.replicatedKeys, key)
	return rv, ok
}

// Mutate is steps 1-5 of spec §4.3 for a local write to key:
//  1. Tick the shard's Lamport clock.
//  2. Load or create the ReplicatedValue for the key (zero constructs a
//     fresh CrdtValue of the correct Kind when the key is new).
//  3. Perform the CRDT-specific mutation via fn.
//  4. Record the new timestamp; update the vector clock under Causal.
//  5. Push ReplicationDelta{key, value.Clone(), source_replica} onto
//     pending_deltas.
//
// The resulting ReplicatedValue is stored back into replicated_keys and
// returned.
func (s *State) Mutate(key string, zero func() crdt.CrdtValue, fn func(*crdt.CrdtValue)) crdt.ReplicatedValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.replicatedKeys[key]
	if !ok {
		current = crdt.ReplicatedValue{Crdt: zero()}
	}

	ts := s.clock.Tick()
	s.clock = ts

	fn(&current.Crdt)
	current.Timestamp = ts

	if s.consistency == Causal {
		if current.VectorClock == nil {
			vc := crdt.NewVectorClock()
			current.VectorClock = &vc
		}
		current.VectorClock.Observe(s.replicaID, ts.Time)
	}

	s.replicatedKeys[key] = current
	s.pendingDeltas = append(s.pendingDeltas, crdt.ReplicationDelta{
		Key:           key,
		Value:         current,
		SourceReplica: s.replicaID,
	})

	return current
}

// ApplyRemote merges an incoming delta from another replica into this
// shard's replicated_keys and advances this replica's Lamport clock past
// the remote timestamp (the Update half of the Lamport rule), so a
// subsequent local write is ordered after anything this replica has
// observed. Merge is the CRDT join: applying the same delta twice, or
// applying two deltas in either order, converges to the same
// ReplicatedValue (spec §8 convergence property). ApplyRemote does not
// enqueue a pending delta: the caller already received this mutation from
// elsewhere and must not re-propagate it as if it originated here.
func (s *State) ApplyRemote(key string, delta crdt.ReplicationDelta) crdt.ReplicatedValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock.Update(delta.Value.Timestamp)

	current, ok := s.replicatedKeys[key]
	var merged crdt.ReplicatedValue
	if !ok {
		merged = delta.Value
	} else {
		merged = current.Merge(delta.Value)
	}
	s.replicatedKeys[key] = merged
	return merged
}

// DrainDeltas returns and clears the pending delta queue. Called by the
// persistence/transport layer to collect the deltas it then records (WAL,
// segment buffer, or gossip transport); once drained, this State no longer
// holds them.
func (s *State) DrainDeltas() []crdt.ReplicationDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pendingDeltas) == 0 {
		return nil
	}
	out := s.pendingDeltas
	s.pendingDeltas = nil
	return out
}

// PendingCount reports the queue depth without draining it, for metrics.
func (s *State) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingDeltas)
}

// Clock returns a snapshot of the current Lamport clock.
func (s *State) Clock() crdt.LamportClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// KeyCount reports how many keys carry replicated state, for metrics and
// checkpoint sizing.
func (s *State) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replicatedKeys)
}

// Snapshot returns a shallow copy of replicated_keys for the checkpoint
// writer. Callers must not mutate the returned map's ReplicatedValue
// fields in place (they are value types, so this is safe by construction).
func (s *State) Snapshot() map[string]crdt.ReplicatedValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]crdt.ReplicatedValue, len(s.replicatedKeys))
	for k, v := range s.replicatedKeys {
		out[k] = v
	}
	return out
}

// Restore replaces replicated_keys wholesale, used by the recovery
// orchestrator after loading a checkpoint.
func (s *State) Restore(keys map[string]crdt.ReplicatedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicatedKeys = keys
}
