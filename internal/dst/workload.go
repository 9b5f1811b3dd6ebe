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

package dst

import (
	"fmt"
	"math/rand"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/pkg/sds"
)

// OpKind names the operation a Workload generated, mirroring
// original_source/src/streaming/dst.rs's StreamingOperation enum.
type OpKind int

const (
	OpWrite OpKind = iota
	OpDelete
	OpFlush
	OpCrashRecover
)

func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	case OpFlush:
		return "flush"
	case OpCrashRecover:
		return "crash_recover"
	default:
		return "unknown"
	}
}

// Op is one generated operation.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
}

// WorkloadConfig shapes what Workload.Next generates, mirroring
// StreamingDSTConfig's probability knobs.
type WorkloadConfig struct {
	Seed             int64
	ReplicaID        uint64
	KeySpace         int     // number of distinct keys cycled through
	FlushProbability float64 // chance of OpFlush vs. a write/delete
	CrashProbability float64 // chance of OpCrashRecover
	DeleteProbability float64 // chance a write/delete roll produces a delete
}

// DefaultWorkloadConfig mirrors StreamingDSTConfig::default().
func DefaultWorkloadConfig(seed int64) WorkloadConfig {
	return WorkloadConfig{
		Seed:              seed,
		ReplicaID:         1,
		KeySpace:          100,
		FlushProbability:  0.1,
		CrashProbability:  0.01,
		DeleteProbability: 0.1,
	}
}

// Workload generates a deterministic operation sequence and tracks the
// ground truth of what should end up durable, the same shadow-state role
// StreamingWorkload plays in the original harness.
type Workload struct {
	rng    *rand.Rand
	config WorkloadConfig
	clock  crdt.LamportClock
	opSeq  uint64

	// expected is the ground truth: key -> last value written, or nil if
	// the key's last operation was a delete. Updated once the harness's
	// Persistence.Push accepts the operation; a pushed write may not have
	// been flushed yet.
	expected map[string]*string
}

// NewWorkload returns a Workload seeded from config.Seed.
func NewWorkload(config WorkloadConfig) *Workload {
	return &Workload{
		rng:      rand.New(rand.NewSource(config.Seed)),
		config:   config,
		clock:    crdt.LamportClock{ReplicaID: config.ReplicaID},
		expected: make(map[string]*string),
	}
}

// Next generates the next operation in the sequence.
func (w *Workload) Next() Op {
	roll := w.rng.Float64()
	switch {
	case roll < w.config.CrashProbability:
		return Op{Kind: OpCrashRecover}
	case roll < w.config.CrashProbability+w.config.FlushProbability:
		return Op{Kind: OpFlush}
	default:
		key := fmt.Sprintf("key_%04d", w.rng.Intn(w.config.KeySpace))
		if w.rng.Float64() < w.config.DeleteProbability {
			return Op{Kind: OpDelete, Key: key}
		}
		w.opSeq++
		return Op{Kind: OpWrite, Key: key, Value: fmt.Sprintf("value_%d", w.opSeq)}
	}
}

// NextTimestamp ticks and returns the workload's Lamport clock, stamping
// every generated delta with a strictly increasing local time.
func (w *Workload) NextTimestamp() crdt.LamportClock {
	return w.clock.Tick()
}

// MakeWriteDelta builds the ReplicationDelta for a write operation.
func (w *Workload) MakeWriteDelta(key, value string) crdt.ReplicationDelta {
	ts := w.NextTimestamp()
	reg := crdt.Set(sds.FromString(value), ts)
	return crdt.ReplicationDelta{
		Key:           key,
		Value:         crdt.ReplicatedValue{Crdt: crdt.NewLWW(reg), Timestamp: ts},
		SourceReplica: w.config.ReplicaID,
	}
}

// MakeDeleteDelta builds the ReplicationDelta for a delete (tombstone).
func (w *Workload) MakeDeleteDelta(key string) crdt.ReplicationDelta {
	ts := w.NextTimestamp()
	reg := crdt.Delete(ts)
	return crdt.ReplicationDelta{
		Key:           key,
		Value:         crdt.ReplicatedValue{Crdt: crdt.NewLWW(reg), Timestamp: ts},
		SourceReplica: w.config.ReplicaID,
	}
}

// RecordWrite marks key as last written with value in the ground truth.
func (w *Workload) RecordWrite(key, value string) {
	v := value
	w.expected[key] = &v
}

// RecordDelete marks key as last deleted in the ground truth.
func (w *Workload) RecordDelete(key string) {
	w.expected[key] = nil
}

// Expected returns the current ground-truth state: key -> last pushed
// value, or a nil pointer for a key whose last pushed operation deleted
// it. Keys never written are simply absent.
func (w *Workload) Expected() map[string]*string {
	return w.expected
}
