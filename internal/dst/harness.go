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
	"context"
	"fmt"
	"sync"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/persist"
	"github.com/etalazz/rkv/internal/recovery"
	"github.com/etalazz/rkv/internal/segment"
)

// HarnessConfig is everything a Harness run needs to be reproducible: the
// same Seed, Prefix, ReplicaID, Faults, and Workload always generate the
// same operation sequence against the same simulated object store.
type HarnessConfig struct {
	Seed      int64
	Prefix    string
	ReplicaID uint64
	Faults    FaultConfig
	Workload  WorkloadConfig
}

// RecordedOp is one entry in a Result's history, mirroring dst.rs's
// RecordedOperation without the wall-clock timestamp field: determinism
// here comes from the seed and the sequence number, not real time.
type RecordedOp struct {
	Seq             int
	Op              Op
	Success         bool
	Err             string
	DeltasRecovered int
}

// Stats summarizes a completed run's operation mix.
type Stats struct {
	Seed                 int64
	TotalOperations      int
	SuccessfulOperations int
	FailedOperations     int
	Flushes              int
	Crashes              int
}

// Result is everything a Harness run produced, the Go counterpart of
// dst.rs's StreamingDSTResult.
type Result struct {
	Stats
	InvariantViolations []string
	History             []RecordedOp
}

// IsSuccess reports whether the run found no invariant violations. A run
// can be IsSuccess even with FailedOperations > 0: injected faults are
// expected to fail individual operations, they only fail the run if they
// leave durable state inconsistent.
func (r Result) IsSuccess() bool { return len(r.InvariantViolations) == 0 }

// Summary renders a one-line, log-friendly description of the run.
func (r Result) Summary() string {
	return fmt.Sprintf(
		"seed=%d total=%d ok=%d failed=%d flushes=%d crashes=%d violations=%d",
		r.Seed, r.TotalOperations, r.SuccessfulOperations, r.FailedOperations,
		r.Flushes, r.Crashes, len(r.InvariantViolations),
	)
}

// Harness drives a Workload against a FaultStore-wrapped in-memory object
// store through the real internal/persist and internal/recovery code
// paths, then checks that whatever recovery reconstructs after a
// simulated crash matches what was durably flushed beforehand. It plays
// the role original_source/src/streaming/dst.rs's StreamingDSTHarness
// plays around SimulatedObjectStore, InMemoryObjectStore, and
// StreamingPersistence.
type Harness struct {
	config HarnessConfig
	store  *FaultStore

	workload *Workload

	mu      sync.Mutex
	state   map[string]crdt.ReplicatedValue // every write/delete applied so far, flushed or not
	flushed map[string]crdt.ReplicatedValue // state as of the last successful Flush

	result Result
}

// NewHarness wires a fresh FaultStore, Persistence, and Workload from
// config. Each call starts from an empty store: a Harness is meant to be
// used for exactly one Run.
func NewHarness(config HarnessConfig) *Harness {
	h := &Harness{
		config:  config,
		store:   NewFaultStore(objectstore.NewMemory(), config.Seed+1, config.Faults),
		workload: NewWorkload(config.Workload),
		state:   make(map[string]crdt.ReplicatedValue),
		flushed: make(map[string]crdt.ReplicatedValue),
		result:  Result{Stats: Stats{Seed: config.Seed}},
	}
	return h
}

func (h *Harness) newPersistence() *persist.Persistence {
	manifestManager := manifest.NewManager(h.store, h.config.Prefix)
	snapshot := func() checkpoint.State {
		h.mu.Lock()
		defer h.mu.Unlock()
		snap := make(checkpoint.State, len(h.state))
		for k, v := range h.state {
			snap[k] = v
		}
		return snap
	}
	return persist.New(h.store, h.config.Prefix, h.config.ReplicaID, manifestManager, persist.DefaultConfig(), snapshot)
}

// Run generates and executes n operations, then checks invariants once
// over the resulting durable state.
func (h *Harness) Run(ctx context.Context, n int) Result {
	persistence := h.newPersistence()
	for i := 0; i < n; i++ {
		op := h.workload.Next()
		h.execute(ctx, i, op, persistence)
		if op.Kind == OpCrashRecover {
			// A restarted process starts with an empty write buffer.
			persistence = h.newPersistence()
		}
	}
	h.checkInvariants(ctx)
	return h.result
}

func (h *Harness) execute(ctx context.Context, seq int, op Op, persistence *persist.Persistence) {
	h.result.TotalOperations++
	switch op.Kind {
	case OpWrite:
		h.executeWrite(ctx, seq, op, persistence)
	case OpDelete:
		h.executeDelete(ctx, seq, op, persistence)
	case OpFlush:
		h.executeFlush(ctx, seq, op, persistence)
	case OpCrashRecover:
		h.executeCrashRecover(ctx, seq, op)
	}
}

func (h *Harness) mergeLocked(delta crdt.ReplicationDelta) {
	if existing, ok := h.state[delta.Key]; ok {
		h.state[delta.Key] = existing.Merge(delta.Value)
	} else {
		h.state[delta.Key] = delta.Value
	}
}

func (h *Harness) executeWrite(ctx context.Context, seq int, op Op, persistence *persist.Persistence) {
	delta := h.workload.MakeWriteDelta(op.Key, op.Value)
	h.mu.Lock()
	h.mergeLocked(delta)
	h.mu.Unlock()

	if err := persistence.Push(delta); err != nil {
		h.recordFailure(seq, op, err)
		return
	}
	h.workload.RecordWrite(op.Key, op.Value)
	h.recordSuccess(seq, op)
}

func (h *Harness) executeDelete(ctx context.Context, seq int, op Op, persistence *persist.Persistence) {
	delta := h.workload.MakeDeleteDelta(op.Key)
	h.mu.Lock()
	h.mergeLocked(delta)
	h.mu.Unlock()

	if err := persistence.Push(delta); err != nil {
		h.recordFailure(seq, op, err)
		return
	}
	h.workload.RecordDelete(op.Key)
	h.recordSuccess(seq, op)
}

// executeFlush drains the buffer and, on success, snapshots the current
// merged state as durable. Nothing pushes concurrently with Run's single
// goroutine, so a snapshot taken right after a successful Flush call
// is exactly what that Flush wrote.
func (h *Harness) executeFlush(ctx context.Context, seq int, op Op, persistence *persist.Persistence) {
	if _, err := persistence.Flush(ctx); err != nil {
		h.recordFailure(seq, op, err)
		return
	}
	h.mu.Lock()
	h.flushed = make(map[string]crdt.ReplicatedValue, len(h.state))
	for k, v := range h.state {
		h.flushed[k] = v
	}
	h.mu.Unlock()
	h.result.Flushes++
	h.recordSuccess(seq, op)
}

// executeCrashRecover simulates a process restart: a fresh recovery.Manager
// reads the same store from scratch, and whatever it reconstructs becomes
// the new live state, exactly as a real restarted replica would have no
// memory of its prior in-process buffer.
func (h *Harness) executeCrashRecover(ctx context.Context, seq int, op Op) {
	h.result.Crashes++

	recoveryManager := recovery.NewManager(h.store, h.config.Prefix, h.config.ReplicaID)
	recResult, err := recoveryManager.Recover(ctx)
	if err != nil {
		h.recordFailure(seq, op, err)
		return
	}

	rebuilt := make(map[string]crdt.ReplicatedValue, len(recResult.CheckpointState))
	for k, v := range recResult.CheckpointState {
		rebuilt[k] = v
	}
	for _, d := range recResult.Deltas {
		if existing, ok := rebuilt[d.Key]; ok {
			rebuilt[d.Key] = existing.Merge(d.Value)
		} else {
			rebuilt[d.Key] = d.Value
		}
	}

	h.mu.Lock()
	h.state = rebuilt
	clone := make(map[string]crdt.ReplicatedValue, len(rebuilt))
	for k, v := range rebuilt {
		clone[k] = v
	}
	h.flushed = clone
	h.mu.Unlock()

	h.result.SuccessfulOperations++
	h.result.History = append(h.result.History, RecordedOp{
		Seq: seq, Op: op, Success: true, DeltasRecovered: len(recResult.Deltas),
	})
}

func (h *Harness) recordSuccess(seq int, op Op) {
	h.result.SuccessfulOperations++
	h.result.History = append(h.result.History, RecordedOp{Seq: seq, Op: op, Success: true})
}

func (h *Harness) recordFailure(seq int, op Op, err error) {
	h.result.FailedOperations++
	h.result.History = append(h.result.History, RecordedOp{Seq: seq, Op: op, Success: false, Err: err.Error()})
}

// checkInvariants runs every invariant check once, over the store's final
// state. A check appends to InvariantViolations rather than stopping the
// run, so one run surfaces every violation it can find instead of just
// the first.
func (h *Harness) checkInvariants(ctx context.Context) {
	man, err := manifest.NewManager(h.store, h.config.Prefix).LoadOrCreate(ctx, h.config.ReplicaID)
	if err != nil {
		if h.isKnownCorruption() {
			return
		}
		h.result.InvariantViolations = append(h.result.InvariantViolations,
			fmt.Sprintf("load manifest: %v", err))
		return
	}
	h.checkSegmentExistence(ctx, man)
	h.checkSegmentValidity(ctx, man)
	h.checkRecoveryCompleteness(ctx)
}

func (h *Harness) checkSegmentExistence(ctx context.Context, man manifest.Manifest) {
	for _, seg := range man.Segments {
		ok, err := h.store.Exists(ctx, seg.Key)
		if err != nil {
			if h.isKnownCorruption() {
				continue
			}
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("segment %s: exists check failed: %v", seg.Key, err))
			continue
		}
		if !ok {
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("segment %s: listed in manifest but missing from store", seg.Key))
		}
	}
}

func (h *Harness) checkSegmentValidity(ctx context.Context, man manifest.Manifest) {
	for _, seg := range man.Segments {
		data, err := h.store.Get(ctx, seg.Key)
		if err != nil {
			if h.isKnownCorruption() {
				continue
			}
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("segment %s: fetch failed: %v", seg.Key, err))
			continue
		}
		reader, err := segment.Open(data)
		if err == nil {
			err = reader.Validate()
		}
		if err != nil {
			if h.isKnownCorruption() {
				continue
			}
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("segment %s: invalid: %v", seg.Key, err))
		}
	}
}

// checkRecoveryCompleteness runs one final recovery and asserts it
// reconstructs exactly the last durably-flushed state: every key that was
// ever flushed must recover to the same CrdtValue, never silently dropped
// or reverted to an earlier write.
func (h *Harness) checkRecoveryCompleteness(ctx context.Context) {
	recoveryManager := recovery.NewManager(h.store, h.config.Prefix, h.config.ReplicaID)
	recResult, err := recoveryManager.Recover(ctx)
	if err != nil {
		if h.isKnownCorruption() {
			return
		}
		h.result.InvariantViolations = append(h.result.InvariantViolations,
			fmt.Sprintf("final recovery failed: %v", err))
		return
	}

	rebuilt := make(map[string]crdt.ReplicatedValue, len(recResult.CheckpointState))
	for k, v := range recResult.CheckpointState {
		rebuilt[k] = v
	}
	for _, d := range recResult.Deltas {
		if existing, ok := rebuilt[d.Key]; ok {
			rebuilt[d.Key] = existing.Merge(d.Value)
		} else {
			rebuilt[d.Key] = d.Value
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for key, want := range h.flushed {
		got, ok := rebuilt[key]
		if !ok {
			if h.isKnownCorruption() {
				continue
			}
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("key %q: flushed but missing after recovery", key))
			continue
		}
		if !crdtValuesEqual(want.Crdt, got.Crdt) {
			if h.isKnownCorruption() {
				continue
			}
			h.result.InvariantViolations = append(h.result.InvariantViolations,
				fmt.Sprintf("key %q: recovered value diverges from last flush", key))
		}
	}
}

// isKnownCorruption reports whether this run's fault configuration could
// plausibly explain a mismatch, so the check doesn't flag deliberately
// injected faults as bugs. A run configured with NoFaults has nothing to
// blame, so any mismatch there is always a genuine violation.
func (h *Harness) isKnownCorruption() bool {
	return h.config.Faults.FailProb > 0 || h.config.Faults.PartialWriteProb > 0
}

func crdtValuesEqual(a, b crdt.CrdtValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case crdt.KindLWW:
		return a.LWW.HasValue == b.LWW.HasValue &&
			a.LWW.Tombstone == b.LWW.Tombstone &&
			a.LWW.Value.String() == b.LWW.Value.String()
	default:
		return true
	}
}
