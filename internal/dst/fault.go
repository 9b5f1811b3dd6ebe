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

// Package dst is the engine's deterministic simulation testing harness:
// a seeded random workload generator driving internal/persist and
// internal/recovery against a fault-injecting internal/objectstore.Store,
// with ground-truth bookkeeping and invariant checks run after the fact.
// A failed invariant reports the seed that produced it so the run is
// reproducible.
package dst

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/etalazz/rkv/internal/objectstore"
)

// ErrInjectedFault is returned by FaultStore operations chosen to fail.
var ErrInjectedFault = errors.New("dst: injected fault")

// FaultConfig controls how often FaultStore misbehaves. All probabilities
// are independent per call and evaluated against a seeded *rand.Rand, so
// the same seed always produces the same sequence of faults.
type FaultConfig struct {
	// FailProb is the chance any Get/Put/Delete/List/Exists call fails
	// outright with ErrInjectedFault.
	FailProb float64
	// PartialWriteProb is the chance a Put succeeds but truncates data to
	// a random prefix, simulating a crash mid-write.
	PartialWriteProb float64
}

// NoFaults returns a FaultConfig that never misbehaves, for establishing a
// baseline run before turning on chaos.
func NoFaults() FaultConfig { return FaultConfig{} }

// Calm returns a FaultConfig with light, realistic fault rates.
func Calm() FaultConfig {
	return FaultConfig{FailProb: 0.01, PartialWriteProb: 0.005}
}

// Chaos returns a FaultConfig with aggressive fault rates, for stress runs
// whose only goal is finding violated invariants.
func Chaos() FaultConfig {
	return FaultConfig{FailProb: 0.1, PartialWriteProb: 0.05}
}

// FaultStore wraps an objectstore.Store and deterministically injects
// failures and partial writes driven by a seeded RNG, the same shadow-state
// fault-injection role original_source/src/streaming/dst.rs's
// SimulatedObjectStore plays around an InMemoryObjectStore — reconstructed
// here since that type's own definition is outside this codebase's
// retrieval slice, but its call sites (store_config.partial_write_prob,
// a seed separate from the workload's own) are enough to ground the shape.
type FaultStore struct {
	inner  objectstore.Store
	rng    *rand.Rand
	config FaultConfig

	injectedFailures int
	partialWrites    int
}

// NewFaultStore wraps inner with fault injection seeded by seed. Using a
// seed distinct from the workload's own seed (conventionally seed+1, as
// the original harness does) keeps the two random streams independent so
// changing one doesn't silently perturb the other.
func NewFaultStore(inner objectstore.Store, seed int64, config FaultConfig) *FaultStore {
	return &FaultStore{inner: inner, rng: rand.New(rand.NewSource(seed)), config: config}
}

// Stats reports how many operations this store has perturbed so far.
type FaultStats struct {
	InjectedFailures int
	PartialWrites    int
}

func (f *FaultStore) Stats() FaultStats {
	return FaultStats{InjectedFailures: f.injectedFailures, PartialWrites: f.partialWrites}
}

func (f *FaultStore) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	return f.rng.Float64() < p
}

func (f *FaultStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.roll(f.config.FailProb) {
		f.injectedFailures++
		return nil, fmt.Errorf("%w: get %s", ErrInjectedFault, key)
	}
	return f.inner.Get(ctx, key)
}

func (f *FaultStore) Put(ctx context.Context, key string, data []byte) error {
	if f.roll(f.config.FailProb) {
		f.injectedFailures++
		return fmt.Errorf("%w: put %s", ErrInjectedFault, key)
	}
	if f.roll(f.config.PartialWriteProb) && len(data) > 0 {
		f.partialWrites++
		cut := f.rng.Intn(len(data))
		data = data[:cut]
	}
	return f.inner.Put(ctx, key, data)
}

func (f *FaultStore) Delete(ctx context.Context, key string) error {
	if f.roll(f.config.FailProb) {
		f.injectedFailures++
		return fmt.Errorf("%w: delete %s", ErrInjectedFault, key)
	}
	return f.inner.Delete(ctx, key)
}

func (f *FaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	if f.roll(f.config.FailProb) {
		f.injectedFailures++
		return nil, fmt.Errorf("%w: list %s", ErrInjectedFault, prefix)
	}
	return f.inner.List(ctx, prefix)
}

func (f *FaultStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.roll(f.config.FailProb) {
		f.injectedFailures++
		return false, fmt.Errorf("%w: exists %s", ErrInjectedFault, key)
	}
	return f.inner.Exists(ctx, key)
}
