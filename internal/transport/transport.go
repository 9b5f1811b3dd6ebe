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

// Package transport carries ReplicationDeltas between replicas: a
// DeltaTransport is how a shard applying a local write gets that delta
// to every other replica, independent of how each replica then persists
// or merges it. Two backends are provided, the same way the teacher's
// persistence layer offers interchangeable Redis and Kafka adapters
// behind one interface: Redis Pub/Sub for a single low-latency process
// group, and a Kafka-shaped producer/consumer pair for a durable,
// replayable broker-backed deployment.
package transport

import (
	"context"
	"errors"

	"github.com/etalazz/rkv/internal/crdt"
)

// ErrTransportClosed is returned by RedisTransport.Subscribe when its
// subscription channel closes, so callers stop waiting on a dead connection.
var ErrTransportClosed = errors.New("transport: closed")

// DeltaHandler processes one delta received from a remote replica. It
// should apply the delta (typically via ReplicatedValue.Merge) rather
// than overwrite local state outright.
type DeltaHandler func(crdt.ReplicationDelta)

// DeltaTransport moves ReplicationDeltas between replicas. Subscribe
// blocks, invoking handler for each delta received, until ctx is
// cancelled or a fatal transport error occurs.
type DeltaTransport interface {
	Publish(ctx context.Context, delta crdt.ReplicationDelta) error
	Subscribe(ctx context.Context, handler DeltaHandler) error
}
