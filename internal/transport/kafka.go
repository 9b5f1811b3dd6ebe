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

package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/wire"
)

// KafkaProducer is a minimal abstraction over a Kafka client, deliberately
// not tied to any specific library (no repo in this codebase's dependency
// set imports a concrete Kafka client; enable.idempotence=true and
// acks=all are assumed of whatever implementation is wired in).
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaConsumer is the mirror image of KafkaProducer: Consume blocks,
// invoking handler for each message's key/value until ctx is cancelled
// or the underlying client returns a fatal error.
type KafkaConsumer interface {
	Consume(ctx context.Context, topic string, handler func(key, value []byte) error) error
}

// deltaMessage is the JSON envelope published to Kafka, matching the
// teacher's CommitMessage shape (plain JSON metadata fields) with the
// delta's CRDT payload carried as the already-grounded internal/wire
// binary encoding rather than re-deriving a JSON shape for CrdtValue's
// tagged-union fields; encoding/json marshals a []byte field as base64
// automatically, so Payload stays opaque to any JSON-level inspection.
type deltaMessage struct {
	Key           string `json:"key"`
	SourceReplica uint64 `json:"source_replica"`
	Payload       []byte `json:"payload"`
}

// KafkaTransport gossips deltas over a single Kafka topic.
type KafkaTransport struct {
	producer KafkaProducer
	consumer KafkaConsumer
	topic    string
}

// NewKafkaTransport returns a DeltaTransport backed by a Kafka-shaped
// producer/consumer pair on the given topic.
func NewKafkaTransport(producer KafkaProducer, consumer KafkaConsumer, topic string) *KafkaTransport {
	return &KafkaTransport{producer: producer, consumer: consumer, topic: topic}
}

// Publish JSON-envelopes delta and produces it keyed by the delta's key,
// so a partitioned topic preserves per-key ordering.
func (t *KafkaTransport) Publish(ctx context.Context, delta crdt.ReplicationDelta) error {
	msg := deltaMessage{
		Key:           delta.Key,
		SourceReplica: delta.SourceReplica,
		Payload:       wire.EncodeReplicatedValue(delta.Value),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal kafka message: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := t.producer.Produce(ctx, t.topic, []byte(delta.Key), body, headers); err != nil {
		return fmt.Errorf("transport: kafka produce key=%s: %w", delta.Key, err)
	}
	metrics.ObserveDeltaPublished()
	return nil
}

// Subscribe blocks, decoding and dispatching every message consumed from
// the configured topic until ctx is cancelled.
func (t *KafkaTransport) Subscribe(ctx context.Context, handler DeltaHandler) error {
	return t.consumer.Consume(ctx, t.topic, func(_ []byte, rawValue []byte) error {
		var msg deltaMessage
		if err := json.Unmarshal(rawValue, &msg); err != nil {
			return fmt.Errorf("transport: unmarshal kafka message: %w", err)
		}
		replicatedValue, err := wire.DecodeReplicatedValue(msg.Payload)
		if err != nil {
			return fmt.Errorf("transport: decode delta payload: %w", err)
		}
		metrics.ObserveDeltaReceived()
		handler(crdt.ReplicationDelta{Key: msg.Key, Value: replicatedValue, SourceReplica: msg.SourceReplica})
		return nil
	})
}
