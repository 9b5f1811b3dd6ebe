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
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/wire"
)

// PubSubClient is the minimal surface RedisTransport needs from a Redis
// client, narrowed the same way internal/objectstore's RedisClient is so
// tests can substitute a channel-backed fake instead of a live server.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) PubSubSubscription
}

// PubSubSubscription is the subset of *redis.PubSub that RedisTransport
// drives: a channel of inbound messages and a way to tear it down.
type PubSubSubscription interface {
	Channel() <-chan *redis.Message
	Close() error
}

// GoRedisPubSubClient adapts a *redis.Client to PubSubClient.
type GoRedisPubSubClient struct {
	Client *redis.Client
}

func (c *GoRedisPubSubClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	return c.Client.Publish(ctx, channel, message)
}

func (c *GoRedisPubSubClient) Subscribe(ctx context.Context, channels ...string) PubSubSubscription {
	return c.Client.Subscribe(ctx, channels...)
}

// RedisTransport gossips deltas over a single Redis Pub/Sub channel,
// wire-encoding each delta with internal/wire's binary codec, the same
// codec segments and the WAL use, rather than re-deriving a second
// on-the-wire format for the same payload.
type RedisTransport struct {
	client  PubSubClient
	channel string
}

// NewRedisTransport returns a DeltaTransport backed by Redis Pub/Sub on
// the given channel name.
func NewRedisTransport(client PubSubClient, channel string) *RedisTransport {
	return &RedisTransport{client: client, channel: channel}
}

// Publish wire-encodes delta and publishes it to the configured channel.
func (t *RedisTransport) Publish(ctx context.Context, delta crdt.ReplicationDelta) error {
	data := wire.EncodeDelta(delta)
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("transport: redis publish: %w", err)
	}
	metrics.ObserveDeltaPublished()
	return nil
}

// Subscribe blocks, decoding and dispatching every message received on
// the configured channel until ctx is cancelled.
func (t *RedisTransport) Subscribe(ctx context.Context, handler DeltaHandler) error {
	sub := t.client.Subscribe(ctx, t.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrTransportClosed
			}
			delta, err := wire.DecodeDelta([]byte(msg.Payload))
			if err != nil {
				return fmt.Errorf("transport: decode delta: %w", err)
			}
			metrics.ObserveDeltaReceived()
			handler(delta)
		}
	}
}
