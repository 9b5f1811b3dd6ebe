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

package objectstore

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisClient implements RedisClient over a plain map, the same
// narrow-fake style the ratelimiter persistence adapters use for their own
// Redis dependency.
type fakeRedisClient struct {
	data map[string][]byte
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{data: make(map[string][]byte)}
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	switch v := value.(type) {
	case []byte:
		f.data[key] = v
	case string:
		f.data[key] = []byte(v)
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedisClient) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx, "keys", pattern)
	prefix := pattern[:len(pattern)-1] // strip trailing '*'
	var keys []string
	for k := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	cmd.SetVal(keys)
	return cmd
}

func (f *fakeRedisClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "exists")
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestRedisGetPutRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRedis(newFakeRedisClient())

	_, err := r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Put(ctx, "a", []byte("hello")))
	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestRedisDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	r := NewRedis(newFakeRedisClient())

	require.NoError(t, r.Put(ctx, "a", []byte("x")))
	exists, err := r.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, r.Delete(ctx, "a"))
	exists, err = r.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisListByPrefix(t *testing.T) {
	ctx := context.Background()
	r := NewRedis(newFakeRedisClient())
	require.NoError(t, r.Put(ctx, "segments/a", []byte("1")))
	require.NoError(t, r.Put(ctx, "segments/b", []byte("2")))
	require.NoError(t, r.Put(ctx, "checkpoints/c", []byte("3")))

	keys, err := r.List(ctx, "segments/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"segments/a", "segments/b"}, keys)
}
