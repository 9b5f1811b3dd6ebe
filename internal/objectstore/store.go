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

// Package objectstore is the single I/O abstraction internal/manifest,
// internal/persist, internal/compact, and internal/recovery go through to
// read and write segments, checkpoints, and the manifest itself. Every
// durability component above this layer works purely in terms of keys and
// byte slices, so swapping a local filesystem for S3, Redis, or Postgres
// never touches recovery or compaction logic, only which Store a caller
// constructs.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist.
var ErrNotFound = errors.New("objectstore: key not found")

// Store is the minimal durable key/blob interface every backend
// implements. All methods are safe for concurrent use.
type Store interface {
	// Get returns the bytes stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes data at key, overwriting any existing value.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Exists reports whether key is present without transferring its value.
	Exists(ctx context.Context, key string) (bool, error)
}
