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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS rkv_objects (
//   key  TEXT PRIMARY KEY,
//   data BYTEA NOT NULL
// );
//
// Writes use INSERT ... ON CONFLICT (key) DO UPDATE so Put is idempotent
// regardless of whether key already exists, the same upsert pattern the
// ratelimiter's Postgres adapter uses for its counters table.

// Postgres is a Store backed by a single blob table in Postgres, for
// replicas that want durability tied to an existing Postgres deployment
// instead of a dedicated object store.
type Postgres struct {
	pool           *pgxpool.Pool
	defaultTimeout time.Duration
}

// NewPostgres wraps an existing pool. Callers own pool lifecycle (created
// via pgxpool.New) so this package never parses connection strings itself.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, defaultTimeout: 10 * time.Second}
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || p.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM rkv_objects WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: postgres get %s: %w", key, err)
	}
	return data, nil
}

func (p *Postgres) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO rkv_objects (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`,
		key, data)
	if err != nil {
		return fmt.Errorf("objectstore: postgres put %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `DELETE FROM rkv_objects WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("objectstore: postgres delete %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT key FROM rkv_objects WHERE key LIKE $1`, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("objectstore: postgres list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("objectstore: postgres scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("objectstore: postgres list %s: %w", prefix, err)
	}
	return keys, nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rkv_objects WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("objectstore: postgres exists %s: %w", key, err)
	}
	return exists, nil
}

// escapeLikePrefix escapes LIKE metacharacters so a prefix containing '%'
// or '_' (both legal in our key shapes, e.g. segment file names) is matched
// literally rather than as a wildcard.
func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}
