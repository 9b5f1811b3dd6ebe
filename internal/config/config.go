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

// Package config parses the engine's startup configuration the way
// cmd/ratelimiter-api/main.go does: a flat set of flag.FlagSet knobs with
// sensible defaults, each overridable by an RKV_-prefixed environment
// variable for the values operators would rather set once in a process
// manager than pass on every invocation (object-store location, replica
// identity, transport endpoints). There is no config-file format and no
// .env loader; the teacher's own main.go never reaches for one either.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/etalazz/rkv/internal/replica"
	"github.com/etalazz/rkv/internal/segment"
	"github.com/etalazz/rkv/internal/wal"
)

// ObjectStoreKind selects which internal/objectstore.Store backend the
// engine persists segments and checkpoints to.
type ObjectStoreKind string

const (
	ObjectStoreMemory   ObjectStoreKind = "memory"
	ObjectStoreFile     ObjectStoreKind = "file"
	ObjectStoreS3       ObjectStoreKind = "s3"
	ObjectStoreRedis    ObjectStoreKind = "redis"
	ObjectStorePostgres ObjectStoreKind = "postgres"
)

// TransportKind selects which internal/transport.DeltaTransport backend
// gossips replication deltas between replicas.
type TransportKind string

const (
	TransportNone  TransportKind = "none"
	TransportRedis TransportKind = "redis"
	TransportKafka TransportKind = "kafka"
)

// Config is every knob the engine needs at startup. Zero-value fields are
// never used directly; callers build it through Parse, which applies defaults and
// environment-variable overrides the same way flag.Parse leaves a flag at
// its declared default when the operator doesn't pass it.
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	ShardCount    int
	ReplicaID     uint64
	Consistency   replica.ConsistencyLevel
	FsyncPolicy   wal.FsyncPolicy
	WALDir        string
	SyncInterval  time.Duration

	ObjectStore      ObjectStoreKind
	ObjectStoreDir   string // ObjectStoreFile
	S3Bucket         string // ObjectStoreS3
	S3Region         string // ObjectStoreS3
	PostgresDSN      string // ObjectStorePostgres
	RedisAddr        string // ObjectStoreRedis and/or TransportRedis
	ObjectStorePrefix string

	Transport   TransportKind
	KafkaBrokers string
	KafkaTopic   string

	FlushInterval         time.Duration
	FlushThreshold        int
	CheckpointInterval    time.Duration
	SegmentCompression    segment.Compression
	CheckpointCompression segment.Compression

	CompactionMinSegments int
	CompactionMaxSegments int
}

// Defaults returns the engine's out-of-the-box configuration, the values
// every flag.XxxVar call below registers as its default.
func Defaults() Config {
	return Config{
		ListenAddr:            ":6380",
		MetricsAddr:           "",
		ShardCount:            16,
		ReplicaID:             1,
		Consistency:           replica.Eventual,
		FsyncPolicy:           wal.FsyncAlways,
		WALDir:                "./data/wal",
		SyncInterval:          time.Second,
		ObjectStore:           ObjectStoreFile,
		ObjectStoreDir:        "./data/objects",
		S3Region:              "us-east-1",
		ObjectStorePrefix:     "rkv",
		Transport:             TransportNone,
		KafkaTopic:            "rkv-deltas",
		FlushInterval:         5 * time.Second,
		FlushThreshold:        10_000,
		CheckpointInterval:    10 * time.Minute,
		SegmentCompression:    segment.CompressionZstd,
		CheckpointCompression: segment.CompressionZstd,
		CompactionMinSegments: 8,
		CompactionMaxSegments: 32,
	}
}

// Parse registers flags against a private FlagSet seeded from Defaults,
// parses args, then applies RKV_-prefixed environment variable overrides
// for the subset of knobs an operator would rather set once in the
// environment than repeat on every invocation. Flags explicitly passed on
// the command line always win over an environment variable, matching
// flag.Parse's own precedence over anything set before it runs.
func Parse(args []string) (Config, error) {
	cfg := Defaults()
	fs := flag.NewFlagSet("rkv", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "listen_addr", cfg.ListenAddr, "RESP listen address (e.g., :6380)")
	fs.StringVar(&cfg.MetricsAddr, "metrics_addr", cfg.MetricsAddr, "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	fs.IntVar(&cfg.ShardCount, "shard_count", cfg.ShardCount, "Number of independent keyspace shards")
	replicaID := fs.Uint64("replica_id", cfg.ReplicaID, "This process's replica ID, used to stamp Lamport timestamps and OR-Set tags")
	causal := fs.Bool("causal_consistency", cfg.Consistency == replica.Causal, "Track per-key vector clocks in addition to Lamport timestamps")
	fsyncPolicy := fs.String("wal_fsync_policy", cfg.FsyncPolicy.String(), "WAL durability mode: always, every_second, or none")
	fs.StringVar(&cfg.WALDir, "wal_dir", cfg.WALDir, "Directory holding WAL segment files")
	fs.DurationVar(&cfg.SyncInterval, "wal_sync_interval", cfg.SyncInterval, "fsync period under wal_fsync_policy=every_second")

	objectStore := fs.String("object_store", string(cfg.ObjectStore), "Durable segment/checkpoint backend: memory, file, s3, redis, or postgres")
	fs.StringVar(&cfg.ObjectStoreDir, "object_store_dir", cfg.ObjectStoreDir, "Directory backing object_store=file")
	fs.StringVar(&cfg.S3Bucket, "s3_bucket", cfg.S3Bucket, "Bucket backing object_store=s3")
	fs.StringVar(&cfg.S3Region, "s3_region", cfg.S3Region, "Region backing object_store=s3")
	fs.StringVar(&cfg.PostgresDSN, "postgres_dsn", cfg.PostgresDSN, "Connection string backing object_store=postgres")
	fs.StringVar(&cfg.RedisAddr, "redis_addr", cfg.RedisAddr, "Address backing object_store=redis and/or transport=redis")
	fs.StringVar(&cfg.ObjectStorePrefix, "object_store_prefix", cfg.ObjectStorePrefix, "Key prefix under which this replica's manifest/segments/checkpoints live")

	transport := fs.String("transport", string(cfg.Transport), "Replication transport: none, redis, or kafka")
	fs.StringVar(&cfg.KafkaBrokers, "kafka_brokers", cfg.KafkaBrokers, "Comma-separated broker list backing transport=kafka")
	fs.StringVar(&cfg.KafkaTopic, "kafka_topic", cfg.KafkaTopic, "Topic backing transport=kafka")

	fs.DurationVar(&cfg.FlushInterval, "flush_interval", cfg.FlushInterval, "How often the persistence loop flushes buffered deltas to a new segment")
	fs.IntVar(&cfg.FlushThreshold, "flush_threshold", cfg.FlushThreshold, "Buffered-delta count that triggers an immediate flush")
	fs.DurationVar(&cfg.CheckpointInterval, "checkpoint_interval", cfg.CheckpointInterval, "How often the persistence loop writes a full-keyspace checkpoint")
	segmentCompression := fs.Bool("segment_compression", cfg.SegmentCompression == segment.CompressionZstd, "zstd-compress segment files")
	checkpointCompression := fs.Bool("checkpoint_compression", cfg.CheckpointCompression == segment.CompressionZstd, "zstd-compress checkpoint files")

	fs.IntVar(&cfg.CompactionMinSegments, "compaction_min_segments", cfg.CompactionMinSegments, "Minimum manifest segments before a compaction pass runs")
	fs.IntVar(&cfg.CompactionMaxSegments, "compaction_max_segments", cfg.CompactionMaxSegments, "Maximum segments merged in a single compaction pass")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ReplicaID = *replicaID
	if *causal {
		cfg.Consistency = replica.Causal
	} else {
		cfg.Consistency = replica.Eventual
	}
	policy, err := parseFsyncPolicy(*fsyncPolicy)
	if err != nil {
		return Config{}, err
	}
	cfg.FsyncPolicy = policy
	cfg.ObjectStore = ObjectStoreKind(*objectStore)
	cfg.Transport = TransportKind(*transport)
	if *segmentCompression {
		cfg.SegmentCompression = segment.CompressionZstd
	} else {
		cfg.SegmentCompression = segment.CompressionNone
	}
	if *checkpointCompression {
		cfg.CheckpointCompression = segment.CompressionZstd
	} else {
		cfg.CheckpointCompression = segment.CompressionNone
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	applyEnvOverrides(&cfg, explicit)

	return cfg, nil
}

func parseFsyncPolicy(s string) (wal.FsyncPolicy, error) {
	switch s {
	case "always":
		return wal.FsyncAlways, nil
	case "every_second":
		return wal.FsyncEverySecond, nil
	case "none":
		return wal.FsyncNone, nil
	default:
		return 0, fmt.Errorf("config: unknown wal_fsync_policy %q (want always, every_second, or none)", s)
	}
}

// applyEnvOverrides layers RKV_-prefixed environment variables over cfg,
// for the operational knobs a process manager typically injects once per
// environment rather than repeats on a command line: replica identity and
// every external endpoint/credential-adjacent value. Feature toggles and
// tuning knobs stay flag-only, matching the teacher's own split between
// flags (everything) and env vars (a narrow, deliberate set — see
// churn/exporter.go's VSA_CHURN_LIVE and NO_COLOR). explicit records which
// flag names the operator actually passed; an env var never overrides a
// flag the operator set by hand, it only fills in ones left at default.
func applyEnvOverrides(cfg *Config, explicit map[string]bool) {
	if v := os.Getenv("RKV_REPLICA_ID"); v != "" && !explicit["replica_id"] {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ReplicaID = id
		}
	}
	if v := os.Getenv("RKV_LISTEN_ADDR"); v != "" && !explicit["listen_addr"] {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RKV_METRICS_ADDR"); v != "" && !explicit["metrics_addr"] {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("RKV_S3_BUCKET"); v != "" && !explicit["s3_bucket"] {
		cfg.S3Bucket = v
	}
	if v := os.Getenv("RKV_S3_REGION"); v != "" && !explicit["s3_region"] {
		cfg.S3Region = v
	}
	if v := os.Getenv("RKV_POSTGRES_DSN"); v != "" && !explicit["postgres_dsn"] {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("RKV_REDIS_ADDR"); v != "" && !explicit["redis_addr"] {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("RKV_KAFKA_BROKERS"); v != "" && !explicit["kafka_brokers"] {
		cfg.KafkaBrokers = v
	}
}
