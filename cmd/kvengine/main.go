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

// Package main provides the entry point for the rkv key-value engine.
//
// It orchestrates every layer built under internal/: sharded keyspace,
// WAL-backed persistence, object-store-backed recovery, background
// compaction, and an optional cross-replica delta transport, then serves
// RESP connections until told to shut down. The shape mirrors
// cmd/ratelimiter-api/main.go: parse flags, wire components, start
// background loops, block on a signal, shut everything down in order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/etalazz/rkv/internal/checkpoint"
	"github.com/etalazz/rkv/internal/compact"
	"github.com/etalazz/rkv/internal/config"
	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/executor"
	"github.com/etalazz/rkv/internal/logging"
	"github.com/etalazz/rkv/internal/manifest"
	"github.com/etalazz/rkv/internal/metrics"
	"github.com/etalazz/rkv/internal/objectstore"
	"github.com/etalazz/rkv/internal/persist"
	"github.com/etalazz/rkv/internal/recovery"
	"github.com/etalazz/rkv/internal/replica"
	"github.com/etalazz/rkv/internal/server"
	"github.com/etalazz/rkv/internal/shard"
	"github.com/etalazz/rkv/internal/transport"
	"github.com/etalazz/rkv/internal/wal"
	"github.com/etalazz/rkv/internal/wire"
)

var log = logging.New("kvengine")

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := shard.New(cfg.ShardCount, cfg.ReplicaID, cfg.Consistency, executor.Clock(wallClockMillis))

	objectStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		log.Fatal("object store: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	manifestManager := manifest.NewManager(objectStore, cfg.ObjectStorePrefix)
	recoveryManager := recovery.NewManager(objectStore, cfg.ObjectStorePrefix, cfg.ReplicaID)

	if err := runRecovery(ctx, recoveryManager, store); err != nil {
		log.Fatal("recovery: %v", err)
	}

	// The local WAL is the durability boundary ahead of the object store:
	// a delta can be acknowledged to a client, appended here, and crash
	// before persist.Persistence ever ships it to a segment. Replay it
	// after object-store recovery but before serving; ApplyRemote's CRDT
	// merge is idempotent, so replaying an entry the object store already
	// reflects is harmless rather than something that needs a precise cutoff.
	if err := replayLocalWAL(cfg.WALDir, store); err != nil {
		log.Fatal("wal replay: %v", err)
	}

	walHandle, err := wal.Open(wal.Config{
		Dir:          cfg.WALDir,
		FsyncPolicy:  cfg.FsyncPolicy,
		SyncInterval: cfg.SyncInterval,
	})
	if err != nil {
		log.Fatal("wal open: %v", err)
	}

	persistence := persist.New(
		objectStore,
		cfg.ObjectStorePrefix,
		cfg.ReplicaID,
		manifestManager,
		persist.Config{
			FlushInterval:         cfg.FlushInterval,
			FlushThreshold:        cfg.FlushThreshold,
			CheckpointInterval:    cfg.CheckpointInterval,
			SegmentCompression:    cfg.SegmentCompression,
			CheckpointCompression: checkpoint.Compression(cfg.CheckpointCompression),
		},
		snapshotStore(store),
	)
	persistence.Start()

	drainStop := make(chan struct{})
	go drainPendingDeltas(store, persistence, walHandle, drainStop)

	walTruncStop := make(chan struct{})
	go walTruncationLoop(manifestManager, walHandle, cfg.ReplicaID, cfg.FlushInterval*2, walTruncStop)

	deltaTransport, err := buildTransport(cfg)
	if err != nil {
		log.Fatal("transport: %v", err)
	}
	if deltaTransport != nil {
		go subscribeRemoteDeltas(ctx, deltaTransport, store)
	}

	compactor := compact.NewCompactor(objectStore, cfg.ObjectStorePrefix, manifestManager, compact.Config{
		MinSegmentsToCompact: cfg.CompactionMinSegments,
		MaxSegments:          cfg.CompactionMaxSegments,
		Compression:          cfg.SegmentCompression,
	})
	compactStop := make(chan struct{})
	go runCompactionLoop(compactor, cfg.FlushInterval*4, compactStop)

	srv := server.New(store)
	go func() {
		log.Info("replica %d serving %d shards on %s", cfg.ReplicaID, cfg.ShardCount, cfg.ListenAddr)
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Error("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()
	close(drainStop)
	close(walTruncStop)
	close(compactStop)

	if err := srv.Shutdown(); err != nil {
		log.Error("server shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := persistence.Stop(shutdownCtx); err != nil {
		log.Error("final flush: %v", err)
	}
	if err := walHandle.Close(); err != nil {
		log.Error("wal close: %v", err)
	}

	log.Info("stopped")
}

// wallClockMillis is the production executor.Clock: real wall-clock time
// in milliseconds, as opposed to the fixed-epoch fake internal/dst uses
// for reproducible expiry behavior.
func wallClockMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// buildObjectStore selects and constructs the concrete backend named by
// cfg.ObjectStore.
func buildObjectStore(ctx context.Context, cfg config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore {
	case config.ObjectStoreMemory:
		return objectstore.NewMemory(), nil
	case config.ObjectStoreFile:
		return objectstore.NewFile(cfg.ObjectStoreDir)
	case config.ObjectStoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return objectstore.NewS3(client, cfg.S3Bucket), nil
	case config.ObjectStoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return objectstore.NewRedis(client), nil
	case config.ObjectStorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return objectstore.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown object store kind %q", cfg.ObjectStore)
	}
}

// buildTransport selects and constructs the configured replication
// transport. TransportKafka is accepted by internal/config and validated
// here, but left unwired: no repo in this module's dependency set
// imports a concrete Kafka client (transport.KafkaProducer/KafkaConsumer
// are narrow interfaces with no production implementation in-tree), so
// starting the engine with transport=kafka fails fast with a clear error
// instead of silently running without replication.
func buildTransport(cfg config.Config) (transport.DeltaTransport, error) {
	switch cfg.Transport {
	case config.TransportNone:
		return nil, nil
	case config.TransportRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		adapter := &transport.GoRedisPubSubClient{Client: client}
		return transport.NewRedisTransport(adapter, cfg.ObjectStorePrefix), nil
	case config.TransportKafka:
		return nil, fmt.Errorf("transport=kafka has no concrete producer/consumer wired into this build")
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport)
	}
}

// runRecovery loads whatever durable state exists for this replica and
// restores it into store before the server starts accepting traffic, the
// same "recover before serving" ordering internal/recovery's package doc
// assumes.
func runRecovery(ctx context.Context, recoveryManager *recovery.Manager, store *shard.Store) error {
	needsRecovery, err := recoveryManager.NeedsRecovery(ctx)
	if err != nil {
		return fmt.Errorf("check manifest: %w", err)
	}
	if !needsRecovery {
		return nil
	}

	result, err := recoveryManager.RecoverWithProgress(ctx, func(p recovery.Progress) {
		log.Info("recovery: %s (%d/%d segments, %d deltas replayed)",
			p.Phase, p.SegmentsLoaded, p.SegmentsTotal, p.DeltasReplayed)
	})
	if err != nil {
		return err
	}

	restoreByShard := make([]map[string]crdt.ReplicatedValue, store.ShardCount())
	for i := range restoreByShard {
		restoreByShard[i] = make(map[string]crdt.ReplicatedValue)
	}
	for key, value := range result.CheckpointState {
		idx := store.Index(key)
		restoreByShard[idx][key] = value
	}
	for i := 0; i < store.ShardCount(); i++ {
		store.LockShard(i)
		store.ShardAt(i).ReplicaState().Restore(restoreByShard[i])
		store.UnlockShard(i)
	}

	for _, delta := range result.Deltas {
		idx := store.Index(delta.Key)
		store.LockShard(idx)
		store.ShardAt(idx).ReplicaState().ApplyRemote(delta.Key, delta)
		store.UnlockShard(idx)
	}

	log.Info("recovery complete: %+v", result.Stats)
	return nil
}

// replayLocalWAL replays every entry durably appended to the local WAL
// before object-store recovery ran, applying each to the shard that owns
// its key. It must run after runRecovery (so checkpoint/segment state is
// already restored) and before wal.Open (which resumes segment numbering
// for new appends, not replay).
func replayLocalWAL(dir string, store *shard.Store) error {
	entries, err := wal.RecoverAllEntries(dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	replayed := 0
	for _, entry := range entries {
		delta, err := wire.DecodeDelta(entry.Data)
		if err != nil {
			log.Warn("wal replay: skipping corrupt entry: %v", err)
			continue
		}
		idx := store.Index(delta.Key)
		store.LockShard(idx)
		store.ShardAt(idx).ReplicaState().ApplyRemote(delta.Key, delta)
		store.UnlockShard(idx)
		replayed++
	}
	log.Info("wal replay: applied %d local entries", replayed)
	return nil
}

// snapshotStore builds a persist.Snapshotter reading every shard's live
// replicated state, for Persistence's periodic checkpoints.
func snapshotStore(store *shard.Store) persist.Snapshotter {
	return func() checkpoint.State {
		state := make(checkpoint.State)
		for i := 0; i < store.ShardCount(); i++ {
			store.RLockShard(i)
			for k, v := range store.ShardAt(i).ReplicaState().Snapshot() {
				state[k] = v
			}
			store.RUnlockShard(i)
		}
		return state
	}
}

// drainPendingDeltas periodically collects every shard's pending
// replication deltas, appends each to the local WAL, then hands it to
// persistence for eventual shipment to the object store. It runs on a
// 50ms ticker, after the executor has already replied, so a client's write
// is acknowledged before its delta reaches the WAL; the client does not
// wait for a WAL ack. This is the production counterpart of the DST
// harness's direct Persistence.Push calls, with the WAL as the extra
// durability hop a synthetic in-memory harness doesn't need. WAL
// truncation runs separately in walTruncationLoop, keyed off what the
// manifest confirms is actually durable in the object store.
func drainPendingDeltas(store *shard.Store, persistence *persist.Persistence, walHandle *wal.WAL, stop <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for i := 0; i < store.ShardCount(); i++ {
				store.LockShard(i)
				deltas := store.ShardAt(i).ReplicaState().DrainDeltas()
				store.UnlockShard(i)

				for _, d := range deltas {
					if err := walHandle.Append(context.Background(), d, d.Value.Timestamp.Time); err != nil {
						log.Error("wal append: %v", err)
						continue
					}
					if err := persistence.Push(d); err != nil {
						log.Error("push delta: %v", err)
					}
				}
			}
		}
	}
}

// walTruncationLoop periodically checks the manifest for the highest
// MaxTimestamp among recorded segments and truncates the local WAL up to
// it: once a segment durably holds a delta in the object store, the WAL
// entry behind it is no longer needed for crash recovery.
func walTruncationLoop(manifestManager *manifest.Manager, walHandle *wal.WAL, replicaID uint64, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			man, err := manifestManager.LoadOrCreate(ctx, replicaID)
			cancel()
			if err != nil {
				log.Error("wal truncation: load manifest: %v", err)
				continue
			}

			var cutoff uint64
			for _, seg := range man.Segments {
				if seg.MaxTimestamp > cutoff {
					cutoff = seg.MaxTimestamp
				}
			}
			if cutoff == 0 {
				continue
			}

			truncCtx, truncCancel := context.WithTimeout(context.Background(), interval)
			if _, err := walHandle.TruncateUpTo(truncCtx, cutoff); err != nil {
				log.Error("wal truncate: %v", err)
			}
			truncCancel()
		}
	}
}

// subscribeRemoteDeltas applies deltas arriving from other replicas to
// the local shard owning each key, the same ApplyRemote path recovery
// uses for deltas read back from a segment.
func subscribeRemoteDeltas(ctx context.Context, t transport.DeltaTransport, store *shard.Store) {
	err := t.Subscribe(ctx, func(delta crdt.ReplicationDelta) {
		idx := store.Index(delta.Key)
		store.LockShard(idx)
		store.ShardAt(idx).ReplicaState().ApplyRemote(delta.Key, delta)
		store.UnlockShard(idx)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("transport subscribe: %v", err)
	}
}

func runCompactionLoop(compactor *compact.Compactor, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_, err := compactor.Compact(ctx)
			cancel()
			if err != nil && err != compact.ErrNothingToCompact {
				log.Error("compaction: %v", err)
			}
		}
	}
}
