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

// Package metrics exposes the engine's Prometheus instrumentation: command
// throughput and latency by shard, WAL fsync latency, and the size of the
// durable state (segments, checkpoints, compaction activity). All public
// functions are safe to call from hot paths when the package has not been
// started — they simply record into the registered collectors, which cost
// nothing to observe until something scrapes /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkv_commands_total",
		Help: "Total commands executed, by command name and outcome",
	}, []string{"command", "outcome"})

	commandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rkv_command_duration_seconds",
		Help:    "Command execution latency in seconds, by command name",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16),
	}, []string{"command"})

	walFsyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rkv_wal_fsync_duration_seconds",
		Help:    "Latency of WAL fsync calls in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	walAppendsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_wal_appends_total",
		Help: "Total records appended to the write-ahead log",
	})

	segmentsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rkv_segments_total",
		Help: "Number of immutable segments currently referenced by the manifest",
	})

	segmentFlushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_segment_flushes_total",
		Help: "Total segment flushes performed by the persistence loop",
	})

	checkpointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_checkpoints_total",
		Help: "Total checkpoints written",
	})

	compactionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_compactions_total",
		Help: "Total compaction passes that merged at least one segment",
	})

	compactionSegmentsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_compaction_segments_removed_total",
		Help: "Total segments removed from the manifest by compaction",
	})

	recoveryDeltasReplayed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rkv_recovery_deltas_replayed",
		Help: "Number of deltas replayed during the most recent recovery",
	})

	recoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rkv_recovery_duration_seconds",
		Help:    "Wall-clock duration of a full recovery pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	replicationDeltasPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_replication_deltas_published_total",
		Help: "Total replication deltas published to the transport",
	})

	replicationDeltasReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkv_replication_deltas_received_total",
		Help: "Total replication deltas received from the transport",
	})
)

func init() {
	prometheus.MustRegister(
		commandsTotal,
		commandDuration,
		walFsyncDuration,
		walAppendsTotal,
		segmentsTotal,
		segmentFlushesTotal,
		checkpointsTotal,
		compactionsTotal,
		compactionSegmentsRemoved,
		recoveryDeltasReplayed,
		recoveryDuration,
		replicationDeltasPublished,
		replicationDeltasReceived,
	)
}

// ObserveCommand records one command's outcome and latency. outcome is a
// short label such as "ok" or "error"; callers should not pass raw error
// strings here to keep the outcome label's cardinality bounded.
func ObserveCommand(name string, outcome string, d time.Duration) {
	commandsTotal.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveWALAppend records a single WAL append plus the fsync latency that
// made it durable.
func ObserveWALAppend(fsync time.Duration) {
	walAppendsTotal.Inc()
	walFsyncDuration.Observe(fsync.Seconds())
}

// SetSegmentsTotal reports the current number of segments tracked by the
// manifest, typically called right after a manifest load or save.
func SetSegmentsTotal(n int) {
	segmentsTotal.Set(float64(n))
}

// ObserveSegmentFlush records one persistence flush writing a new segment.
func ObserveSegmentFlush() {
	segmentFlushesTotal.Inc()
}

// ObserveCheckpoint records one checkpoint write.
func ObserveCheckpoint() {
	checkpointsTotal.Inc()
}

// ObserveCompaction records a compaction pass that removed removedSegments
// segments from the manifest.
func ObserveCompaction(removedSegments int) {
	compactionsTotal.Inc()
	compactionSegmentsRemoved.Add(float64(removedSegments))
}

// ObserveRecovery records the outcome of a completed recovery pass:
// deltasReplayed deltas replayed over duration d.
func ObserveRecovery(deltasReplayed int, d time.Duration) {
	recoveryDeltasReplayed.Set(float64(deltasReplayed))
	recoveryDuration.Observe(d.Seconds())
}

// ObserveDeltaPublished records one replication delta handed to a
// transport's Publish.
func ObserveDeltaPublished() {
	replicationDeltasPublished.Inc()
}

// ObserveDeltaReceived records one replication delta dispatched from a
// transport's Subscribe handler.
func ObserveDeltaReceived() {
	replicationDeltasReceived.Inc()
}

// Handler returns the promhttp handler serving the registered collectors,
// for embedding into a caller-managed mux alongside the RESP listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a dedicated HTTP server exposing /metrics on addr and blocks
// until ctx is cancelled or the server fails. Callers that already run an
// HTTP mux for other purposes should mount Handler() there instead and
// never call Serve.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
