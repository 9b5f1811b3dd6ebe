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
//
// The actor is a single goroutine that owns the rotator exclusively, so
// append+rotate+fsync never race across concurrent callers. Under
// FsyncAlways it batches every writer waiting when a flush starts (group
// commit): one fsync amortized across N concurrent Append calls instead of
// one fsync per call.
package wal

import (
	"log"
	"time"

	"github.com/etalazz/rkv/internal/metrics"
)

type writeRequest struct {
	entry Entry
	ack   chan error
}

type truncateRequest struct {
	cutoff uint64
	done   chan truncateResult
}

type truncateResult struct {
	deleted int
	err     error
}

// actor serializes all access to a rotator through a single goroutine,
// applying the configured FsyncPolicy's commit discipline.
type actor struct {
	rot    *rotator
	policy FsyncPolicy
	config Config

	writes    chan writeRequest
	truncates chan truncateRequest
	syncTick  <-chan time.Time
	stopTick  func()
	shutdown  chan chan struct{}
}

func newActor(rot *rotator, cfg Config) *actor {
	a := &actor{
		rot:       rot,
		policy:    cfg.FsyncPolicy,
		config:    cfg,
		writes:    make(chan writeRequest, defaultMessageQueueCapacity),
		truncates: make(chan truncateRequest, 8),
		shutdown:  make(chan chan struct{}),
	}
	if cfg.FsyncPolicy == FsyncEverySecond {
		ticker := time.NewTicker(cfg.SyncInterval)
		a.syncTick = ticker.C
		a.stopTick = ticker.Stop
	} else {
		a.stopTick = func() {}
	}
	return a
}

func (a *actor) run() {
	switch a.policy {
	case FsyncAlways:
		a.runAlways()
	case FsyncEverySecond:
		a.runEverySecond()
	default:
		a.runNoSync()
	}
}

// runAlways implements group commit: drain every writer queued behind the
// one that woke the loop, append them all, fsync once, then ack everyone.
func (a *actor) runAlways() {
	for {
		select {
		case done := <-a.shutdown:
			close(done)
			return
		case req := <-a.writes:
			pending := []writeRequest{req}
		drain:
			for len(pending) < a.config.GroupCommitMaxBatch {
				select {
				case next := <-a.writes:
					pending = append(pending, next)
				default:
					break drain
				}
			}
			a.flush(pending)
		case tr := <-a.truncates:
			a.handleTruncate(tr)
		}
	}
}

// flush appends every pending request's entry, fsyncs once, then acks the
// whole batch — the group-commit step that amortizes fsync cost across
// however many writers happened to be queued when the flush started.
func (a *actor) flush(pending []writeRequest) {
	var appendErr error
	for i := range pending {
		if err := a.rot.append(pending[i].entry); err != nil {
			appendErr = err
			break
		}
	}
	if appendErr != nil {
		for _, req := range pending {
			sendAck(req.ack, appendErr)
		}
		return
	}

	syncStart := time.Now()
	syncErr := a.rot.sync()
	metrics.ObserveWALAppend(time.Since(syncStart))
	for _, req := range pending {
		sendAck(req.ack, syncErr)
	}
}

// runEverySecond appends and acks immediately; fsync happens on the timer
// or at shutdown, never inline with a write.
func (a *actor) runEverySecond() {
	defer a.stopTick()
	dirty := false
	for {
		select {
		case done := <-a.shutdown:
			if dirty {
				syncStart := time.Now()
				err := a.rot.sync()
				metrics.ObserveWALAppend(time.Since(syncStart))
				if err != nil {
					log.Printf("wal: final fsync failed: %v", err)
				}
			}
			close(done)
			return
		case req := <-a.writes:
			err := a.rot.append(req.entry)
			if err == nil {
				dirty = true
			}
			sendAck(req.ack, err)
		case <-a.syncTick:
			if dirty {
				syncStart := time.Now()
				err := a.rot.sync()
				metrics.ObserveWALAppend(time.Since(syncStart))
				if err != nil {
					log.Printf("wal: periodic fsync failed: %v", err)
				}
				dirty = false
			}
		case tr := <-a.truncates:
			a.handleTruncate(tr)
		}
	}
}

// runNoSync appends and acks immediately; durability is whatever the OS
// page cache provides without an explicit fsync.
func (a *actor) runNoSync() {
	for {
		select {
		case done := <-a.shutdown:
			close(done)
			return
		case req := <-a.writes:
			sendAck(req.ack, a.rot.append(req.entry))
		case tr := <-a.truncates:
			a.handleTruncate(tr)
		}
	}
}

func (a *actor) handleTruncate(tr truncateRequest) {
	deleted, err := a.rot.truncateBefore(tr.cutoff)
	if tr.done != nil {
		tr.done <- truncateResult{deleted: deleted, err: err}
	}
}

func sendAck(ack chan error, err error) {
	if ack == nil {
		return
	}
	ack <- err
}

func (a *actor) stop() {
	done := make(chan struct{})
	a.shutdown <- done
	<-done
}
