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

// Package server is the RESP-speaking connection layer internal/executor's
// package doc defers to: a TCP listener that frames requests/replies over
// the wire and routes each parsed Command through a per-connection
// internal/shard.Session, the sharded analog of the teacher's
// api.Server wrapping an http.Server.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/etalazz/rkv/internal/executor"
	"github.com/etalazz/rkv/internal/logging"
	"github.com/etalazz/rkv/internal/shard"
)

var log = logging.New("server")

// Server accepts RESP connections against a single shard.Store.
type Server struct {
	store    *shard.Store
	listener net.Listener

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New wraps store; call ListenAndServe to start accepting connections.
func New(store *shard.Store) *Server {
	return &Server{store: store, conns: make(map[net.Conn]struct{})}
}

// ListenAndServe binds addr and accepts connections until Shutdown is
// called or Accept returns a fatal error.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info("listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections and closes every connection
// currently open, then waits for their handler goroutines to return.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	session := shard.NewSession(s.store)
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		cmd, err := readCommand(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("connection %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		reply := dispatch(session, cmd)

		if err := writeReply(writer, reply); err != nil {
			log.Warn("connection %s: write failed: %v", conn.RemoteAddr(), err)
			return
		}
		if err := writer.Flush(); err != nil {
			log.Warn("connection %s: flush failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// dispatch recovers a panicking command handler into a RESP error reply
// instead of taking the whole connection (and, since handlers run under
// a shard's lock, potentially the whole shard) down with it.
func dispatch(session *shard.Session, cmd executor.Command) (reply executor.RespValue) {
	defer func() {
		if r := recover(); r != nil {
			reply = executor.Err(errPanic{r})
		}
	}()
	return session.Execute(cmd)
}

type errPanic struct{ v interface{} }

func (e errPanic) Error() string { return "ERR internal error" }
