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

// Package executor is the single-threaded per-shard command mutator of
// spec §4.1: it interprets a parsed Command against one shard's owned
// keyspace and returns a RespValue plus, for mutating commands, a
// replication delta queued on the shard's replica.State. Wire framing
// (RESP encoding/decoding) lives outside this module's scope; RespValue
// is the in-memory result shape the connection layer would serialize.
package executor

// RespKind tags the variant a RespValue holds, mirroring RESP's reply
// types closely enough that a connection layer can serialize directly.
type RespKind uint8

const (
	RespNil RespKind = iota
	RespSimpleString
	RespBulkString
	RespInteger
	RespArray
	RespError
)

// RespValue is the tagged union every executor call returns.
type RespValue struct {
	Kind  RespKind
	Str   string
	Int   int64
	Array []RespValue
	Err   error
}

// Nil is the RESP null reply ($-1 / *-1 depending on context).
func Nil() RespValue { return RespValue{Kind: RespNil} }

// Simple builds a RESP simple string (+OK\r\n).
func Simple(s string) RespValue { return RespValue{Kind: RespSimpleString, Str: s} }

// Bulk builds a RESP bulk string.
func Bulk(s string) RespValue { return RespValue{Kind: RespBulkString, Str: s} }

// Int builds a RESP integer reply.
func Int(n int64) RespValue { return RespValue{Kind: RespInteger, Int: n} }

// Array builds a RESP array reply.
func Array(vs ...RespValue) RespValue { return RespValue{Kind: RespArray, Array: vs} }

// Err builds a RESP error reply; the connection layer renders Err.Error().
func Err(err error) RespValue { return RespValue{Kind: RespError, Err: err} }

// IsError reports whether v represents an error reply.
func (v RespValue) IsError() bool { return v.Kind == RespError }
