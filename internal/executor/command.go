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

package executor

import "strings"

// Command is a parsed request: a command name and its string arguments.
// RESP framing and argument-count/type validation that is purely
// wire-level (not spelled out in the category contracts below) belongs to
// the connection layer; Execute still rejects malformed argument shapes
// it cannot interpret.
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a Command, upper-casing Name the way Redis command
// dispatch is case-insensitive.
func NewCommand(name string, args ...string) Command {
	return Command{Name: strings.ToUpper(name), Args: args}
}

// multiExempt commands are accepted even while queuing is active: they
// control the transaction itself rather than being queued into it.
var multiExempt = map[string]bool{
	"MULTI":   true,
	"EXEC":    true,
	"DISCARD": true,
	"WATCH":   true,
}

// knownCommands lists every name dispatch recognizes. Queuing an unknown
// command marks the transaction errored (EXECABORT at EXEC), mirroring
// Redis's queue-time validation instead of only failing at replay.
var knownCommands = map[string]bool{
	"GET": true, "SET": true, "APPEND": true, "GETSET": true, "STRLEN": true,
	"MGET": true, "MSET": true, "MSETNX": true, "SETNX": true, "GETRANGE": true,
	"SETRANGE": true, "GETEX": true, "GETDEL": true, "INCR": true, "DECR": true,
	"INCRBY": true, "DECRBY": true, "INCRBYFLOAT": true,
	"LPUSH": true, "RPUSH": true, "LPOP": true, "RPOP": true, "LLEN": true,
	"LINDEX": true, "LRANGE": true, "LSET": true, "LTRIM": true,
	"RPOPLPUSH": true, "LMOVE": true,
	"HSET": true, "HGET": true, "HDEL": true, "HGETALL": true, "HINCRBY": true,
	"HLEN": true, "HEXISTS": true,
	"SADD": true, "SREM": true, "SMEMBERS": true, "SISMEMBER": true,
	"SPOP": true, "SCARD": true,
	"ZADD": true, "ZSCORE": true, "ZREM": true, "ZRANK": true, "ZRANGE": true,
	"ZRANGEBYSCORE": true, "ZCARD": true,
	"DEL": true, "EXISTS": true, "EXPIRE": true, "EXPIREAT": true,
	"PEXPIREAT": true, "TTL": true, "TYPE": true,
	"SCAN": true, "HSCAN": true, "ZSCAN": true,
	"SETBIT": true, "GETBIT": true,
	"UNWATCH": true,
	"KEYS": true, "FLUSHDB": true, "FLUSHALL": true,
}

// IsKnownCommand reports whether name (expected already upper-cased, as
// NewCommand produces) is a command dispatch recognizes. Exported so the
// shard-routing layer can apply the same queue-time validation Session
// does without duplicating the command table.
func IsKnownCommand(name string) bool {
	return knownCommands[name]
}
