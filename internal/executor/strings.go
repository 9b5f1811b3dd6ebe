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

import (
	"math"
	"strconv"
	"strings"

	"github.com/etalazz/rkv/internal/crdt"
	"github.com/etalazz/rkv/internal/datatypes"
	"github.com/etalazz/rkv/pkg/sds"
)

const maxStringSize = 512 * 1024 * 1024 // 512 MiB, per spec §4.1 SETRANGE cap

// setStringLocal updates only the fast local keyspace representation,
// without touching CRDT replication state. Callers that replicate a
// string write through a non-LWW kind (INCR/DECR via PNCounter) use this
// directly so they can stamp their own CrdtValue afterward.
func (s *Shard) setStringLocal(key string, v sds.SDS) {
	nv := datatypes.NewString(v)
	s.data[key] = &nv
	s.touch(key)
}

// setString stores v under key, both in the fast local keyspace and as an
// LWW replication delta (spec §4.3 step 3: "LwwRegister::set for
// strings"). This is the default string write path; INCR-family writes
// bypass it in favor of counter-kind replication (see applyIncrBy).
func (s *Shard) setString(key string, v sds.SDS) {
	s.setStringLocal(key, v)
	s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewLWW(crdt.LwwRegister{}) }, func(c *crdt.CrdtValue) {
		if c.Kind != crdt.KindLWW {
			*c = crdt.NewLWW(crdt.LwwRegister{})
		}
		c.LWW = crdt.Set(v, crdt.LamportClock{})
	})
}

func (s *Shard) cmdGet(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v := s.get(args[0])
	if v == nil {
		return Nil()
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	return Bulk(v.Str.String())
}

// setFlags holds the parsed SET option set (spec §4.1).
type setFlags struct {
	nx, xx, get, keepTTL bool
	hasExpiry            bool
	expiryAtMs           uint64
}

func (s *Shard) cmdSet(args []string) RespValue {
	if len(args) < 2 {
		return Err(ErrSyntax)
	}
	key, val := args[0], args[1]

	flags, err := parseSetFlags(args[2:], s.now())
	if err != nil {
		return Err(err)
	}

	existing := s.get(key)
	if flags.nx && existing != nil {
		if flags.get {
			return s.getReplyOrNil(existing)
		}
		return Nil()
	}
	if flags.xx && existing == nil {
		if flags.get {
			return Nil()
		}
		return Nil()
	}

	var prior RespValue
	if flags.get {
		prior = s.getReplyOrNil(existing)
		if existing != nil {
			if err := existing.CheckType(datatypes.KindString); err != nil {
				return Err(err)
			}
		}
	}

	s.setString(key, sds.FromString(val))

	switch {
	case flags.hasExpiry:
		s.expirations[key] = flags.expiryAtMs
	case flags.keepTTL:
		// leave any existing expirations[key] entry untouched
	default:
		delete(s.expirations, key)
	}

	if flags.get {
		return prior
	}
	return Simple("OK")
}

func (s *Shard) getReplyOrNil(v *datatypes.Value) RespValue {
	if v == nil {
		return Nil()
	}
	return Bulk(v.Str.String())
}

func parseSetFlags(opts []string, nowMs uint64) (setFlags, error) {
	var f setFlags
	for i := 0; i < len(opts); i++ {
		switch strings.ToUpper(opts[i]) {
		case "NX":
			f.nx = true
		case "XX":
			f.xx = true
		case "GET":
			f.get = true
		case "KEEPTTL":
			f.keepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			kind := strings.ToUpper(opts[i])
			i++
			if i >= len(opts) {
				return f, ErrSyntax
			}
			n, err := strconv.ParseInt(opts[i], 10, 64)
			if err != nil {
				return f, ErrNotAnInteger
			}
			if n <= 0 {
				return f, ErrInvalidExpireTime
			}
			f.hasExpiry = true
			switch kind {
			case "EX":
				f.expiryAtMs = nowMs + uint64(n)*1000
			case "PX":
				f.expiryAtMs = nowMs + uint64(n)
			case "EXAT":
				f.expiryAtMs = uint64(n) * 1000
			case "PXAT":
				f.expiryAtMs = uint64(n)
			}
		default:
			return f, ErrSyntax
		}
	}
	if f.nx && f.xx {
		return f, ErrSyntax
	}
	if f.hasExpiry && f.keepTTL {
		return f, ErrSyntax
	}
	return f, nil
}

func (s *Shard) cmdAppend(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	key, suffix := args[0], args[1]
	v := s.get(key)
	if v == nil {
		s.setString(key, sds.FromString(suffix))
		return Int(int64(len(suffix)))
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	newVal := v.Str.Clone()
	if len(newVal.Bytes())+len(suffix) > maxStringSize {
		return Err(ErrStringExceedsLimit)
	}
	newVal.Append([]byte(suffix))
	s.setString(key, newVal)
	return Int(int64(newVal.Len()))
}

func (s *Shard) cmdGetSet(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	key, val := args[0], args[1]
	v := s.get(key)
	var prior RespValue
	if v != nil {
		if err := v.CheckType(datatypes.KindString); err != nil {
			return Err(err)
		}
		prior = Bulk(v.Str.String())
	} else {
		prior = Nil()
	}
	s.setString(key, sds.FromString(val))
	delete(s.expirations, key)
	return prior
}

func (s *Shard) cmdStrlen(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	v := s.get(args[0])
	if v == nil {
		return Int(0)
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	return Int(int64(v.Str.Len()))
}

func (s *Shard) cmdMGet(args []string) RespValue {
	out := make([]RespValue, 0, len(args))
	for _, key := range args {
		v := s.get(key)
		if v == nil || v.Kind != datatypes.KindString {
			out = append(out, Nil())
			continue
		}
		out = append(out, Bulk(v.Str.String()))
	}
	return Array(out...)
}

func (s *Shard) cmdMSet(args []string) RespValue {
	if len(args) == 0 || len(args)%2 != 0 {
		return Err(ErrSyntax)
	}
	for i := 0; i < len(args); i += 2 {
		s.setString(args[i], sds.FromString(args[i+1]))
		delete(s.expirations, args[i])
	}
	return Simple("OK")
}

// cmdMSetNX is atomic per spec §4.1: all keys are set only if none of
// them currently exist.
func (s *Shard) cmdMSetNX(args []string) RespValue {
	if len(args) == 0 || len(args)%2 != 0 {
		return Err(ErrSyntax)
	}
	for i := 0; i < len(args); i += 2 {
		if s.get(args[i]) != nil {
			return Int(0)
		}
	}
	for i := 0; i < len(args); i += 2 {
		s.setString(args[i], sds.FromString(args[i+1]))
		delete(s.expirations, args[i])
	}
	return Int(1)
}

func (s *Shard) cmdSetNX(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	if s.get(args[0]) != nil {
		return Int(0)
	}
	s.setString(args[0], sds.FromString(args[1]))
	return Int(1)
}

func (s *Shard) cmdGetRange(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	v := s.get(args[0])
	if v == nil {
		return Bulk("")
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	start, err1 := strconv.Atoi(args[1])
	stop, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return Err(ErrNotAnInteger)
	}
	b := v.Str.Bytes()
	n := len(b)
	s1 := normalizeIndex(start, n)
	e1 := normalizeIndex(stop, n)
	if s1 < 0 {
		s1 = 0
	}
	if e1 >= n {
		e1 = n - 1
	}
	if n == 0 || s1 > e1 || s1 >= n {
		return Bulk("")
	}
	return Bulk(string(b[s1 : e1+1]))
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

func (s *Shard) cmdSetRange(args []string) RespValue {
	if len(args) != 3 {
		return Err(ErrSyntax)
	}
	key := args[0]
	offset, err := strconv.Atoi(args[1])
	if err != nil || offset < 0 {
		return Err(ErrOffsetOutOfRange)
	}
	patch := []byte(args[2])
	if offset+len(patch) > maxStringSize {
		return Err(ErrStringExceedsLimit)
	}

	v := s.get(key)
	var cur []byte
	if v != nil {
		if err := v.CheckType(datatypes.KindString); err != nil {
			return Err(err)
		}
		cur = append([]byte(nil), v.Str.Bytes()...)
	}
	if len(patch) == 0 {
		return Int(int64(len(cur)))
	}

	needed := offset + len(patch)
	if len(cur) < needed {
		grown := make([]byte, needed)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[offset:], patch)
	s.setString(key, sds.New(cur))
	return Int(int64(len(cur)))
}

// cmdGetEx reads the value and optionally rewrites its expiry (GETEX).
// Unlike SET, GETEX never changes the value itself.
func (s *Shard) cmdGetEx(args []string) RespValue {
	if len(args) < 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v := s.get(key)
	if v == nil {
		return Nil()
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}

	if len(args) > 1 {
		opt := strings.ToUpper(args[1])
		if opt == "PERSIST" {
			if len(args) != 2 {
				return Err(ErrSyntax)
			}
			delete(s.expirations, key)
		} else {
			atMs, gerr := parseExpiryOption(opt, args[1:], s.now())
			if gerr != nil {
				return Err(gerr)
			}
			s.expirations[key] = atMs
		}
	}
	return Bulk(v.Str.String())
}

// parseExpiryOption parses a single EX/PX/EXAT/PXAT option pair (opt plus
// its numeric argument) into an absolute expiry time in ms, shared by SET
// and GETEX.
func parseExpiryOption(opt string, args []string, nowMs uint64) (uint64, error) {
	if len(args) != 2 {
		return 0, ErrSyntax
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, ErrNotAnInteger
	}
	if n <= 0 {
		return 0, ErrInvalidExpireTime
	}
	switch opt {
	case "EX":
		return nowMs + uint64(n)*1000, nil
	case "PX":
		return nowMs + uint64(n), nil
	case "EXAT":
		return uint64(n) * 1000, nil
	case "PXAT":
		return uint64(n), nil
	default:
		return 0, ErrSyntax
	}
}

// cmdGetDel reads the value and deletes the key in one step (GETDEL).
func (s *Shard) cmdGetDel(args []string) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	key := args[0]
	v := s.get(key)
	if v == nil {
		return Nil()
	}
	if err := v.CheckType(datatypes.KindString); err != nil {
		return Err(err)
	}
	out := Bulk(v.Str.String())
	s.deleteKey(key)
	s.replica.Forget(key)
	return out
}

// cmdIncrBy implements INCR/DECR (delta is always ±1, no argument).
func (s *Shard) cmdIncrBy(args []string, sign int64) RespValue {
	if len(args) != 1 {
		return Err(ErrSyntax)
	}
	return s.applyIncrBy(args[0], sign)
}

// cmdIncrByArg implements INCRBY/DECRBY (delta is the parsed argument).
func (s *Shard) cmdIncrByArg(args []string, sign int64) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return Err(ErrNotAnInteger)
	}
	return s.applyIncrBy(args[0], sign*n)
}

func (s *Shard) applyIncrBy(key string, delta int64) RespValue {
	v := s.get(key)
	var cur int64
	if v != nil {
		if err := v.CheckType(datatypes.KindString); err != nil {
			return Err(err)
		}
		parsed, err := strconv.ParseInt(v.Str.String(), 10, 64)
		if err != nil {
			return Err(ErrNotAnInteger)
		}
		cur = parsed
	}

	result := cur + delta
	if (delta > 0 && result < cur) || (delta < 0 && result > cur) {
		return Err(ErrIntOverflow)
	}

	// Local keyspace stays a fast parsed/formatted integer string; the
	// replicated CRDT side is a PNCounter instead of LWW so concurrent
	// increments from other replicas converge by summing deltas rather
	// than last-write-wins. Reconciling the local string against a
	// remote-merged PNCounter total is the shard layer's job.
	s.setStringLocal(key, sds.FromString(strconv.FormatInt(result, 10)))
	s.replica.Mutate(key, func() crdt.CrdtValue { return crdt.NewPNCounter() }, func(c *crdt.CrdtValue) {
		if c.Kind != crdt.KindPNCounter {
			*c = crdt.NewPNCounter()
		}
		c.PNCounterAdd(s.replica.ReplicaID(), delta)
	})
	return Int(result)
}

// cmdIncrByFloat implements INCRBYFLOAT: NaN/Inf rejected, formatted
// trimmed per spec §4.1.
func (s *Shard) cmdIncrByFloat(args []string) RespValue {
	if len(args) != 2 {
		return Err(ErrSyntax)
	}
	key := args[0]
	delta, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Err(ErrNotAFloat)
	}

	v := s.get(key)
	var cur float64
	if v != nil {
		if err := v.CheckType(datatypes.KindString); err != nil {
			return Err(err)
		}
		parsed, err := strconv.ParseFloat(v.Str.String(), 64)
		if err != nil {
			return Err(ErrNotAnInteger)
		}
		cur = parsed
	}

	result := cur + delta
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return Err(ErrNotFiniteFloat)
	}

	formatted := strconv.FormatFloat(result, 'f', -1, 64)
	s.setString(key, sds.FromString(formatted))
	return Bulk(formatted)
}
