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

import "errors"

// Client errors per spec §4.1/§5: malformed arguments, type mismatches,
// and arithmetic failures are returned to the caller (and, inside a
// transaction, mark it errored so EXEC aborts). They are never fatal.
var (
	ErrInvalidExpireTime   = errors.New("ERR invalid expire time")
	ErrNotAnInteger        = errors.New("ERR value is not an integer or out of range")
	ErrNotAFloat           = errors.New("ERR value is not a valid float")
	ErrIntOverflow         = errors.New("ERR increment or decrement would overflow")
	ErrNotFiniteFloat      = errors.New("ERR increment would produce NaN or Infinity")
	ErrSyntax              = errors.New("ERR syntax error")
	ErrNoSuchKey           = errors.New("ERR no such key")
	ErrOffsetOutOfRange    = errors.New("ERR bit offset is not an integer or out of range")
	ErrStringExceedsLimit  = errors.New("ERR string exceeds maximum allowed size (512MB)")
	ErrMultiNested         = errors.New("ERR MULTI calls can not be nested")
	ErrExecWithoutMulti    = errors.New("ERR EXEC without MULTI")
	ErrDiscardWithoutMulti = errors.New("ERR DISCARD without MULTI")
	ErrWatchInsideMulti    = errors.New("ERR WATCH inside MULTI is not allowed")
	ErrExecAborted         = errors.New("EXECABORT Transaction discarded because of previous errors")
)
