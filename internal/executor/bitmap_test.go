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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetBitAndGetBitRoundTrip(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(0), s.Execute(NewCommand("SETBIT", "k", "7", "1")))
	assert.Equal(t, Int(1), s.Execute(NewCommand("GETBIT", "k", "7")))
	assert.Equal(t, Int(0), s.Execute(NewCommand("GETBIT", "k", "6")))
}

func TestSetBitMSBConvention(t *testing.T) {
	s := newTestShard()
	// bit 0 is the MSB of byte 0: setting it should produce byte 0x80.
	s.Execute(NewCommand("SETBIT", "k", "0", "1"))
	got := s.Execute(NewCommand("GET", "k"))
	assert.Equal(t, []byte{0x80}, []byte(got.Str))
}

func TestSetBitReturnsOldValueAndToggles(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SETBIT", "k", "3", "1"))
	old := s.Execute(NewCommand("SETBIT", "k", "3", "0"))
	assert.Equal(t, Int(1), old)
	assert.Equal(t, Int(0), s.Execute(NewCommand("GETBIT", "k", "3")))
}

func TestGetBitOnMissingKeyIsZero(t *testing.T) {
	s := newTestShard()
	assert.Equal(t, Int(0), s.Execute(NewCommand("GETBIT", "missing", "0")))
}

func TestSetBitRejectsOffsetAtOrAboveMax(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SETBIT", "k", "4294967296", "1"))
	assert.ErrorIs(t, reply.Err, ErrOffsetOutOfRange)
}

func TestSetBitRejectsNonBooleanValue(t *testing.T) {
	s := newTestShard()
	reply := s.Execute(NewCommand("SETBIT", "k", "0", "2"))
	assert.True(t, reply.IsError())
}

func TestSetBitAutoGrowsString(t *testing.T) {
	s := newTestShard()
	s.Execute(NewCommand("SETBIT", "k", "23", "1"))
	assert.Equal(t, Int(3), s.Execute(NewCommand("STRLEN", "k")))
}
