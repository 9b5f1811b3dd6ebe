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

// Package sds provides an 8-bit-clean byte string with an inline small-string
// optimization, mirroring Redis's "simple dynamic string".
//
// Strings of at most maxInline bytes are stored inline in the struct with no
// heap allocation; longer strings are promoted to a heap-backed byte slice.
// The zero value is the empty inline string.
package sds

// maxInline is the largest payload that fits in the inline variant.
const maxInline = 23

// SDS is a small-string-optimized byte string. The zero value is valid and
// represents an empty string stored inline.
type SDS struct {
	inline    [maxInline]byte
	inlineLen uint8 // 0..maxInline; heap is used when heapData != nil
	heapData  []byte
}

// New creates an SDS from a byte slice, choosing inline or heap storage.
func New(b []byte) SDS {
	var s SDS
	if len(b) <= maxInline {
		copy(s.inline[:], b)
		s.inlineLen = uint8(len(b))
		return s
	}
	s.heapData = append([]byte(nil), b...)
	return s
}

// FromString creates an SDS from a Go string.
func FromString(str string) SDS {
	return New([]byte(str))
}

// Len returns the byte length of the string.
func (s *SDS) Len() int {
	if s.heapData != nil {
		return len(s.heapData)
	}
	return int(s.inlineLen)
}

// IsInline reports whether the value is currently stored inline.
func (s *SDS) IsInline() bool {
	return s.heapData == nil
}

// Bytes returns the string's bytes. The returned slice must not be mutated;
// callers that need an independent copy should use Clone.
func (s *SDS) Bytes() []byte {
	if s.heapData != nil {
		return s.heapData
	}
	return s.inline[:s.inlineLen]
}

// String returns a copy of the contents as a Go string.
func (s *SDS) String() string {
	return string(s.Bytes())
}

// Clone returns an independent copy.
func (s SDS) Clone() SDS {
	return New(s.Bytes())
}

// Append appends b to the string, promoting inline to heap storage if the
// resulting length exceeds maxInline.
func (s *SDS) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	if s.heapData != nil {
		s.heapData = append(s.heapData, b...)
		return
	}
	newLen := int(s.inlineLen) + len(b)
	if newLen <= maxInline {
		copy(s.inline[s.inlineLen:], b)
		s.inlineLen = uint8(newLen)
		return
	}
	// Promote: inline -> heap.
	merged := make([]byte, 0, newLen)
	merged = append(merged, s.inline[:s.inlineLen]...)
	merged = append(merged, b...)
	s.heapData = merged
	s.inlineLen = 0
}

// Equal reports whether two SDS values have identical contents.
func (s *SDS) Equal(other *SDS) bool {
	a, b := s.Bytes(), other.Bytes()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Compare returns -1, 0, or 1 per bytes.Compare semantics, used for the
// sorted-set (score, member) lexicographic tiebreak.
func (s *SDS) Compare(other *SDS) int {
	a, b := s.Bytes(), other.Bytes()
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}
