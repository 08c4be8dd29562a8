// Package bitset implements the fixed-capacity bit sets used for per-member
// acknowledgement flags and leave requests.
//
// A Set of capacity n is backed by ceil(n/8) bytes. Bit i lives in byte i/8 at
// position i%8, least significant bit first, which is exactly the layout of the
// flags and leaves trailers of a merge-commit packet. Bits beyond the capacity
// (padding bits of the last byte) are always kept at zero.
package bitset

import (
	"bytes"
	"fmt"
	"strings"
)

// Set is a fixed-capacity bit set.
type Set struct {
	n     int
	bytes []byte
}

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	return (n >> 3) + boolInt(n&7 != 0)
}

// New returns an empty Set with capacity n.
func New(n int) *Set {
	return &Set{
		n:     n,
		bytes: make([]byte, ByteLen(n)),
	}
}

// FromBytes returns a Set of capacity n initialised from b. b must hold at
// least ByteLen(n) bytes. The bytes are copied and padding bits are dropped.
func FromBytes(n int, b []byte) (*Set, error) {
	l := ByteLen(n)
	if len(b) < l {
		return nil, fmt.Errorf("bitset: need %d bytes for %d bits, got %d", l, n, len(b))
	}
	s := New(n)
	copy(s.bytes, b[:l])
	s.trim()
	return s, nil
}

// Len returns the capacity of the Set in bits.
func (s *Set) Len() int {
	return s.n
}

// Bytes returns the underlying bytes. The slice is shared with the Set.
func (s *Set) Bytes() []byte {
	return s.bytes
}

// Copy returns a deep copy.
func (s *Set) Copy() *Set {
	c := New(s.n)
	copy(c.bytes, s.bytes)
	return c
}

// Set sets bit i. Out of range indices are ignored.
func (s *Set) Set(i int) {
	if i < 0 || i >= s.n {
		return
	}
	s.bytes[i>>3] |= 1 << uint(i&7)
}

// Clear clears bit i. Out of range indices are ignored.
func (s *Set) Clear(i int) {
	if i < 0 || i >= s.n {
		return
	}
	s.bytes[i>>3] &^= 1 << uint(i&7)
}

// Test reports whether bit i is set.
func (s *Set) Test(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.bytes[i>>3]&(1<<uint(i&7)) != 0
}

// Reset clears all bits.
func (s *Set) Reset() {
	for i := range s.bytes {
		s.bytes[i] = 0
	}
}

// Union sets s to s|o and reports whether s and o differed before the
// operation. This is the flag merge rule: a difference in either direction is
// novelty worth retransmitting.
func (s *Set) Union(o *Set) bool {
	changed := false
	for i := range s.bytes {
		if s.bytes[i] != o.bytes[i] {
			changed = true
		}
		s.bytes[i] |= o.bytes[i]
	}
	return changed
}

// Or sets s to s|o.
func (s *Set) Or(o *Set) {
	for i := range s.bytes {
		s.bytes[i] |= o.bytes[i]
	}
}

// AndNot sets s to s&^o.
func (s *Set) AndNot(o *Set) {
	for i := range s.bytes {
		s.bytes[i] &^= o.bytes[i]
	}
}

// Not returns the complement of s within its capacity.
func (s *Set) Not() *Set {
	c := New(s.n)
	for i := range s.bytes {
		c.bytes[i] = ^s.bytes[i]
	}
	c.trim()
	return c
}

// Equal reports whether s and o hold the same bits.
func (s *Set) Equal(o *Set) bool {
	return s.n == o.n && bytes.Equal(s.bytes, o.bytes)
}

// Count returns the number of set bits.
func (s *Set) Count() int {
	c := 0
	for _, b := range s.bytes {
		for ; b != 0; b &= b - 1 {
			c++
		}
	}
	return c
}

// Indices returns the set bits in ascending order.
func (s *Set) Indices() []int {
	res := []int{}
	for i := 0; i < s.n; i++ {
		if s.Test(i) {
			res = append(res, i)
		}
	}
	return res
}

// String renders the set as a bit string, index 0 first.
func (s *Set) String() string {
	var sb strings.Builder
	for i := 0; i < s.n; i++ {
		if s.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (s *Set) trim() {
	if r := s.n & 7; r != 0 {
		s.bytes[len(s.bytes)-1] &= byte(1<<uint(r)) - 1
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
