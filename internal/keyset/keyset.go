// Package keyset is a compact set of fixed-width byte keys.
//
// Keys live inline in a single byte slab addressed by open addressing with
// linear probing. A key costs its width plus one occupancy bit, divided by the
// load factor.
package keyset

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	minSlots = 16

	// Grow once len exceeds 3/4 of the slots.
	loadNum = 3
	loadDen = 4
)

// Set holds distinct keys of one width. The zero value is not usable.
type Set struct {
	width int
	slots []byte   // len(used)*64 keys of width bytes
	used  []uint64 // occupancy bitmap
	mask  uint64
	n     int
}

// New returns a set of width-byte keys sized for about hint keys.
func New(width, hint int) *Set {
	if width <= 0 {
		panic(fmt.Sprintf("keyset: invalid key width %d", width))
	}
	s := &Set{width: width}
	s.alloc(slotsFor(hint))
	return s
}

func slotsFor(hint int) int {
	want := hint*loadDen/loadNum + 1
	n := minSlots
	for n < want {
		n <<= 1
	}
	return n
}

func (s *Set) alloc(nslots int) {
	s.slots = make([]byte, nslots*s.width)
	s.used = make([]uint64, (nslots+63)/64)
	s.mask = uint64(nslots - 1)
	s.n = 0
}

func (s *Set) occupied(i uint64) bool { return s.used[i>>6]&(1<<(i&63)) != 0 }

func (s *Set) key(i uint64) []byte {
	off := int(i) * s.width
	return s.slots[off : off+s.width]
}

// Add inserts key and reports whether it was absent. key must be Width bytes.
func (s *Set) Add(key []byte) bool {
	if len(key) != s.width {
		panic(fmt.Sprintf("keyset: key of %d bytes in set of width %d", len(key), s.width))
	}
	if (s.n+1)*loadDen > int(s.mask+1)*loadNum {
		s.grow()
	}
	return s.insert(key)
}

func (s *Set) insert(key []byte) bool {
	i := xxhash.Sum64(key) & s.mask
	for s.occupied(i) {
		if bytes.Equal(s.key(i), key) {
			return false
		}
		i = (i + 1) & s.mask
	}
	copy(s.key(i), key)
	s.used[i>>6] |= 1 << (i & 63)
	s.n++
	return true
}

func (s *Set) grow() {
	oldSlots, oldUsed, oldCap := s.slots, s.used, s.mask+1
	s.alloc(int(oldCap) * 2)
	for i := uint64(0); i < oldCap; i++ {
		if oldUsed[i>>6]&(1<<(i&63)) == 0 {
			continue
		}
		off := int(i) * s.width
		s.insert(oldSlots[off : off+s.width])
	}
}

// Contains reports whether key is in the set.
func (s *Set) Contains(key []byte) bool {
	if len(key) != s.width {
		return false
	}
	i := xxhash.Sum64(key) & s.mask
	for s.occupied(i) {
		if bytes.Equal(s.key(i), key) {
			return true
		}
		i = (i + 1) & s.mask
	}
	return false
}

// Len is the number of distinct keys.
func (s *Set) Len() int { return s.n }

// Width is the key size in bytes.
func (s *Set) Width() int { return s.width }

// Bytes is the memory held by the table.
func (s *Set) Bytes() int { return len(s.slots) + len(s.used)*8 }

// ForEach calls fn for every key in table order until fn returns false. The
// slices alias the table and must not be retained across calls to Add.
func (s *Set) ForEach(fn func(key []byte) bool) {
	for i := uint64(0); i <= s.mask; i++ {
		if s.occupied(i) && !fn(s.key(i)) {
			return
		}
	}
}
