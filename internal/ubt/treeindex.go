// Package ubt derives EIP-7864 unified binary trie addresses: tree indices,
// stems and tree keys for account and storage leaves.
//
// Every account owns an account stem (stem_pos 0) holding:
//
//	subindex 0       basic data (version, code size, nonce, balance)
//	subindex 1       code hash
//	subindex 64-127  storage slots 0-63
//	subindex 128-255 code chunks 0-127
//
// Larger slots and chunks spill into overflow stems, 256 leaves per stem.
package ubt

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	BasicDataLeafKey    = 0
	CodeHashLeafKey     = 1
	HeaderStorageOffset = 64
	CodeOffset          = 128
	StemSubtreeWidth    = 256

	// Slots below this live in the account stem.
	SmallSlotLimit = CodeOffset - HeaderStorageOffset
)

// mainStorageOffset is 256^31 = 2^248, the first overflow position for storage.
var mainStorageOffset = new(uint256.Int).Lsh(uint256.NewInt(1), 248)

// TreeIndex locates a leaf before hashing: stem_pos (31 bytes) || subindex.
type TreeIndex [32]byte

// StemPos is the 31-byte big-endian stem position.
func (t TreeIndex) StemPos() [StemSize]byte {
	var pos [StemSize]byte
	copy(pos[:], t[:StemSize])
	return pos
}

// Subindex is the leaf position inside the stem's 256-wide subtree.
func (t TreeIndex) Subindex() byte { return t[StemSize] }

// IsSmallSlot reports whether slot < 64.
func IsSmallSlot(slot common.Hash) bool {
	for _, b := range slot[:31] {
		if b != 0 {
			return false
		}
	}
	return slot[31] < SmallSlotLimit
}

// StorageTreeIndex maps a storage slot to its tree index: slots 0-63 go to the
// account stem at subindex 64+slot, larger slots to (slot + 2^248) mod 2^256.
func StorageTreeIndex(slot common.Hash) TreeIndex {
	var idx TreeIndex
	if IsSmallSlot(slot) {
		idx[31] = HeaderStorageOffset + slot[31]
		return idx
	}

	var pos uint256.Int
	pos.SetBytes32(slot[:])
	pos.Add(&pos, mainStorageOffset) // wraps mod 2^256
	return TreeIndex(pos.Bytes32())
}

// RawTreeIndex is the legacy addressing: the slot bytes used as the tree index.
func RawTreeIndex(slot common.Hash) TreeIndex {
	return TreeIndex(slot)
}

// BasicDataTreeIndex is the account stem's basic data leaf.
func BasicDataTreeIndex() TreeIndex {
	var idx TreeIndex
	idx[31] = BasicDataLeafKey
	return idx
}

// CodeHashTreeIndex is the account stem's code hash leaf.
func CodeHashTreeIndex() TreeIndex {
	var idx TreeIndex
	idx[31] = CodeHashLeafKey
	return idx
}

// CodeChunkTreeIndex maps code chunk n to position 128+n, split into
// stem_pos = pos / 256 and subindex = pos % 256.
func CodeChunkTreeIndex(chunk uint32) TreeIndex {
	pos := uint64(CodeOffset) + uint64(chunk)

	var idx TreeIndex
	binary.BigEndian.PutUint64(idx[23:31], pos/StemSubtreeWidth)
	idx[31] = byte(pos % StemSubtreeWidth)
	return idx
}

// Scheme selects how a storage slot becomes a tree index.
type Scheme int

const (
	SchemeEIP7864 Scheme = iota
	SchemeRaw
)

// TreeIndex applies the scheme to slot.
func (s Scheme) TreeIndex(slot common.Hash) TreeIndex {
	if s == SchemeRaw {
		return RawTreeIndex(slot)
	}
	return StorageTreeIndex(slot)
}

func (s Scheme) String() string {
	switch s {
	case SchemeRaw:
		return "raw"
	case SchemeEIP7864:
		return "eip7864"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseScheme accepts "raw" or "eip7864" (case-insensitive).
func ParseScheme(v string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "raw", "legacy":
		return SchemeRaw, nil
	case "eip7864", "eip-7864", "":
		return SchemeEIP7864, nil
	default:
		return 0, fmt.Errorf("unknown addressing scheme %q (want raw or eip7864)", v)
	}
}
