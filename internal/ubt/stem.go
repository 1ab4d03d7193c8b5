package ubt

import (
	"github.com/ethereum/go-ethereum/common"
	"lukechampine.com/blake3"
)

const (
	StemSize = 31

	// HashName identifies the stem hash in reports. Stem counts are only
	// comparable between runs using the same hash.
	HashName = "blake3"

	addressPad = 32 - common.AddressLength
	stemInput  = 32 + StemSize
)

// Stem groups up to 256 leaves of one address.
type Stem [StemSize]byte

// TreeKey is stem || subindex, the leaf's position in the trie.
type TreeKey [32]byte

// Stem returns the first 31 bytes of the key.
func (k TreeKey) Stem() Stem {
	var s Stem
	copy(s[:], k[:StemSize])
	return s
}

// Subindex returns the key's last byte.
func (k TreeKey) Subindex() byte { return k[StemSize] }

// ComputeStem returns blake3(pad12(address) || idx[:31])[:31].
func ComputeStem(address common.Address, idx TreeIndex) Stem {
	var input [stemInput]byte
	copy(input[addressPad:32], address[:])
	copy(input[32:], idx[:StemSize])

	sum := blake3.Sum256(input[:])
	var stem Stem
	copy(stem[:], sum[:StemSize])
	return stem
}

// StemFor derives the stem of a storage slot under the given scheme.
func StemFor(address common.Address, slot common.Hash, scheme Scheme) Stem {
	return ComputeStem(address, scheme.TreeIndex(slot))
}

// ComputeTreeKey returns ComputeStem(address, idx) || idx.Subindex().
func ComputeTreeKey(address common.Address, idx TreeIndex) TreeKey {
	var key TreeKey
	stem := ComputeStem(address, idx)
	copy(key[:StemSize], stem[:])
	key[StemSize] = idx.Subindex()
	return key
}

// StorageTreeKey is the tree key of a storage slot under the given scheme.
func StorageTreeKey(address common.Address, slot common.Hash, scheme Scheme) TreeKey {
	return ComputeTreeKey(address, scheme.TreeIndex(slot))
}
