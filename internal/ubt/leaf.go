package ubt

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

const (
	CodeChunkSize = 31

	maxCodeSize = 1<<24 - 1 // 3 byte field
)

// PackBasicData encodes the basic data leaf:
//
//	[0]      version (0)
//	[1:5]    reserved
//	[5:8]    code size, big-endian
//	[8:16]   nonce, big-endian
//	[16:32]  balance, big-endian
func PackBasicData(nonce uint64, balance *uint256.Int, codeSize uint32) ([32]byte, error) {
	var leaf [32]byte
	if codeSize > maxCodeSize {
		return leaf, fmt.Errorf("code size %d exceeds 24 bits", codeSize)
	}
	if balance != nil && balance.BitLen() > 128 {
		return leaf, fmt.Errorf("balance %s exceeds 128 bits", balance.Hex())
	}

	leaf[5] = byte(codeSize >> 16)
	leaf[6] = byte(codeSize >> 8)
	leaf[7] = byte(codeSize)
	binary.BigEndian.PutUint64(leaf[8:16], nonce)
	if balance != nil {
		b := balance.Bytes32()
		copy(leaf[16:], b[16:])
	}
	return leaf, nil
}

// CodeChunkCount is the number of 31-byte chunks covering codeSize bytes.
func CodeChunkCount(codeSize int) uint32 {
	return uint32((codeSize + CodeChunkSize - 1) / CodeChunkSize)
}

// PackCodeChunk encodes chunk n of code as leading_pushdata_len || 31 code bytes.
// ok is false when the chunk starts past the end of the code.
func PackCodeChunk(code []byte, chunk uint32) (leaf [32]byte, ok bool) {
	start := int(chunk) * CodeChunkSize
	if start >= len(code) {
		return leaf, false
	}
	end := min(start+CodeChunkSize, len(code))

	leaf[0] = leadingPushData(code, start)
	copy(leaf[1:], code[start:end])
	return leaf, true
}

// leadingPushData counts the bytes at chunkStart that are immediates of a PUSH
// starting in an earlier chunk. Truncated immediates are clamped to the code.
func leadingPushData(code []byte, chunkStart int) byte {
	pos := 0
	for pos < chunkStart && pos < len(code) {
		op := vm.OpCode(code[pos])
		size := 0
		if op >= vm.PUSH1 && op <= vm.PUSH32 {
			size = min(int(op-vm.PUSH1)+1, len(code)-pos-1)
		}

		next := pos + 1 + size
		if next > chunkStart {
			return byte(min(next-chunkStart, CodeChunkSize))
		}
		pos = next
	}
	return 0
}
