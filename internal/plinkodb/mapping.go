package plinkodb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// StorageKey identifies one storage-mapping entry.
type StorageKey struct {
	Address common.Address
	Slot    common.Hash
}

// StorageEntry is one decoded storage-mapping row.
type StorageEntry struct {
	StorageKey
	Index uint32
}

// ScanStorageMapping calls fn for every row of a storage-mapping file in file
// order. It stops at the first error returned by fn.
func ScanStorageMapping(path string, fn func(StorageEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open storage-mapping: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, writeBufferSize)
	var buf [StorageMappingEntrySize]byte
	for row := uint64(0); ; row++ {
		_, err := io.ReadFull(br, buf[:])
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("storage-mapping row %d is truncated", row)
		}
		if err != nil {
			return fmt.Errorf("read storage-mapping: %w", err)
		}
		var e StorageEntry
		copy(e.Address[:], buf[0:20])
		copy(e.Slot[:], buf[20:52])
		e.Index = binary.LittleEndian.Uint32(buf[52:56])
		if err := fn(e); err != nil {
			return err
		}
	}
}

// LoadAccountMapping reads an account-mapping file into memory.
func LoadAccountMapping(path string) (map[common.Address]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account-mapping: %w", err)
	}
	if len(data)%AccountMappingEntrySize != 0 {
		return nil, fmt.Errorf("account-mapping size %d is not a multiple of %d", len(data), AccountMappingEntrySize)
	}

	mapping := make(map[common.Address]uint32, len(data)/AccountMappingEntrySize)
	for off := 0; off < len(data); off += AccountMappingEntrySize {
		addr := common.BytesToAddress(data[off : off+20])
		mapping[addr] = binary.LittleEndian.Uint32(data[off+20 : off+24])
	}
	return mapping, nil
}
