package plinkodb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"

	"plinko-ubt/internal/keyset"
)

var (
	ErrCorrupt  = errors.New("plinko database is inconsistent")
	ErrNotFound = errors.New("storage key not found")

	errStop = errors.New("stop")
)

type VerifyOptions struct {
	// CheckDuplicates also rejects repeated (address, slot) keys. It holds
	// every key in memory.
	CheckDuplicates bool
	Logger          log.Logger
}

type VerifyReport struct {
	Metadata            Metadata
	DatabaseBytes       int64
	StorageMappingBytes int64
	Accounts            int
	DuplicatesChecked   bool
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Verify checks that the artifacts in dir agree with metadata.json and with
// each other.
func Verify(dir string, opts VerifyOptions) (VerifyReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}

	meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return VerifyReport{}, err
	}
	rep := VerifyReport{Metadata: meta, DuplicatesChecked: opts.CheckDuplicates}
	if meta.EntrySize != ValueSize {
		return rep, corrupt("entrySize %d, want %d", meta.EntrySize, ValueSize)
	}
	if meta.MappingEntrySize != StorageMappingEntrySize {
		return rep, corrupt("mappingEntrySize %d, want %d", meta.MappingEntrySize, StorageMappingEntrySize)
	}

	n := int64(meta.NumStorageSlots)
	if rep.DatabaseBytes, err = expectSize(filepath.Join(dir, DatabaseFile), n*ValueSize); err != nil {
		return rep, err
	}
	mappingPath := filepath.Join(dir, StorageMappingFile)
	if rep.StorageMappingBytes, err = expectSize(mappingPath, n*StorageMappingEntrySize); err != nil {
		return rep, err
	}

	var seen *keyset.Set
	if opts.CheckDuplicates {
		seen = keyset.New(20+32, int(min(meta.NumStorageSlots, 1<<24)))
	}
	var row uint32
	var key [20 + 32]byte
	err = ScanStorageMapping(mappingPath, func(e StorageEntry) error {
		if e.Index != row {
			return corrupt("storage-mapping row %d has index %d", row, e.Index)
		}
		if seen != nil {
			copy(key[:20], e.Address[:])
			copy(key[20:], e.Slot[:])
			if !seen.Add(key[:]) {
				return corrupt("duplicate storage key %s/%s at index %d", e.Address.Hex(), e.Slot.Hex(), e.Index)
			}
		}
		row++
		return nil
	})
	if err != nil {
		return rep, err
	}

	accounts, err := LoadAccountMapping(filepath.Join(dir, AccountMappingFile))
	if err != nil {
		return rep, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rep.Accounts = len(accounts)
	if uint64(rep.Accounts) != meta.NumAccounts {
		return rep, corrupt("account-mapping has %d accounts, metadata says %d", rep.Accounts, meta.NumAccounts)
	}

	logger.Info("Database verified", "dir", dir, "storage_slots", meta.NumStorageSlots, "accounts", rep.Accounts, "duplicates_checked", opts.CheckDuplicates)
	return rep, nil
}

func expectSize(path string, want int64) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if fi.Size() != want {
		return fi.Size(), corrupt("%s is %d bytes, want %d", filepath.Base(path), fi.Size(), want)
	}
	return fi.Size(), nil
}

// Lookup finds the index and value stored for key.
func Lookup(dir string, key StorageKey) (uint32, common.Hash, error) {
	var (
		index uint32
		found bool
	)
	err := ScanStorageMapping(filepath.Join(dir, StorageMappingFile), func(e StorageEntry) error {
		if e.StorageKey == key {
			index, found = e.Index, true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, common.Hash{}, err
	}
	if !found {
		return 0, common.Hash{}, ErrNotFound
	}

	f, err := os.Open(filepath.Join(dir, DatabaseFile))
	if err != nil {
		return 0, common.Hash{}, err
	}
	defer f.Close()

	var value common.Hash
	if _, err := f.ReadAt(value[:], int64(index)*ValueSize); err != nil {
		return 0, common.Hash{}, fmt.Errorf("read value %d: %w", index, err)
	}
	return index, value, nil
}
