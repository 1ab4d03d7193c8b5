// Package plinkodb writes and checks the plinko PIR database layout:
//
//	database.bin          [value:32] per entry, in index order
//	storage-mapping.bin   [address:20][slot:32][index:4 LE] per entry
//	account-mapping.bin   [address:20][index:4 LE] per entry (empty for storage-only)
//	metadata.json         entry counts and sizes
package plinkodb

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DatabaseFile       = "database.bin"
	StorageMappingFile = "storage-mapping.bin"
	AccountMappingFile = "account-mapping.bin"
	MetadataFile       = "metadata.json"
	ManifestFile       = "manifest.json"

	ValueSize               = 32
	StorageMappingEntrySize = 20 + 32 + 4
	AccountMappingEntrySize = 20 + 4

	DefaultChain         = "sepolia"
	DefaultSource        = "ethrex-pir-export"
	DefaultFormatVersion = "1.0.0"

	writeBufferSize = 1 << 20
)

// Artifacts lists the files Convert produces, in commit order.
var Artifacts = []string{DatabaseFile, StorageMappingFile, AccountMappingFile, MetadataFile}

// artifact is an output file written under a temporary name. finish flushes
// and closes it; publish renames it into place.
type artifact struct {
	path   string
	tmp    string
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func createArtifact(dir, name string) (*artifact, error) {
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return &artifact{
		path: path,
		tmp:  tmp,
		f:    f,
		w:    bufio.NewWriterSize(f, writeBufferSize),
	}, nil
}

func (a *artifact) Write(p []byte) (int, error) { return a.w.Write(p) }

func (a *artifact) finish() error {
	name := filepath.Base(a.path)
	if err := a.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	a.closed = true
	if err := a.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (a *artifact) publish() error {
	if err := os.Rename(a.tmp, a.path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(a.path), err)
	}
	a.tmp = ""
	return nil
}

// abort discards the temporary file. It is a no-op after publish.
func (a *artifact) abort() {
	if a.tmp == "" {
		return
	}
	if !a.closed {
		a.closed = true
		a.f.Close()
	}
	os.Remove(a.tmp)
	a.tmp = ""
}

// commitAll finishes every artifact before renaming any of them, so a write
// error never leaves a subset of the outputs in place.
func commitAll(files []*artifact) error {
	for _, a := range files {
		if err := a.finish(); err != nil {
			return err
		}
	}
	for _, a := range files {
		if err := a.publish(); err != nil {
			return err
		}
	}
	return nil
}
