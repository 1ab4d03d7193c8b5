package plinkodb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Metadata is metadata.json.
type Metadata struct {
	Chain            string `json:"chain"`
	NumStorageSlots  uint64 `json:"numStorageSlots"`
	NumAccounts      uint64 `json:"numAccounts"`
	EntrySize        int    `json:"entrySize"`
	MappingEntrySize int    `json:"mappingEntrySize"`
	FormatVersion    string `json:"formatVersion"`
	Source           string `json:"source"`
}

func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return m, nil
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSON replaces path with the indented encoding of v.
func writeJSON(path string, v interface{}) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	a, err := createArtifact(dir, name)
	if err != nil {
		return err
	}
	defer a.abort()
	if err := encodeJSON(a, v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return commitAll([]*artifact{a})
}
