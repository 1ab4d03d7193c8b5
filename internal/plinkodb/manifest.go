package plinkodb

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

const hashWorkers = 4

type ManifestEntry struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	SHA256  string `json:"sha256"`
	CID     string `json:"cid,omitempty"`
	URL     string `json:"url,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Manifest is manifest.json. Version defaults to the first 12 hex digits of
// the database hash.
type Manifest struct {
	Version         string          `json:"version"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Chain           string          `json:"chain"`
	NumStorageSlots uint64          `json:"num_storage_slots"`
	Files           []ManifestEntry `json:"files"`
}

// Publisher uploads a file and returns its content identifier.
type Publisher interface {
	PublishFile(path string) (string, error)
	GatewayURL(cid string) string
}

// WriteManifest hashes every artifact in dir and writes manifest.json. When
// pub is non-nil each artifact is also published and its CID recorded.
func WriteManifest(ctx context.Context, dir, version string, pub Publisher) (Manifest, error) {
	meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return Manifest{}, err
	}

	entries := make([]ManifestEntry, len(Artifacts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for i, name := range Artifacts {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := describeArtifact(dir, name)
			if err != nil {
				return fmt.Errorf("hash %s: %w", name, err)
			}
			if pub != nil {
				cid, err := pub.PublishFile(filepath.Join(dir, name))
				if err != nil {
					return fmt.Errorf("publish %s: %w", name, err)
				}
				e.CID = cid
				e.URL = pub.GatewayURL(cid)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Manifest{}, err
	}

	if version == "" {
		version = entries[0].SHA256
		if len(version) > 12 {
			version = version[:12]
		}
	}
	m := Manifest{
		Version:         version,
		GeneratedAt:     time.Now().UTC(),
		Chain:           meta.Chain,
		NumStorageSlots: meta.NumStorageSlots,
		Files:           entries,
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), m); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// describeArtifact is the manifest entry of dir/name without publishing data.
func describeArtifact(dir, name string) (ManifestEntry, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return ManifestEntry{}, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, bufio.NewReaderSize(f, writeBufferSize))
	if err != nil {
		return ManifestEntry{}, err
	}
	e := ManifestEntry{Path: name, Size: size, SHA256: hex.EncodeToString(h.Sum(nil))}
	if name == AccountMappingFile && size == 0 {
		e.Comment = "storage-only"
	}
	return e, nil
}
