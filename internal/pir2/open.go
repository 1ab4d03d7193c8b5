package pir2

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const zstdSuffix = ".zst"

// IsCompressed reports whether path is decoded through zstd by Open.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, zstdSuffix)
}

// Open opens path for sequential reading, decoding zstd when the name ends in .zst.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !IsCompressed(path) {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd stream %s: %w", path, err)
	}
	return &zstdFile{dec: dec, f: f}, nil
}

type zstdFile struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdFile) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdFile) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// Size returns the on-disk byte length of an uncompressed input. ok is false for
// compressed inputs, whose decoded length is unknown up front.
func Size(path string) (size int64, ok bool, err error) {
	if IsCompressed(path) {
		return 0, false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, err
	}
	return info.Size(), true, nil
}
