package plinkodb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ledgerwatch/log/v3"

	"plinko-ubt/internal/pir2"
)

const defaultProgressEvery = 1_000_000

var ErrMisalignedInput = errors.New("input length is not a multiple of the record size")

// Options describe the converted database.
type Options struct {
	Chain         string
	Source        string
	FormatVersion string
	ProgressEvery uint64
	Logger        log.Logger
}

func (o Options) withDefaults() Options {
	if o.Chain == "" {
		o.Chain = DefaultChain
	}
	if o.Source == "" {
		o.Source = DefaultSource
	}
	if o.FormatVersion == "" {
		o.FormatVersion = DefaultFormatVersion
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = defaultProgressEvery
	}
	if o.Logger == nil {
		o.Logger = log.Root()
	}
	return o
}

// Result summarises a conversion.
type Result struct {
	Records  uint64
	Metadata Metadata
	// Misaligned is set when the input ended inside a record; the partial
	// bytes were discarded.
	Misaligned     bool
	DiscardedBytes int
	// Truncated is set when a reader with a declared count ran out before
	// reaching it.
	Truncated       bool
	DeclaredRecords uint64
	Elapsed         time.Duration
}

// Converter re-encodes a record stream into a plinko database directory.
type Converter struct {
	dir  string
	opts Options
	log  log.Logger
}

func NewConverter(dir string, opts Options) *Converter {
	opts = opts.withDefaults()
	return &Converter{dir: dir, opts: opts, log: opts.Logger}
}

// Dir is the output directory.
func (c *Converter) Dir() string { return c.dir }

// CheckAlignment splits an input length into whole records and leftover bytes.
func CheckAlignment(size int64, width int) (records int64, remainder int64) {
	return size / int64(width), size % int64(width)
}

// Convert streams every record of r into the output directory. Record i gets
// index i. All four outputs, metadata included, are renamed into place only
// once every one of them has been written.
func (c *Converter) Convert(r *pir2.Reader) (Result, error) {
	start := time.Now()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	var files []*artifact
	defer func() {
		for _, a := range files {
			a.abort()
		}
	}()
	for _, name := range Artifacts {
		a, err := createArtifact(c.dir, name)
		if err != nil {
			return Result{}, err
		}
		files = append(files, a)
	}
	db, mapping, meta := files[0], files[1], files[3]

	var res Result
	var entry [StorageMappingEntrySize]byte
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var te *pir2.TruncatedError
		if errors.As(err, &te) {
			if te.Got > 0 {
				res.Misaligned = true
				res.DiscardedBytes = te.Got
				c.log.Warn("Discarding trailing partial record", "err", ErrMisalignedInput, "bytes", te.Got, "record_size", te.Want)
			}
			if declared, ok := r.Declared(); ok {
				res.Truncated = true
				res.DeclaredRecords = declared
				c.log.Warn("Input ended before the declared record count", "records", te.Index, "declared", declared)
			}
			break
		}
		if err != nil {
			return Result{}, err
		}

		index := r.Count() - 1
		if index > math.MaxUint32 {
			return Result{}, fmt.Errorf("record %d exceeds the 32-bit mapping index", index)
		}

		if _, err := db.Write(rec.Value[:]); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", DatabaseFile, err)
		}
		copy(entry[0:20], rec.Address[:])
		copy(entry[20:52], rec.Slot[:])
		binary.LittleEndian.PutUint32(entry[52:56], uint32(index))
		if _, err := mapping.Write(entry[:]); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", StorageMappingFile, err)
		}

		if (index+1)%c.opts.ProgressEvery == 0 {
			c.log.Info("Converted entries", "records", index+1, "elapsed", time.Since(start))
		}
	}
	res.Records = r.Count()

	res.Metadata = Metadata{
		Chain:            c.opts.Chain,
		NumStorageSlots:  res.Records,
		NumAccounts:      0,
		EntrySize:        ValueSize,
		MappingEntrySize: StorageMappingEntrySize,
		FormatVersion:    c.opts.FormatVersion,
		Source:           c.opts.Source,
	}
	if err := encodeJSON(meta, res.Metadata); err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", MetadataFile, err)
	}

	if err := commitAll(files); err != nil {
		return Result{}, err
	}
	c.log.Info("Wrote database", "path", filepath.Join(c.dir, DatabaseFile), "bytes", res.Records*ValueSize)
	c.log.Info("Wrote storage mapping", "path", filepath.Join(c.dir, StorageMappingFile), "bytes", res.Records*StorageMappingEntrySize)
	c.log.Info("Wrote account mapping", "path", filepath.Join(c.dir, AccountMappingFile), "bytes", 0, "mode", "storage-only")
	c.log.Info("Wrote metadata", "path", filepath.Join(c.dir, MetadataFile))

	res.Elapsed = time.Since(start)
	return res, nil
}
