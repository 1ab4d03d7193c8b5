// Package resort rewrites a PIR2 dump so that records sharing a stem are
// adjacent, ordered by tree key.
package resort

import (
	"bufio"
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/ledgerwatch/log/v3"

	"plinko-ubt/internal/pir2"
	"plinko-ubt/internal/ubt"
)

const (
	defaultProgressEvery = 1_000_000
	writeBufferSize      = 1 << 20

	// Upper bound on the buffer reserved from the header's claims; beyond it
	// the record blob grows by append.
	maxPreallocBytes = 64 << 20
)

type Options struct {
	Scheme        ubt.Scheme
	ProgressEvery uint64
	Logger        log.Logger
}

type Result struct {
	Header  pir2.Header
	Records uint64
	// Index maps every stem to the ordinal of its first record in the output.
	Index   ubt.StemIndex
	Elapsed time.Duration
}

type entry struct {
	key ubt.TreeKey
	ord int
}

func compareEntries(a, b entry) int {
	if c := bytes.Compare(a.key[:], b.key[:]); c != 0 {
		return c
	}
	return cmp.Compare(a.ord, b.ord)
}

// Run reads the whole dump from in and writes it to out in tree-key order.
// The header is copied unchanged. Every declared record must be present.
func Run(in io.Reader, out io.Writer, opts Options) (Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	every := opts.ProgressEvery
	if every == 0 {
		every = defaultProgressEvery
	}

	hdr, rawHeader, err := pir2.ReadRawHeader(in)
	if err != nil {
		return Result{}, err
	}
	logger.Info("Reading dump", "entries", hdr.EntryCount, "entry_size", hdr.EntrySize, "scheme", opts.Scheme)

	width := int(hdr.EntrySize)
	prealloc := int(min(hdr.EntryCount, maxPreallocBytes/uint64(width)))
	entries := make([]entry, 0, prealloc)
	blob := make([]byte, 0, prealloc*width)

	r := pir2.NewReader(in, width).Limit(hdr.EntryCount)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read dump: %w", err)
		}
		entries = append(entries, entry{
			key: ubt.StorageTreeKey(rec.Address, rec.Slot, opts.Scheme),
			ord: len(entries),
		})
		blob = append(blob, r.Bytes()...)
		if n := uint64(len(entries)); n%every == 0 {
			logger.Info("Read entries", "records", n)
		}
	}

	logger.Info("Sorting by tree key", "records", len(entries))
	slices.SortFunc(entries, compareEntries)

	bw := bufio.NewWriterSize(out, writeBufferSize)
	if _, err := bw.Write(rawHeader[:]); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}
	var index ubt.StemIndex
	for i, e := range entries {
		stem := e.key.Stem()
		if i == 0 || stem != entries[i-1].key.Stem() {
			index = append(index, ubt.StemOffset{Stem: stem, Offset: uint64(i)})
		}
		off := e.ord * width
		if _, err := bw.Write(blob[off : off+width]); err != nil {
			return Result{}, fmt.Errorf("write record %d: %w", i, err)
		}
		if n := uint64(i + 1); n%every == 0 {
			logger.Info("Written entries", "records", n)
		}
	}
	if err := bw.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush output: %w", err)
	}

	res := Result{
		Header:  hdr,
		Records: uint64(len(entries)),
		Index:   index,
		Elapsed: time.Since(start),
	}
	logger.Info("Resort complete", "records", res.Records, "stems", len(index), "elapsed", res.Elapsed)
	return res, nil
}
