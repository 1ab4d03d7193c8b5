package stemstats

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ledgerwatch/log/v3"

	"plinko-ubt/internal/pir2"
)

const (
	DefaultProgressEvery = 1_000_000

	batchSize   = 4096
	maxSizeHint = 1 << 24
)

// ScanOptions tune a Scan. The zero value logs progress to the root logger
// every DefaultProgressEvery records.
type ScanOptions struct {
	ProgressEvery uint64
	Logger        log.Logger
	OnProgress    func(records uint64)
}

// ScanResult describes how the scan ended.
type ScanResult struct {
	Records   uint64
	Truncated bool
	// TruncatedErr is the short read that stopped the scan, when Truncated.
	TruncatedErr *pir2.TruncatedError
	Elapsed      time.Duration
}

// Scan drives r to the end, folding every record into agg. A truncated input
// stops the scan without an error; the partial counts remain in agg.
func Scan(r *pir2.Reader, agg *Aggregator, opts ScanOptions) (ScanResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	every := opts.ProgressEvery
	if every == 0 {
		every = DefaultProgressEvery
	}

	start := time.Now()
	batch := make([]pir2.Record, batchSize)
	next := every
	var res ScanResult

	for {
		n, err := r.ReadBatch(batch)
		agg.AddBatch(batch[:n])

		for agg.Records() >= next {
			logger.Info("Processed entries", "records", next, "elapsed", time.Since(start))
			if opts.OnProgress != nil {
				opts.OnProgress(next)
			}
			next += every
		}

		if err == nil {
			continue
		}
		res.Records = agg.Records()
		res.Elapsed = time.Since(start)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		var te *pir2.TruncatedError
		if errors.As(err, &te) {
			logger.Warn("Input truncated, reporting partial counts", "record", te.Index, "got", te.Got, "want", te.Want)
			res.Truncated = true
			res.TruncatedErr = te
			return res, nil
		}
		return res, fmt.Errorf("scan records: %w", err)
	}
}

// Analyze reads a PIR2 stream: header, then the declared records. A bad header
// is returned before any record is read.
func Analyze(in io.Reader, opts ScanOptions) (pir2.Header, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}

	hdr, err := pir2.ReadHeader(in)
	if err != nil {
		return pir2.Header{}, Report{}, err
	}
	logger.Info("Header", "version", hdr.Version, "entry_size", hdr.EntrySize, "entries", hdr.EntryCount)
	logger.Info("Chain", "block", hdr.BlockNumber, "chain_id", hdr.ChainID)

	hint := hdr.EntryCount
	if hint > maxSizeHint {
		hint = maxSizeHint
	}
	agg := NewAggregator(int(hint))
	r := pir2.NewReader(in, int(hdr.EntrySize)).Limit(hdr.EntryCount)

	res, err := Scan(r, agg, opts)
	if err != nil {
		return hdr, Report{}, err
	}

	report := agg.Report()
	report.DeclaredRecords = hdr.EntryCount
	report.Truncated = res.Truncated
	logger.Info("Scan complete", "records", res.Records, "elapsed", res.Elapsed, "set_mb", agg.SetBytes()/mib)
	return hdr, report, nil
}
