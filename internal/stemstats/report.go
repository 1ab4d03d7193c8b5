package stemstats

import (
	"fmt"
	"io"
)

const mib = 1 << 20

// Report is the end-of-pass summary.
type Report struct {
	Hash string `json:"hash"`

	DeclaredRecords uint64 `json:"declared_records,omitempty"`
	TotalRecords    uint64 `json:"total_records"`
	Truncated       bool   `json:"truncated,omitempty"`
	UniqueAddresses uint64 `json:"unique_addresses"`

	SmallSlots   uint64  `json:"small_slots"`
	LargeSlots   uint64  `json:"large_slots"`
	SmallSlotPct float64 `json:"small_slot_pct"`
	LargeSlotPct float64 `json:"large_slot_pct"`

	RawStems     uint64  `json:"raw_stems"`
	EIP7864Stems uint64  `json:"eip7864_stems"`
	Reduction    int64   `json:"reduction"`
	Factor       float64 `json:"factor"`

	RawIndexBytes     uint64 `json:"raw_index_bytes"`
	EIP7864IndexBytes uint64 `json:"eip7864_index_bytes"`
}

// WriteText renders the human-readable report.
func (r Report) WriteText(w io.Writer) error {
	p := &printer{w: w}
	p.line("=== Analysis Results ===")
	if r.Truncated {
		p.line("WARNING: input truncated, counts cover %d of %d declared entries", r.TotalRecords, r.DeclaredRecords)
	}
	p.line("Total entries: %d", r.TotalRecords)
	p.line("Unique addresses: %d", r.UniqueAddresses)
	p.line("")
	p.line("Slot distribution:")
	p.line("  Small slots (0-63): %d (%.1f%%)", r.SmallSlots, r.SmallSlotPct)
	p.line("  Large slots (>=64): %d (%.1f%%)", r.LargeSlots, r.LargeSlotPct)
	p.line("")
	p.line("Stem counts (%s):", r.Hash)
	p.line("  Raw slot stems: %d", r.RawStems)
	p.line("  EIP-7864 stems: %d", r.EIP7864Stems)
	p.line("")
	p.line("Improvement:")
	p.line("  Reduction: %d fewer stems", r.Reduction)
	p.line("  Factor: %.1fx fewer stems", r.Factor)
	p.line("")
	p.line("Stem index size (stem:31 + offset:8 = 39 bytes per entry):")
	p.line("  Raw:      %.1f MB", float64(r.RawIndexBytes)/mib)
	p.line("  EIP-7864: %.1f MB", float64(r.EIP7864IndexBytes)/mib)
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}
