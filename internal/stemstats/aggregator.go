// Package stemstats counts distinct addresses and stems of a storage dump
// under the raw-slot and EIP-7864 addressing schemes.
package stemstats

import (
	"github.com/ethereum/go-ethereum/common"

	"plinko-ubt/internal/keyset"
	"plinko-ubt/internal/pir2"
	"plinko-ubt/internal/ubt"
)

// Aggregator is the mutable state of one analysis pass. It is not safe for
// concurrent use.
type Aggregator struct {
	addresses *keyset.Set
	rawStems  *keyset.Set
	newStems  *keyset.Set

	records    uint64
	smallSlots uint64
	largeSlots uint64
}

// NewAggregator sizes the sets for about sizeHint records. Pass 0 when unknown.
func NewAggregator(sizeHint int) *Aggregator {
	// Initial sizes only; the sets grow.
	stemHint := sizeHint / 4
	return &Aggregator{
		addresses: keyset.New(common.AddressLength, sizeHint/16),
		rawStems:  keyset.New(ubt.StemSize, stemHint),
		newStems:  keyset.New(ubt.StemSize, stemHint),
	}
}

// Add folds one record into the counts.
func (a *Aggregator) Add(rec pir2.Record) {
	a.records++
	a.addresses.Add(rec.Address[:])

	raw := ubt.StemFor(rec.Address, rec.Slot, ubt.SchemeRaw)
	a.rawStems.Add(raw[:])

	eip := ubt.StemFor(rec.Address, rec.Slot, ubt.SchemeEIP7864)
	a.newStems.Add(eip[:])

	if ubt.IsSmallSlot(rec.Slot) {
		a.smallSlots++
	} else {
		a.largeSlots++
	}
}

// AddBatch folds recs in order.
func (a *Aggregator) AddBatch(recs []pir2.Record) {
	for i := range recs {
		a.Add(recs[i])
	}
}

// Records is the number of records folded so far.
func (a *Aggregator) Records() uint64 { return a.records }

// SetBytes is the memory held by the three cardinality sets.
func (a *Aggregator) SetBytes() int {
	return a.addresses.Bytes() + a.rawStems.Bytes() + a.newStems.Bytes()
}

// Report snapshots the counts.
func (a *Aggregator) Report() Report {
	r := Report{
		Hash:            ubt.HashName,
		TotalRecords:    a.records,
		UniqueAddresses: uint64(a.addresses.Len()),
		SmallSlots:      a.smallSlots,
		LargeSlots:      a.largeSlots,
		RawStems:        uint64(a.rawStems.Len()),
		EIP7864Stems:    uint64(a.newStems.Len()),
	}
	if a.records > 0 {
		r.SmallSlotPct = 100 * float64(a.smallSlots) / float64(a.records)
		r.LargeSlotPct = 100 * float64(a.largeSlots) / float64(a.records)
	}
	r.Reduction = int64(r.RawStems) - int64(r.EIP7864Stems)
	if r.EIP7864Stems > 0 {
		r.Factor = float64(r.RawStems) / float64(r.EIP7864Stems)
	}
	r.RawIndexBytes = r.RawStems * ubt.StemIndexEntrySize
	r.EIP7864IndexBytes = r.EIP7864Stems * ubt.StemIndexEntrySize
	return r
}
