package pir2

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	addressEnd = common.AddressLength
	slotEnd    = addressEnd + common.HashLength
	valueEnd   = slotEnd + common.HashLength
)

// Record is one storage entry. Its identity is its ordinal position in the stream.
type Record struct {
	Address common.Address
	Slot    common.Hash
	Value   common.Hash
}

// DecodeRecord decodes the first RecordSize bytes of b. Trailing bytes of wider
// entries are ignored. b must hold at least RecordSize bytes.
func DecodeRecord(b []byte) Record {
	var rec Record
	copy(rec.Address[:], b[:addressEnd])
	copy(rec.Slot[:], b[addressEnd:slotEnd])
	copy(rec.Value[:], b[slotEnd:valueEnd])
	return rec
}

// AppendTo appends the RecordSize byte encoding of rec to dst.
func (rec Record) AppendTo(dst []byte) []byte {
	dst = append(dst, rec.Address[:]...)
	dst = append(dst, rec.Slot[:]...)
	return append(dst, rec.Value[:]...)
}
