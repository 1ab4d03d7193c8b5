package ubt

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// StemIndexEntrySize is one stem offset entry on disk: stem(31) || offset u64 LE.
const StemIndexEntrySize = StemSize + 8

// StemOffset maps a stem to the database position of its first leaf.
type StemOffset struct {
	Stem   Stem
	Offset uint64
}

// StemIndex is a stem offset table sorted by stem.
type StemIndex []StemOffset

// NewStemIndex sorts a copy of entries by stem.
func NewStemIndex(entries []StemOffset) StemIndex {
	idx := slices.Clone(entries)
	slices.SortFunc(idx, func(a, b StemOffset) int {
		return compareStems(a.Stem, b.Stem)
	})
	return StemIndex(idx)
}

func compareStems(a, b Stem) int { return bytes.Compare(a[:], b[:]) }

// Lookup returns the offset recorded for stem.
func (s StemIndex) Lookup(stem Stem) (uint64, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return compareStems(s[i].Stem, stem) >= 0
	})
	if i < len(s) && s[i].Stem == stem {
		return s[i].Offset, true
	}
	return 0, false
}

// DBIndex resolves a leaf in a database laid out with a full 256-leaf subtree
// per stem: the stem's offset plus the leaf's subindex.
func (s StemIndex) DBIndex(address common.Address, idx TreeIndex) (uint64, bool) {
	off, ok := s.Lookup(ComputeStem(address, idx))
	if !ok {
		return 0, false
	}
	return off + uint64(idx.Subindex()), true
}

// Size is the encoded length in bytes.
func (s StemIndex) Size() int64 { return int64(len(s)) * StemIndexEntrySize }

// WriteTo encodes the index in stem order.
func (s StemIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var entry [StemIndexEntrySize]byte
	var written int64
	for _, e := range s {
		copy(entry[:StemSize], e.Stem[:])
		binary.LittleEndian.PutUint64(entry[StemSize:], e.Offset)
		n, err := bw.Write(entry[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// ReadStemIndex decodes an index written by WriteTo.
func ReadStemIndex(r io.Reader) (StemIndex, error) {
	br := bufio.NewReader(r)
	var idx StemIndex
	var entry [StemIndexEntrySize]byte
	for {
		n, err := io.ReadFull(br, entry[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stem index entry %d: read %d of %d bytes: %w", len(idx), n, StemIndexEntrySize, err)
		}

		var e StemOffset
		copy(e.Stem[:], entry[:StemSize])
		e.Offset = binary.LittleEndian.Uint64(entry[StemSize:])
		if len(idx) > 0 && compareStems(idx[len(idx)-1].Stem, e.Stem) >= 0 {
			return nil, fmt.Errorf("stem index entry %d out of order", len(idx))
		}
		idx = append(idx, e)
	}
	return idx, nil
}
