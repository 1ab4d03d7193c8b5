// Package pir2 reads the PIR2 state dump format: a 64-byte header followed by
// fixed-width (address, slot, value) records.
package pir2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize = 64
	RecordSize = 84 // 20 byte address + 32 byte slot + 32 byte value

	// Version written by the exporter.
	Version = 1
)

// Magic is the 4-byte tag every PIR2 file starts with.
var Magic = [4]byte{'P', 'I', 'R', '2'}

// Header field offsets.
const (
	offMagic       = 0
	offVersion     = 4
	offEntrySize   = 6
	offEntryCount  = 8
	offBlockNumber = 16
	offChainID     = 24
)

var ErrInvalidHeader = errors.New("invalid PIR2 header")

// Header is the file preamble. Bytes 32..64 are reserved and ignored.
type Header struct {
	Magic       [4]byte
	Version     uint16
	EntrySize   uint16
	EntryCount  uint64
	BlockNumber uint64
	ChainID     uint64
}

// NewHeader returns a header for count records of RecordSize bytes.
func NewHeader(count, blockNumber, chainID uint64) Header {
	return Header{
		Magic:       Magic,
		Version:     Version,
		EntrySize:   RecordSize,
		EntryCount:  count,
		BlockNumber: blockNumber,
		ChainID:     chainID,
	}
}

// ReadHeader reads and validates the 64-byte header.
func ReadHeader(r io.Reader) (Header, error) {
	h, _, err := ReadRawHeader(r)
	return h, err
}

// ReadRawHeader is ReadHeader that also returns the header bytes as read,
// reserved bytes included.
func ReadRawHeader(r io.Reader) (Header, [HeaderSize]byte, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, buf, fmt.Errorf("%w: read %d byte header: %v", ErrInvalidHeader, HeaderSize, err)
	}
	h := DecodeHeader(buf)
	if err := h.Validate(); err != nil {
		return Header{}, buf, err
	}
	return h, buf, nil
}

// DecodeHeader decodes buf without validating it.
func DecodeHeader(buf [HeaderSize]byte) Header {
	var h Header
	copy(h.Magic[:], buf[offMagic:offVersion])
	h.Version = binary.LittleEndian.Uint16(buf[offVersion:offEntrySize])
	h.EntrySize = binary.LittleEndian.Uint16(buf[offEntrySize:offEntryCount])
	h.EntryCount = binary.LittleEndian.Uint64(buf[offEntryCount:offBlockNumber])
	h.BlockNumber = binary.LittleEndian.Uint64(buf[offBlockNumber:offChainID])
	h.ChainID = binary.LittleEndian.Uint64(buf[offChainID : offChainID+8])
	return h
}

// Validate checks the magic tag and that entries are wide enough to hold a record.
func (h Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %q, expected %q", ErrInvalidHeader, h.Magic[:], Magic[:])
	}
	if h.EntrySize < RecordSize {
		return fmt.Errorf("%w: entry size %d smaller than record size %d", ErrInvalidHeader, h.EntrySize, RecordSize)
	}
	return nil
}

// Encode returns the 64-byte wire form. Reserved bytes are zero.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[offMagic:offVersion], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[offVersion:offEntrySize], h.Version)
	binary.LittleEndian.PutUint16(buf[offEntrySize:offEntryCount], h.EntrySize)
	binary.LittleEndian.PutUint64(buf[offEntryCount:offBlockNumber], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[offBlockNumber:offChainID], h.BlockNumber)
	binary.LittleEndian.PutUint64(buf[offChainID:offChainID+8], h.ChainID)
	return buf
}

// PayloadSize is the number of record bytes the header promises.
func (h Header) PayloadSize() uint64 {
	return h.EntryCount * uint64(h.EntrySize)
}
