package pir2

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i].Address = common.BytesToAddress([]byte{0x11, byte(i)})
		recs[i].Slot = common.BigToHash(common.Big1)
		recs[i].Slot[30] = byte(i)
		recs[i].Value[0] = byte(i + 1)
	}
	return recs
}

func encodeRecords(recs []Record) []byte {
	var out []byte
	for _, rec := range recs {
		out = rec.AppendTo(out)
	}
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(12345, 19_000_000, 11155111)
	buf := h.Encode()

	got, err := ReadHeader(bytes.NewReader(buf[:]))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint64(12345*RecordSize), got.PayloadSize())

	// Fields sit at the documented little-endian offsets.
	assert.Equal(t, []byte("PIR2"), buf[0:4])
	assert.Equal(t, []byte{RecordSize, 0}, buf[6:8])
	assert.Equal(t, make([]byte, 32), buf[32:64])
}

func TestReadHeaderRejects(t *testing.T) {
	bad := NewHeader(1, 0, 1)
	bad.Magic = [4]byte{'X', 'X', 'X', 'X'}
	badMagic := bad.Encode()

	narrow := NewHeader(1, 0, 1)
	narrow.EntrySize = 52
	narrowBuf := narrow.Encode()

	tests := []struct {
		name  string
		input []byte
	}{
		{"bad_magic", badMagic[:]},
		{"narrow_entries", narrowBuf[:]},
		{"short_header", []byte("PIR2")},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidHeader), "got %v", err)
		})
	}
}

func TestReaderStreamsInOrder(t *testing.T) {
	recs := testRecords(5)
	r := NewReader(bytes.NewReader(encodeRecords(recs)), RecordSize)

	for i, want := range recs {
		got, err := r.Next()
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, want, got)
	}
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, uint64(5), r.Count())

	// Exhausted readers stay exhausted.
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedTail(t *testing.T) {
	data := encodeRecords(testRecords(3))
	data = append(data, make([]byte, 40)...)

	r := NewReader(bytes.NewReader(data), RecordSize)
	batch := make([]Record, 10)
	n, err := r.ReadBatch(batch)

	assert.Equal(t, 3, n)
	require.True(t, errors.Is(err, ErrTruncatedRecord), "got %v", err)

	var te *TruncatedError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, uint64(3), te.Index)
	assert.Equal(t, 40, te.Got)
	assert.Equal(t, RecordSize, te.Want)
}

func TestReaderLimit(t *testing.T) {
	recs := testRecords(4)
	data := encodeRecords(recs)

	t.Run("stops_at_limit", func(t *testing.T) {
		r := NewReader(bytes.NewReader(data), RecordSize).Limit(2)
		n, err := r.ReadBatch(make([]Record, 4))
		assert.Equal(t, 2, n)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("missing_records_are_truncation", func(t *testing.T) {
		r := NewReader(bytes.NewReader(data), RecordSize).Limit(6)
		n, err := r.ReadBatch(make([]Record, 6))
		assert.Equal(t, 4, n)
		var te *TruncatedError
		require.True(t, errors.As(err, &te), "got %v", err)
		assert.Equal(t, uint64(4), te.Index)
		assert.Equal(t, 0, te.Got)
	})
}

func TestReaderWideEntries(t *testing.T) {
	recs := testRecords(2)
	const width = RecordSize + 12

	var data []byte
	for _, rec := range recs {
		data = rec.AppendTo(data)
		data = append(data, bytes.Repeat([]byte{0xee}, 12)...)
	}

	r := NewReader(bytes.NewReader(data), width)
	for _, want := range recs {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Len(t, r.Bytes(), width)
		assert.Equal(t, byte(0xee), r.Bytes()[width-1])
	}
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReadRawHeaderKeepsReserved(t *testing.T) {
	buf := NewHeader(3, 1, 1).Encode()
	buf[40] = 0x7f

	h, raw, err := ReadRawHeader(bytes.NewReader(buf[:]))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.EntryCount)
	assert.Equal(t, buf, raw)
}

func TestOpenZstd(t *testing.T) {
	recs := testRecords(8)
	raw := encodeRecords(recs)
	dir := t.TempDir()

	plainPath := filepath.Join(dir, "state.bin")
	require.NoError(t, os.WriteFile(plainPath, raw, 0o600))

	zstPath := filepath.Join(dir, "state.bin.zst")
	f, err := os.Create(zstPath)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write(raw)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plainPath, zstPath} {
		rc, err := Open(path)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, raw, got, path)
	}

	size, ok, err := Size(plainPath)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(len(raw)), size)

	_, ok, err = Size(zstPath)
	require.NoError(t, err)
	assert.False(t, ok)
}
