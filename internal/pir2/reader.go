package pir2

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const readBufferSize = 1 << 20

var ErrTruncatedRecord = errors.New("truncated record")

// TruncatedError reports a short read of the record at Index.
type TruncatedError struct {
	Index uint64 // zero-based ordinal of the incomplete record
	Got   int    // bytes available for it
	Want  int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated record %d: got %d of %d bytes", e.Index, e.Got, e.Want)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncatedRecord
}

// Reader streams fixed-width records in file order. It is not restartable: once
// Next returns an error every later call returns the same error.
type Reader struct {
	br     *bufio.Reader
	width  int
	buf    []byte
	count  uint64
	limit  uint64
	hasMax bool
	err    error
}

// NewReader returns a reader of width-byte records. width must be at least
// RecordSize; wider entries are decoded from their first RecordSize bytes.
func NewReader(r io.Reader, width int) *Reader {
	if width < RecordSize {
		panic(fmt.Sprintf("pir2: record width %d smaller than %d", width, RecordSize))
	}
	return &Reader{
		br:    bufio.NewReaderSize(r, readBufferSize),
		width: width,
		buf:   make([]byte, width),
	}
}

// Limit bounds the sequence to n records. With a limit, running out of input
// before n records is reported as truncation even at a record boundary.
func (r *Reader) Limit(n uint64) *Reader {
	r.limit = n
	r.hasMax = true
	return r
}

// Next returns the next record, io.EOF at the end of the sequence or a
// *TruncatedError when the input stops inside a record.
func (r *Reader) Next() (Record, error) {
	if r.err != nil {
		return Record{}, r.err
	}
	if r.hasMax && r.count >= r.limit {
		r.err = io.EOF
		return Record{}, r.err
	}

	n, err := io.ReadFull(r.br, r.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && !r.hasMax:
		// Clean end between records.
		r.err = io.EOF
		return Record{}, r.err
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		r.err = &TruncatedError{Index: r.count, Got: n, Want: r.width}
		return Record{}, r.err
	default:
		r.err = fmt.Errorf("read record %d: %w", r.count, err)
		return Record{}, r.err
	}

	r.count++
	return DecodeRecord(r.buf), nil
}

// ReadBatch fills dst with up to len(dst) records and returns how many were read.
// A non-nil error describes why the batch stopped short; the n records before it
// are valid.
func (r *Reader) ReadBatch(dst []Record) (int, error) {
	for i := range dst {
		rec, err := r.Next()
		if err != nil {
			return i, err
		}
		dst[i] = rec
	}
	return len(dst), nil
}

// Declared reports the limit set by Limit, if any.
func (r *Reader) Declared() (uint64, bool) { return r.limit, r.hasMax }

// Count is the number of complete records returned so far.
func (r *Reader) Count() uint64 { return r.count }

// Bytes is the full entry behind the record last returned by Next, trailing
// bytes of wide entries included. The next call to Next overwrites it.
func (r *Reader) Bytes() []byte { return r.buf }

// Width is the on-disk size of one record.
func (r *Reader) Width() int { return r.width }
