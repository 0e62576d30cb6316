// Package codec reads the primitive values used by the MIDI and practice-song
// binary formats: big-endian fixed-width integers, NUL-terminated strings and
// MIDI variable-length quantities.
package codec

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

var (
	ErrTruncated    = errors.New("unexpected end of data")
	ErrBadMagic     = errors.New("wrong file header")
	ErrTrailingData = errors.New("extra bytes after end of data")
	ErrVarOverflow  = errors.New("variable length value does not fit in 64 bits")
)

// An Error is a decoding error, with the offset where decoding failed.
type Error struct {
	Offset int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// A Reader reads values from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Fail wraps err with the current offset.
func (r *Reader) Fail(err error) error {
	return &Error{Offset: r.pos, Err: err}
}

// Failf wraps a formatted error around the sentinel err, at the current offset.
func (r *Reader) Failf(err error, format string, a ...interface{}) error {
	return &Error{Offset: r.pos, Err: fmt.Errorf("%w: "+format, append([]interface{}{err}, a...)...)}
}

func readUint[T constraints.Unsigned](r *Reader, size int) (T, error) {
	if r.Len() < size {
		return 0, r.Fail(ErrTruncated)
	}
	var v T
	for _, c := range r.data[r.pos : r.pos+size] {
		v = v<<8 | T(c)
	}
	r.pos += size
	return v, nil
}

func (r *Reader) U8() (uint8, error)   { return readUint[uint8](r, 1) }
func (r *Reader) U16() (uint16, error) { return readUint[uint16](r, 2) }
func (r *Reader) U32() (uint32, error) { return readUint[uint32](r, 4) }
func (r *Reader) U64() (uint64, error) { return readUint[uint64](r, 8) }

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (byte, error) {
	if r.Len() < 1 {
		return 0, r.Fail(ErrTruncated)
	}
	return r.data[r.pos], nil
}

// Bytes consumes and returns the next n bytes. The result aliases the
// reader's data.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.Fail(ErrTruncated)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Since returns the bytes consumed since the given offset.
func (r *Reader) Since(off int) []byte {
	return r.data[off:r.pos]
}

// Magic consumes a four byte chunk identifier and checks that it matches.
func (r *Reader) Magic(want string) error {
	if r.Len() < len(want) {
		return r.Fail(ErrBadMagic)
	}
	if got := r.data[r.pos : r.pos+len(want)]; string(got) != want {
		return r.Failf(ErrBadMagic, "got %q, expected %q", got, want)
	}
	r.pos += len(want)
	return nil
}

// CString reads bytes up to a NUL terminator. The terminator is consumed but
// not returned.
func (r *Reader) CString() ([]byte, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := r.data[r.pos:i]
			r.pos = i + 1
			return s, nil
		}
	}
	r.pos = len(r.data)
	return nil, r.Fail(ErrTruncated)
}

// Varint reads a MIDI variable-length quantity: seven bits per byte, most
// significant byte first, continuing while the high bit is set. It returns
// the value and the number of bytes the encoding used. The encoding may be
// any length as long as the value fits in 64 bits.
func (r *Reader) Varint() (q uint64, n int, err error) {
	start := r.pos
	for {
		if r.pos >= len(r.data) {
			return 0, 0, r.Fail(ErrTruncated)
		}
		c := r.data[r.pos]
		r.pos++
		if q > ^uint64(0)>>7 {
			return 0, 0, &Error{Offset: start, Err: ErrVarOverflow}
		}
		q = q<<7 | uint64(c&0x7f)
		if c&0x80 == 0 {
			return q, r.pos - start, nil
		}
	}
}

// Finish returns an error if any bytes remain unread.
func (r *Reader) Finish() error {
	if n := r.Len(); n != 0 {
		return r.Failf(ErrTrailingData, "%d bytes", n)
	}
	return nil
}
