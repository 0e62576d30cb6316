package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWidth(t *testing.T) {
	r := NewReader([]byte{
		0x12,
		0x12, 0x34,
		0x12, 0x34, 0x56, 0x78,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	})
	a, err := r.U8()
	require.NoError(t, err)
	b, err := r.U16()
	require.NoError(t, err)
	c, err := r.U32()
	require.NoError(t, err)
	d, err := r.U64()
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(uint8(0x12), a)
	assert.Equal(uint16(0x1234), b)
	assert.Equal(uint32(0x12345678), c)
	assert.Equal(uint64(0x0102030405060708), d)
	assert.NoError(r.Finish())
}

func TestTruncated(t *testing.T) {
	type testcase struct {
		name string
		data []byte
		read func(r *Reader) error
	}
	cases := []testcase{
		{"u8", nil, func(r *Reader) error { _, err := r.U8(); return err }},
		{"u16", []byte{1}, func(r *Reader) error { _, err := r.U16(); return err }},
		{"u32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.U32(); return err }},
		{"u64", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.U64(); return err }},
		{"cstring", []byte("abc"), func(r *Reader) error { _, err := r.CString(); return err }},
		{"varint", []byte{0x81, 0x80}, func(r *Reader) error { _, _, err := r.Varint(); return err }},
		{"bytes", []byte{1, 2}, func(r *Reader) error { _, err := r.Bytes(3); return err }},
	}
	for _, c := range cases {
		err := c.read(NewReader(c.data))
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("%s: got %v, expected ErrTruncated", c.name, err)
		}
	}
}

func TestVarint(t *testing.T) {
	type testcase struct {
		data []byte
		val  uint64
		n    int
	}
	cases := []testcase{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x40}, 0x40, 1},
		{[]byte{0x7f}, 0x7f, 1},
		{[]byte{0x81, 0x00}, 0x80, 2},
		{[]byte{0xc0, 0x00}, 0x2000, 2},
		{[]byte{0xff, 0x7f}, 0x3fff, 2},
		{[]byte{0x81, 0x80, 0x00}, 0x4000, 3},
		{[]byte{0xff, 0xff, 0xff, 0x7f}, 0x0fffffff, 4},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x01}, 1, 5},
	}
	for _, c := range cases {
		r := NewReader(c.data)
		v, n, err := r.Varint()
		if err != nil {
			t.Errorf("%x: %v", c.data, err)
			continue
		}
		if v != c.val || n != c.n {
			t.Errorf("%x: got (%#x, %d), expected (%#x, %d)", c.data, v, n, c.val, c.n)
		}
	}
}

func TestVarintOverflow(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}
	_, _, err := NewReader(data).Varint()
	assert.ErrorIs(t, err, ErrVarOverflow)
}

func TestCString(t *testing.T) {
	r := NewReader([]byte("Piano\x00\x00Violin\x00"))
	var got []string
	for r.Len() > 0 {
		s, err := r.CString()
		require.NoError(t, err)
		got = append(got, string(s))
	}
	assert.Equal(t, []string{"Piano", "", "Violin"}, got)
}

func TestMagicAndTrailing(t *testing.T) {
	r := NewReader([]byte("MThdx"))
	require.NoError(t, r.Magic("MThd"))
	err := r.Finish()
	assert.ErrorIs(t, err, ErrTrailingData)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 4, e.Offset)

	assert.ErrorIs(t, NewReader([]byte("MTrk")).Magic("MThd"), ErrBadMagic)
	assert.ErrorIs(t, NewReader([]byte("MT")).Magic("MThd"), ErrBadMagic)
}
