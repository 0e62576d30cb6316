// Package export writes timelines as a stream of length-prefixed protocol
// buffer messages, one per frame, for players written in other languages.
//
// Each message is preceded by its size as a 32-bit big-endian integer. The
// message schema is:
//
//	message Frame {
//	  uint64 time = 1;
//	  repeated bytes midi = 2;
//	  repeated Key key = 3;
//	}
//	message Key {
//	  uint32 pitch = 1;
//	  bool released = 2;
//	}
package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"moria.us/lpyp/midi"
	"moria.us/lpyp/timeline"
)

const maxMessageSize = 64 * 1024 * 1024

const (
	fieldTime     protowire.Number = 1
	fieldMIDI     protowire.Number = 2
	fieldKey      protowire.Number = 3
	fieldPitch    protowire.Number = 1
	fieldReleased protowire.Number = 2
)

var ErrMessage = errors.New("invalid frame message")

func appendKey(b []byte, k midi.Key) []byte {
	var m []byte
	m = protowire.AppendTag(m, fieldPitch, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(k.Pitch))
	if k.Action == midi.Released {
		m = protowire.AppendTag(m, fieldReleased, protowire.VarintType)
		m = protowire.AppendVarint(m, 1)
	}
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// AppendFrame appends the encoded frame, without its size prefix.
func AppendFrame(b []byte, f *timeline.Frame) []byte {
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Time)
	for _, m := range f.Messages {
		b = protowire.AppendTag(b, fieldMIDI, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	for _, k := range f.Keys {
		b = appendKey(b, k)
	}
	return b
}

func consumeKey(b []byte) (k midi.Key, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return k, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType || (num != fieldPitch && num != fieldReleased) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return k, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return k, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldPitch:
			if v > 0xff {
				return k, fmt.Errorf("%w: pitch %d", ErrMessage, v)
			}
			k.Pitch = uint8(v)
		case fieldReleased:
			if v != 0 {
				k.Action = midi.Released
			} else {
				k.Action = midi.Pressed
			}
		}
	}
	return k, nil
}

// UnmarshalFrame decodes a frame message. Unknown fields are skipped.
func UnmarshalFrame(b []byte) (f timeline.Frame, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Time = v
			b = b[n:]
		case num == fieldMIDI && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Messages = append(f.Messages, append([]byte(nil), v...))
			b = b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			k, err := consumeKey(v)
			if err != nil {
				return f, err
			}
			f.Keys = append(f.Keys, k)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}

// An Encoder writes frames to a stream.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an encoder which writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame.
func (e *Encoder) Encode(f *timeline.Frame) error {
	buf := append(e.buf[:0], 0, 0, 0, 0)
	buf = AppendFrame(buf, f)
	e.buf = buf[:0]
	if len(buf)-4 > maxMessageSize {
		return fmt.Errorf("message size is too large: %d", len(buf)-4)
	}
	binary.BigEndian.PutUint32(buf, uint32(len(buf)-4))
	_, err := e.w.Write(buf)
	return err
}

// A Decoder reads frames from a stream.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder returns a decoder which reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next frame. It returns io.EOF if the stream ends cleanly
// between frames.
func (d *Decoder) Decode() (f timeline.Frame, err error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return f, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n > maxMessageSize {
		return f, fmt.Errorf("message size is too large: %d", n)
	}
	if n > cap(d.buf) {
		d.buf = make([]byte, n)
	}
	buf := d.buf[:n]
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return f, err
	}
	return UnmarshalFrame(buf)
}

// Write writes every frame of a timeline.
func Write(w io.Writer, tl timeline.Timeline) error {
	e := NewEncoder(w)
	for i := range tl {
		if err := e.Encode(&tl[i]); err != nil {
			return err
		}
	}
	return nil
}

// Read reads frames until the end of the stream.
func Read(r io.Reader) (timeline.Timeline, error) {
	d := NewDecoder(r)
	var tl timeline.Timeline
	for {
		f, err := d.Decode()
		if err == io.EOF {
			return tl, nil
		}
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(tl), err)
		}
		tl = append(tl, f)
	}
}
