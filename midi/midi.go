// Package midi decodes Standard MIDI Files into a flat list of channel
// events, timestamped in nanoseconds from the start of the song.
package midi

import (
	"errors"
	"fmt"
	"io/ioutil"
	"math/bits"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"moria.us/lpyp/codec"
)

var (
	ErrBadHeader         = errors.New("invalid MIDI header")
	ErrUnsupportedFormat = errors.New("multiple song MIDI files are not supported")
	ErrBadDivision       = errors.New("invalid time division")
	ErrTrackLength       = errors.New("incoherent track length")
	ErrInvalidDeltaTime  = errors.New("invalid delta time")
	ErrInvalidEventType  = errors.New("invalid type of MIDI event")
	ErrInvalidTempo      = errors.New("tempo event has an invalid size")
	ErrTempoMisplaced    = errors.New("tempo event found outside of the first track")
	ErrTimeOverflow      = errors.New("event time does not fit in 64 bits")
	errNotSorted         = errors.New("events are not sorted by tick")
)

// A Format is the type of a MIDI file.
type Format uint16

const (
	SingleTrack Format = 0
	MultiTrack  Format = 1
	MultiSong   Format = 2
)

// A Timing is the kind of time division used by a MIDI file.
type Timing uint8

const (
	// Metrical timing counts ticks per quarter note.
	Metrical Timing = iota
	// Timecode timing counts SMPTE frames and subframes.
	Timecode
)

func (t Timing) String() string {
	switch t {
	case Metrical:
		return "metrical"
	case Timecode:
		return "timecode"
	default:
		return fmt.Sprintf("Timing(%d)", uint8(t))
	}
}

// A Header is the decoded MThd chunk.
type Header struct {
	Format    Format
	NumTracks uint16
	Timing    Timing
	// TickDiv is ticks per quarter note for metrical timing, or frames per
	// second times subframes for timecode timing.
	TickDiv uint16
}

// An EventType is the high nibble of a channel event status byte.
type EventType uint8

const (
	NoteOff       EventType = 8
	NoteOn        EventType = 9
	PolyTouch     EventType = 10
	Controller    EventType = 11
	ProgramChange EventType = 12
	ChannelTouch  EventType = 13
	PitchBend     EventType = 14
)

const (
	statusMeta   = 0xff
	statusSysex  = 0xf0
	statusEscape = 0xf7

	metaEndOfTrack = 0x2f
	metaTempo      = 0x51

	// 120 beats per minute.
	defaultTempo = 500000

	maxDeltaBytes = 4
)

// An Event is a single event from a track. Data holds the complete message
// starting with its status byte. For meta and sysex events, Data also holds
// the encoded length that precedes the payload.
type Event struct {
	Time uint64
	Data []byte
}

// Status returns the event's status byte.
func (e Event) Status() byte {
	return e.Data[0]
}

// Type returns the channel event type.
func (e Event) Type() EventType {
	return EventType(e.Data[0] >> 4)
}

// IsChannel returns true for channel voice events.
func (e Event) IsChannel() bool {
	return e.Data[0]&0xf0 != 0xf0
}

// IsMeta returns true for meta events.
func (e Event) IsMeta() bool {
	return e.Data[0] == statusMeta
}

func (e Event) isMetaType(t byte) bool {
	return len(e.Data) >= 2 && e.Data[0] == statusMeta && e.Data[1] == t
}

func (e Event) String() string {
	d := e.Data
	switch EventType(d[0] >> 4) {
	case NoteOff:
		return fmt.Sprintf("noteOff ch.%d %d %d", d[0]&15, d[1], d[2])
	case NoteOn:
		if d[2] == 0 {
			return fmt.Sprintf("noteOn ch.%d %d 0 (off)", d[0]&15, d[1])
		}
		return fmt.Sprintf("noteOn ch.%d %d %d", d[0]&15, d[1], d[2])
	case PolyTouch:
		return fmt.Sprintf("polyTouch ch.%d %d %d", d[0]&15, d[1], d[2])
	case Controller:
		return fmt.Sprintf("controller ch.%d %d %d", d[0]&15, d[1], d[2])
	case ProgramChange:
		return fmt.Sprintf("programChange ch.%d %d", d[0]&15, d[1])
	case ChannelTouch:
		return fmt.Sprintf("channelTouch ch.%d %d", d[0]&15, d[1])
	case PitchBend:
		return fmt.Sprintf("pitchBend ch.%d %d", d[0]&15, uint32(d[2])<<7|uint32(d[1]))
	default:
		switch d[0] {
		case statusMeta:
			return fmt.Sprintf("meta 0x%02x % x", d[1], d[2:])
		case statusSysex, statusEscape:
			return fmt.Sprintf("sysex % x", d[1:])
		}
		return "<invalid>"
	}
}

// A File is a decoded MIDI file. Events contains only channel events, sorted
// by time, with times in nanoseconds.
type File struct {
	Header Header
	Events []Event
}

func readHeader(r *codec.Reader) (h Header, err error) {
	if err := r.Magic("MThd"); err != nil {
		return h, err
	}
	n, err := r.U32()
	if err != nil {
		return h, err
	}
	if n != 6 {
		return h, r.Failf(ErrBadHeader, "header size is %d", n)
	}
	format, err := r.U16()
	if err != nil {
		return h, err
	}
	switch Format(format) {
	case SingleTrack, MultiTrack:
	case MultiSong:
		return h, r.Fail(ErrUnsupportedFormat)
	default:
		return h, r.Failf(ErrBadHeader, "unknown file format %d", format)
	}
	h.Format = Format(format)
	if h.NumTracks, err = r.U16(); err != nil {
		return h, err
	}
	if h.Format == SingleTrack && h.NumTracks != 1 {
		return h, r.Failf(ErrBadHeader, "single track file contains %d tracks", h.NumTracks)
	}
	div, err := r.Bytes(2)
	if err != nil {
		return h, err
	}
	if int8(div[0]) >= 0 {
		h.Timing = Metrical
		h.TickDiv = uint16(div[0])<<8 | uint16(div[1])
	} else {
		fps := uint16(-int8(div[0]))
		switch fps {
		case 24, 25, 29, 30:
		default:
			return h, r.Failf(ErrBadDivision, "%d frames per second", fps)
		}
		h.Timing = Timecode
		h.TickDiv = fps * uint16(div[1])
	}
	if h.TickDiv == 0 {
		return h, r.Failf(ErrBadDivision, "zero ticks per %s unit", h.Timing)
	}
	return h, nil
}

type track struct {
	r      *codec.Reader
	time   uint64
	status byte
	// Tempo events are only allowed in the first track of a multi-track file.
	noTempo bool
}

func (t *track) readDelta() (uint64, error) {
	off := t.r.Offset()
	delta, n, err := t.r.Varint()
	if err != nil {
		return 0, err
	}
	if n > maxDeltaBytes {
		return 0, &codec.Error{Offset: off, Err: fmt.Errorf("%w: %d bytes used, maximum is %d", ErrInvalidDeltaTime, n, maxDeltaBytes)}
	}
	return delta, nil
}

func (t *track) next() (e Event, err error) {
	delta, err := t.readDelta()
	if err != nil {
		return e, err
	}
	t.time += delta
	e.Time = t.time
	off := t.r.Offset()
	ctl, err := t.r.Peek()
	if err != nil {
		return e, err
	}
	if ctl&0x80 == 0 {
		// Running status.
		if t.status == 0 {
			return e, t.r.Failf(ErrInvalidEventType, "data byte 0x%02x without running status", ctl)
		}
		ctl = t.status
	} else if _, err := t.r.U8(); err != nil {
		return e, err
	}
	switch {
	case ctl == statusMeta || ctl == statusSysex || ctl == statusEscape:
		// Meta and sysex events cancel running status.
		t.status = 0
		if ctl == statusMeta {
			if _, err := t.r.U8(); err != nil {
				return e, err
			}
		}
		n, _, err := t.r.Varint()
		if err != nil {
			return e, err
		}
		if n > uint64(t.r.Len()) {
			return e, t.r.Fail(codec.ErrTruncated)
		}
		if _, err := t.r.Bytes(int(n)); err != nil {
			return e, err
		}
		e.Data = append([]byte(nil), t.r.Since(off)...)
		if e.isMetaType(metaTempo) {
			if t.noTempo {
				return e, &codec.Error{Offset: off, Err: ErrTempoMisplaced}
			}
			if len(e.Data) != 6 || e.Data[2] != 3 {
				return e, &codec.Error{Offset: off, Err: fmt.Errorf("%w: % x", ErrInvalidTempo, e.Data)}
			}
		}
		return e, nil
	case ctl>>4 >= 8 && ctl>>4 < 15:
		elen := 2
		switch EventType(ctl >> 4) {
		case ProgramChange, ChannelTouch:
			elen = 1
		}
		d, err := t.r.Bytes(elen)
		if err != nil {
			return e, err
		}
		t.status = ctl
		e.Data = append([]byte{ctl}, d...)
		return e, nil
	default:
		return e, &codec.Error{Offset: off, Err: fmt.Errorf("%w: status 0x%02x", ErrInvalidEventType, ctl)}
	}
}

// readTrack decodes one MTrk chunk and appends its events, in ticks, to evs.
func readTrack(r *codec.Reader, evs []Event, noTempo bool) ([]Event, error) {
	if err := r.Magic("MTrk"); err != nil {
		return nil, err
	}
	length, err := r.U32()
	if err != nil {
		return nil, err
	}
	start := r.Offset()
	t := track{r: r, noTempo: noTempo}
	for {
		e, err := t.next()
		if err != nil {
			return nil, err
		}
		evs = append(evs, e)
		if e.isMetaType(metaEndOfTrack) {
			break
		}
	}
	if n := r.Offset() - start; n != int(length) {
		return nil, r.Failf(ErrTrackLength, "declared %d bytes, read %d", length, n)
	}
	return evs, nil
}

type tempoState struct {
	tick         uint64
	time         uint64
	usPerQuarter uint64
}

// mulDiv returns a*b/c, failing if the result does not fit in 64 bits.
func mulDiv(a, b, c uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrTimeOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}

// rebase converts event times from ticks to nanoseconds. The events must be
// sorted by tick.
func rebase(evs []Event, h Header) error {
	if !sort.SliceIsSorted(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time }) {
		return errNotSorted
	}
	switch h.Timing {
	case Timecode:
		scale := uint64(h.TickDiv) * 1000 * 1000
		for i := range evs {
			t, err := mulDiv(evs[i].Time, scale, 1)
			if err != nil {
				return err
			}
			evs[i].Time = t
		}
	case Metrical:
		tempo := tempoState{usPerQuarter: defaultTempo}
		for i := range evs {
			e := &evs[i]
			ticks := e.Time
			dt, err := mulDiv(ticks-tempo.tick, tempo.usPerQuarter*1000, uint64(h.TickDiv))
			if err != nil {
				return err
			}
			t := tempo.time + dt
			if t < tempo.time {
				return ErrTimeOverflow
			}
			e.Time = t
			if e.isMetaType(metaTempo) {
				if len(e.Data) != 6 {
					return fmt.Errorf("%w: % x", ErrInvalidTempo, e.Data)
				}
				tempo = tempoState{
					tick:         ticks,
					time:         t,
					usPerQuarter: uint64(e.Data[3])<<16 | uint64(e.Data[4])<<8 | uint64(e.Data[5]),
				}
			}
		}
	default:
		panic("bad timing")
	}
	return nil
}

// Parse decodes a Standard MIDI File. The result contains the channel events
// from all tracks merged in time order; meta and sysex events are dropped
// after they have been used to build the tempo map.
func Parse(data []byte) (*File, error) {
	r := codec.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	var evs []Event
	for i := 0; i < int(h.NumTracks); i++ {
		evs, err = readTrack(r, evs, h.Format == MultiTrack && i != 0)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })
	if err := rebase(evs, h); err != nil {
		return nil, err
	}
	var pos int
	for _, e := range evs {
		if e.IsChannel() {
			evs[pos] = e
			pos++
		}
	}
	for i := pos; i < len(evs); i++ {
		evs[i] = Event{}
	}
	return &File{Header: h, Events: evs[:pos]}, nil
}

// ParseFile reads and decodes a Standard MIDI File.
func ParseFile(name string) (*File, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "midi file %q", name)
	}
	return f, nil
}
