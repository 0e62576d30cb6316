package midi

import (
	"strconv"

	"github.com/sirupsen/logrus"
)

var notes = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Range of keys on an 88-key keyboard, A0 to C8.
const (
	LowestKey  = 21
	HighestKey = 108
)

// NoteName returns the human-readable version of a note value.
func NoteName(value uint8) string {
	octave := int(value)/12 - 1
	chromaticity := int(value) % 12
	return notes[chromaticity] + strconv.Itoa(octave)
}

// Drawable returns true if the pitch is a key on an 88-key keyboard.
func Drawable(pitch uint8) bool {
	return LowestKey <= pitch && pitch <= HighestKey
}

// A KeyAction says whether a key went down or up.
type KeyAction uint8

const (
	Pressed KeyAction = iota
	Released
)

func (a KeyAction) String() string {
	if a == Released {
		return "release"
	}
	return "press"
}

// A Key is a key press or release, without a time.
type Key struct {
	Pitch  uint8
	Action KeyAction
}

func (k Key) String() string {
	return k.Action.String() + " " + NoteName(k.Pitch)
}

// IsKeyPress returns true if the message is a note on with nonzero velocity.
func IsKeyPress(msg []byte) bool {
	return len(msg) == 3 && EventType(msg[0]>>4) == NoteOn && msg[2] != 0
}

// IsKeyRelease returns true if the message is a note off, or a note on with
// zero velocity.
func IsKeyRelease(msg []byte) bool {
	if len(msg) != 3 {
		return false
	}
	switch EventType(msg[0] >> 4) {
	case NoteOff:
		return true
	case NoteOn:
		return msg[2] == 0
	}
	return false
}

// messageSize returns the size of the message at the start of stream, as
// far as the stream allows.
func messageSize(stream []byte) int {
	if len(stream) < 2 {
		return len(stream)
	}
	n := 1
	ctl := stream[0]
	switch {
	case ctl == statusMeta || ctl == statusSysex || ctl == statusEscape:
		if ctl == statusMeta {
			n++
		}
		var q, nread int
		for _, c := range stream[n:] {
			nread++
			q = q<<7 | int(c&0x7f)
			if c&0x80 == 0 || q > len(stream) {
				break
			}
		}
		n += nread + q
	case ctl>>4 >= 8 && ctl>>4 < 15:
		switch EventType(ctl >> 4) {
		case ProgramChange, ChannelTouch:
			n++
		default:
			n += 2
		}
	default:
		return len(stream)
	}
	if n > len(stream) {
		return len(stream)
	}
	return n
}

// StreamKeys decodes the key presses and releases in a stream of
// concatenated MIDI messages, as delivered by a live MIDI input. Decoding
// stops at the first malformed message.
func StreamKeys(stream []byte) []Key {
	var r []Key
	for len(stream) != 0 {
		n := messageSize(stream)
		msg := stream[:n]
		stream = stream[n:]
		switch {
		case IsKeyRelease(msg):
			r = append(r, Key{msg[1], Released})
		case IsKeyPress(msg):
			r = append(r, Key{msg[1], Pressed})
		}
	}
	return r
}

// A Note is a complete note in a MIDI stream, with both the start and end.
type Note struct {
	Time     uint64
	Duration uint64
	Channel  uint8
	Pitch    uint8
	Velocity uint8
}

// Notes groups the note on and note off events into notes.
func Notes(evs []Event) []Note {
	var all []Note
	active := make(map[uint32]int)
	for _, e := range evs {
		var on bool
		switch {
		case IsKeyPress(e.Data):
			on = true
		case IsKeyRelease(e.Data):
		default:
			continue
		}
		channel := e.Data[0] & 15
		value := e.Data[1]
		key := (uint32(channel) << 8) | uint32(value)
		if on {
			if _, ok := active[key]; ok {
				logrus.Warnf("note double pressed: %s ch=%d", NoteName(value), channel)
				continue
			}
			active[key] = len(all)
			all = append(all, Note{
				Time:     e.Time,
				Channel:  channel,
				Pitch:    value,
				Velocity: e.Data[2],
			})
		} else {
			idx, ok := active[key]
			if !ok {
				logrus.Warnf("note off for unpressed note: %s ch=%d", NoteName(value), channel)
				continue
			}
			delete(active, key)
			all[idx].Duration = e.Time - all[idx].Time
		}
	}
	for _, idx := range active {
		n := all[idx]
		logrus.Warnf("missing note off for note: %s ch=%d", NoteName(n.Pitch), n.Channel)
	}
	return all
}
