// Package timeline groups MIDI messages and key events into frames, one per
// distinct time, which are played back in order.
package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"moria.us/lpyp/keys"
	"moria.us/lpyp/midi"
)

var (
	ErrEventsLost               = errors.New("events disappeared while grouping")
	ErrEventsDuplicated         = errors.New("events appeared while grouping")
	ErrEmptyFrame               = errors.New("frame contains no event")
	ErrDuplicateFrame           = errors.New("two frames have the same time")
	ErrPressReleaseMismatch     = errors.New("number of key presses and releases differ")
	ErrSimultaneousPressRelease = errors.New("key pressed and released in the same frame")
)

// A Frame is everything which happens at one time.
type Frame struct {
	Time     uint64
	Messages [][]byte
	Keys     []midi.Key
}

// A Timeline is a list of frames in increasing time order.
type Timeline []Frame

// Duration returns the time of the last frame.
func (tl Timeline) Duration() uint64 {
	if len(tl) == 0 {
		return 0
	}
	return tl[len(tl)-1].Time
}

// Count returns the number of messages and key events in the timeline.
func (tl Timeline) Count() (messages, keys int) {
	for _, f := range tl {
		messages += len(f.Messages)
		keys += len(f.Keys)
	}
	return
}

// Group merges messages and key events which have the same time into frames.
func Group(msgs []midi.Event, kevs []keys.Event) (Timeline, error) {
	byTime := make(map[uint64]*Frame)
	var times []uint64
	frame := func(t uint64) *Frame {
		f := byTime[t]
		if f == nil {
			f = &Frame{Time: t}
			byTime[t] = f
			times = append(times, t)
		}
		return f
	}
	for _, m := range msgs {
		f := frame(m.Time)
		f.Messages = append(f.Messages, m.Data)
	}
	for _, k := range kevs {
		f := frame(k.Time)
		f.Keys = append(f.Keys, k.Key())
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	tl := make(Timeline, len(times))
	for i, t := range times {
		tl[i] = *byTime[t]
	}
	if err := tl.check(len(msgs) + len(kevs)); err != nil {
		return nil, err
	}
	for i := range tl {
		tl[i].reorder()
	}
	return tl, nil
}

func (tl Timeline) check(ninput int) error {
	if len(tl) > ninput {
		return fmt.Errorf("%w: %d frames for %d events", ErrEventsDuplicated, len(tl), ninput)
	}
	for i, f := range tl {
		if len(f.Messages) == 0 && len(f.Keys) == 0 {
			return fmt.Errorf("%w: frame %d at %d", ErrEmptyFrame, i, f.Time)
		}
		if i > 0 && f.Time <= tl[i-1].Time {
			return fmt.Errorf("%w: frame %d at %d", ErrDuplicateFrame, i, f.Time)
		}
	}
	nmsg, nkey := tl.Count()
	switch n := nmsg + nkey; {
	case n > ninput:
		return fmt.Errorf("%w: %d events, expected %d", ErrEventsDuplicated, n, ninput)
	case n < ninput:
		return fmt.Errorf("%w: %d events, expected %d", ErrEventsLost, n, ninput)
	}
	var pressed, released int
	for _, f := range tl {
		for _, k := range f.Keys {
			if k.Action == midi.Pressed {
				pressed++
			} else {
				released++
			}
		}
	}
	if pressed != released {
		return fmt.Errorf("%w: %d presses, %d releases", ErrPressReleaseMismatch, pressed, released)
	}
	for _, f := range tl {
		var state [256]uint8
		for _, k := range f.Keys {
			state[k.Pitch] |= 1 << k.Action
			if state[k.Pitch] == 3 {
				return fmt.Errorf("%w: %s at %d", ErrSimultaneousPressRelease, midi.NoteName(k.Pitch), f.Time)
			}
		}
	}
	return nil
}

// reorder puts a press of a key before a release of the same key when both
// messages are in the frame.
func (f *Frame) reorder() {
	msgs := f.Messages
	for i, m := range msgs {
		if !midi.IsKeyRelease(m) {
			continue
		}
		for j := i + 1; j < len(msgs); j++ {
			if midi.IsKeyPress(msgs[j]) && msgs[j][1] == m[1] {
				msgs[i], msgs[j] = msgs[j], msgs[i]
				break
			}
		}
	}
}

// FromMIDI builds the timeline of a Standard MIDI File.
func FromMIDI(data []byte) (Timeline, error) {
	f, err := midi.Parse(data)
	if err != nil {
		return nil, err
	}
	return FromEvents(f.Events)
}

// FromEvents builds a timeline from decoded MIDI events.
func FromEvents(evs []midi.Event) (Timeline, error) {
	kevs, err := keys.Extract(evs)
	if err != nil {
		return nil, err
	}
	warnUndrawable(kevs)
	return Group(evs, kevs)
}

// undrawable logs each key outside of the keyboard once.
type undrawable [256]bool

func (u *undrawable) check(pitch uint8) {
	if !midi.Drawable(pitch) && !u[pitch] {
		u[pitch] = true
		logrus.Warnf("key outside of the keyboard: %s (%d)", midi.NoteName(pitch), pitch)
	}
}

func warnUndrawable(kevs []keys.Event) {
	var u undrawable
	for _, k := range kevs {
		u.check(k.Pitch)
	}
}
