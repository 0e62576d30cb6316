// Package keys derives keyboard presses and releases from MIDI events.
package keys

import (
	"errors"
	"fmt"
	"sort"

	"moria.us/lpyp/midi"
)

var (
	ErrNotSorted            = errors.New("events are not sorted by time")
	ErrAmbiguousEvent       = errors.New("event is both a key press and a key release")
	ErrOrphanRelease        = errors.New("key release without a previous press")
	ErrReconciliationFailed = errors.New("key is pressed and released at the same time")
)

// MaxShortening is the most a release is moved earlier to separate it from a
// press of the same key.
const MaxShortening = 75000000

// An Event is a key press or release at a time in nanoseconds.
type Event struct {
	Time   uint64
	Pitch  uint8
	Action midi.KeyAction
}

// Key returns the event without its time.
func (e Event) Key() midi.Key {
	return midi.Key{Pitch: e.Pitch, Action: e.Action}
}

func (e Event) String() string {
	return fmt.Sprintf("%d %s", e.Time, e.Key())
}

type slot struct {
	time  uint64
	pitch uint8
}

// Extract returns the key events for a list of MIDI events sorted by time.
//
// When a key is released and pressed again at the same time, the release is
// moved earlier by a quarter of the note's duration, at most MaxShortening,
// so the key visibly goes up between the notes. The result is therefore not
// always sorted by time.
func Extract(evs []midi.Event) ([]Event, error) {
	if !sort.SliceIsSorted(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time }) {
		return nil, ErrNotSorted
	}
	var r []Event
	for _, e := range evs {
		press, release := midi.IsKeyPress(e.Data), midi.IsKeyRelease(e.Data)
		switch {
		case press && release:
			return nil, fmt.Errorf("%w: % x", ErrAmbiguousEvent, e.Data)
		case press:
			r = append(r, Event{e.Time, e.Data[1], midi.Pressed})
		case release:
			r = append(r, Event{e.Time, e.Data[1], midi.Released})
		}
	}
	if err := separate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// separate moves releases which happen at the same time as a press of the same
// key. The events must be sorted by time.
func separate(evs []Event) error {
	releases := make(map[slot][]int)
	var pressTimes [256][]uint64
	for i, e := range evs {
		s := slot{e.Time, e.Pitch}
		switch e.Action {
		case midi.Released:
			releases[s] = append(releases[s], i)
		case midi.Pressed:
			pressTimes[e.Pitch] = append(pressTimes[e.Pitch], e.Time)
		}
	}
	for _, e := range evs {
		if e.Action != midi.Pressed {
			continue
		}
		s := slot{e.Time, e.Pitch}
		pending := releases[s]
		if len(pending) == 0 {
			continue
		}
		rel := &evs[pending[0]]
		releases[s] = pending[1:]

		// The press which started the released note.
		times := pressTimes[e.Pitch]
		n := sort.Search(len(times), func(i int) bool { return times[i] >= e.Time })
		if n == 0 {
			return fmt.Errorf("%w: %s at %d", ErrOrphanRelease, midi.NoteName(e.Pitch), e.Time)
		}
		duration := rel.Time - times[n-1]
		shorten := duration / 4
		if shorten > MaxShortening {
			shorten = MaxShortening
		}
		rel.Time -= shorten
	}

	pressed := make(map[slot]bool)
	for _, e := range evs {
		if e.Action == midi.Pressed {
			pressed[slot{e.Time, e.Pitch}] = true
		}
	}
	for _, e := range evs {
		if e.Action == midi.Released && pressed[slot{e.Time, e.Pitch}] {
			return fmt.Errorf("%w: %s at %d", ErrReconciliationFailed, midi.NoteName(e.Pitch), e.Time)
		}
	}
	return nil
}
