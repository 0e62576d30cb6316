package timeline

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"

	"moria.us/lpyp/measure"
	"moria.us/lpyp/midi"
	"moria.us/lpyp/song"
)

// Velocity and channel of the messages synthesized for practice songs.
const (
	songChannel  = 0
	songVelocity = 64
)

// FromSong builds the timeline for the events of a practice song in r. Times
// are relative to the first event in the range. Releases in an event are
// sent before presses.
func FromSong(s *song.Song, r measure.Range) (Timeline, error) {
	if r.Start < 0 || r.End >= len(s.Events) || r.End < r.Start {
		return nil, fmt.Errorf("%w: range %s, song has %d events", measure.ErrIndex, r, len(s.Events))
	}
	evs := s.Events[r.Start : r.End+1]
	start := evs[0].Time
	var tl Timeline
	var warn undrawable
	for i := range evs {
		e := &evs[i]
		t := e.Time - start
		if len(e.KeysUp) == 0 && len(e.KeysDown) == 0 {
			continue
		}
		if len(tl) == 0 || tl[len(tl)-1].Time != t {
			tl = append(tl, Frame{Time: t})
		}
		f := &tl[len(tl)-1]
		for _, p := range e.KeysUp {
			f.Messages = append(f.Messages, []byte(gomidi.NoteOff(songChannel, p)))
			f.Keys = append(f.Keys, midi.Key{Pitch: p, Action: midi.Released})
		}
		for _, k := range e.KeysDown {
			f.Messages = append(f.Messages, []byte(gomidi.NoteOn(songChannel, k.Pitch, songVelocity)))
			f.Keys = append(f.Keys, midi.Key{Pitch: k.Pitch, Action: midi.Pressed})
			warn.check(k.Pitch)
		}
	}
	return tl, nil
}

// WholeSong returns the range covering every event of s.
func WholeSong(s *song.Song) measure.Range {
	return measure.Range{Start: 0, End: len(s.Events) - 1}
}
