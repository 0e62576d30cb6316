// Package measure finds the events of a practice song which start and end
// measures, so that part of a song can be played.
package measure

import (
	"errors"
	"fmt"
	"sort"

	"moria.us/lpyp/song"
)

var (
	ErrNoBarChange = errors.New("song has no bar number change")
	ErrNoPage      = errors.New("no page change at or before event")
	ErrNoCursor    = errors.New("no cursor change at or before event")
	ErrIndex       = errors.New("event index out of range")

	errNotSorted = errors.New("positions are not sorted and unique")
)

// A Range is an inclusive range of event indexes.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Len returns the number of events in the range.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// starts returns the indexes of the events which change the bar number to
// bar.
func starts(s *song.Song, bar uint16) []int {
	var r []int
	for i := range s.Events {
		e := &s.Events[i]
		if e.Has(song.BarNumberChange) && e.BarNumber == bar {
			r = append(r, i)
		}
	}
	return r
}

// ends returns the indexes of the last events of each occurrence of measure
// bar: the event before the next bar number change, or the last event.
func ends(s *song.Song, bar uint16) []int {
	var r []int
	for _, pos := range starts(s, bar) {
		end := len(s.Events) - 1
		for i := pos + 1; i < len(s.Events); i++ {
			if s.Events[i].Has(song.BarNumberChange) {
				end = i - 1
				break
			}
		}
		r = append(r, end)
	}
	return r
}

func strictlyIncreasing(pos []int) bool {
	for i := 1; i < len(pos); i++ {
		if pos[i] <= pos[i-1] {
			return false
		}
	}
	return true
}

// Ranges returns every range of events which plays from the start of measure
// first to the end of measure last, sorted by start and then end.
func Ranges(s *song.Song, first, last uint16) ([]Range, error) {
	st := starts(s, first)
	en := ends(s, last)
	if !strictlyIncreasing(st) || !strictlyIncreasing(en) {
		return nil, errNotSorted
	}
	var r []Range
	for _, start := range st {
		for _, end := range en {
			if end > start {
				r = append(r, Range{start, end})
			}
		}
	}
	if !sort.SliceIsSorted(r, func(i, j int) bool {
		return r[i].Start < r[j].Start || (r[i].Start == r[j].Start && r[i].End < r[j].End)
	}) {
		return nil, errNotSorted
	}
	for i := 1; i < len(r); i++ {
		if r[i] == r[i-1] {
			return nil, errNotSorted
		}
	}
	return r, nil
}

// LastMeasure returns the bar number of the last bar number change.
func LastMeasure(s *song.Song) (uint16, error) {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if e := &s.Events[i]; e.Has(song.BarNumberChange) {
			return e.BarNumber, nil
		}
	}
	return 0, ErrNoBarChange
}

func lastWith(s *song.Song, index int, f song.Flags, notFound error) (int, error) {
	if index < 0 || index >= len(s.Events) {
		return 0, fmt.Errorf("%w: %d, song has %d events", ErrIndex, index, len(s.Events))
	}
	for i := index; i >= 0; i-- {
		if s.Events[i].Has(f) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w %d", notFound, index)
}

// PagePos returns the index of the last event at or before index which
// changes the sheet music page.
func PagePos(s *song.Song, index int) (int, error) {
	return lastWith(s, index, song.SvgFileChange, ErrNoPage)
}

// CursorPos returns the index of the last event at or before index which
// moves the cursor.
func CursorPos(s *song.Song, index int) (int, error) {
	return lastWith(s, index, song.CursorPosChange, ErrNoCursor)
}
