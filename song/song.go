// Package song decodes practice songs: the LPYP container holding the
// instrument names, the timed music sheet events and the sheet music pages.
package song

import (
	"errors"
	"fmt"
	"io/ioutil"
	"unicode/utf8"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"moria.us/lpyp/codec"
	"moria.us/lpyp/svg"
)

const (
	magic   = "LPYP"
	version = 0
)

var (
	ErrUnsupportedVersion = errors.New("unknown song format version")
	ErrNoInstrument       = errors.New("at least one instrument must be played")
	ErrEmptySong          = errors.New("song has nothing happening")
	ErrEmptyGroup         = errors.New("event group is empty")
	ErrInvalidEventTag    = errors.New("invalid event tag")
	ErrDuplicateFlag      = errors.New("event group changes the same property twice")
	ErrPageWithoutCursor  = errors.New("page change without a cursor change")
	ErrNotChronological   = errors.New("events are not in chronological order")
	ErrInvalidSvgPage     = errors.New("invalid svg page")
	ErrMissingSvgPage     = errors.New("event refers to a missing svg page")
)

// A PageError is an error in one of the embedded sheet music pages.
type PageError struct {
	Index int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("svg page %d: %v", e.Index, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func (e *PageError) Is(target error) bool {
	return target == ErrInvalidSvgPage
}

// Flags records which properties an event changes, besides keys.
type Flags uint8

const (
	BarNumberChange Flags = 1 << iota
	CursorPosChange
	SvgFileChange
)

func (f Flags) String() string {
	var s []byte
	for i, name := range [...]string{"bar", "cursor", "svg"} {
		if f&(1<<i) != 0 {
			if len(s) != 0 {
				s = append(s, '|')
			}
			s = append(s, name...)
		}
	}
	if len(s) == 0 {
		return "none"
	}
	return string(s)
}

// A KeyDown is a key press, with the staff the note is written on.
type KeyDown struct {
	Pitch uint8
	Staff uint8
}

// A Cursor is the box around the current position on the sheet music page,
// in page coordinates.
type Cursor struct {
	Left   uint32
	Right  uint32
	Top    uint32
	Bottom uint32
}

// An Event is everything that happens at one time in a song.
type Event struct {
	Time     uint64
	KeysDown []KeyDown
	KeysUp   []uint8
	Flags    Flags

	// Only valid if the corresponding flag is set.
	BarNumber uint16
	Cursor    Cursor
	SvgFile   uint16
}

// Has returns true if all the flags in f are set.
func (e *Event) Has(f Flags) bool {
	return e.Flags&f == f
}

// A Song is a decoded practice song.
type Song struct {
	Instruments []string
	Events      []Event
	Pages       [][]byte
}

// =============================================================================

// Event tags.
const (
	tagPress = iota
	tagRelease
	tagBar
	tagCursor
	tagSvg
)

// Smallest encoded group: time, count, and a release.
const minGroupSize = 8 + 1 + 2

func decodeName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func (e *Event) setFlag(r *codec.Reader, f Flags) error {
	if e.Flags&f != 0 {
		return r.Failf(ErrDuplicateFlag, "%s", f)
	}
	e.Flags |= f
	return nil
}

func readEvent(r *codec.Reader) (e Event, err error) {
	if e.Time, err = r.U64(); err != nil {
		return e, err
	}
	n, err := r.U8()
	if err != nil {
		return e, err
	}
	if n == 0 {
		return e, r.Fail(ErrEmptyGroup)
	}
	for i := 0; i < int(n); i++ {
		tag, err := r.U8()
		if err != nil {
			return e, err
		}
		switch tag {
		case tagPress:
			b, err := r.Bytes(2)
			if err != nil {
				return e, err
			}
			e.KeysDown = append(e.KeysDown, KeyDown{Pitch: b[0], Staff: b[1]})
		case tagRelease:
			p, err := r.U8()
			if err != nil {
				return e, err
			}
			e.KeysUp = append(e.KeysUp, p)
		case tagBar:
			if err := e.setFlag(r, BarNumberChange); err != nil {
				return e, err
			}
			if e.BarNumber, err = r.U16(); err != nil {
				return e, err
			}
		case tagCursor:
			if err := e.setFlag(r, CursorPosChange); err != nil {
				return e, err
			}
			for _, v := range []*uint32{&e.Cursor.Left, &e.Cursor.Right, &e.Cursor.Top, &e.Cursor.Bottom} {
				if *v, err = r.U32(); err != nil {
					return e, err
				}
			}
		case tagSvg:
			if err := e.setFlag(r, SvgFileChange); err != nil {
				return e, err
			}
			if e.SvgFile, err = r.U16(); err != nil {
				return e, err
			}
		default:
			return e, r.Failf(ErrInvalidEventTag, "tag %d", tag)
		}
	}
	if e.Has(SvgFileChange) && !e.Has(CursorPosChange) {
		return e, r.Fail(ErrPageWithoutCursor)
	}
	return e, nil
}

// Parse decodes a practice song, checking every page with svg.Check.
func Parse(data []byte) (*Song, error) {
	return ParseWith(data, svg.Check)
}

// ParseWith decodes a practice song, using check to validate each embedded
// page.
func ParseWith(data []byte, check func([]byte) error) (*Song, error) {
	r := codec.NewReader(data)
	if err := r.Magic(magic); err != nil {
		return nil, err
	}
	v, err := r.U8()
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, r.Failf(ErrUnsupportedVersion, "version %d", v)
	}

	ninstr, err := r.U8()
	if err != nil {
		return nil, err
	}
	if ninstr == 0 {
		return nil, r.Fail(ErrNoInstrument)
	}
	var s Song
	for i := 0; i < int(ninstr); i++ {
		name, err := r.CString()
		if err != nil {
			return nil, err
		}
		s.Instruments = append(s.Instruments, decodeName(name))
	}

	ngroup, err := r.U64()
	if err != nil {
		return nil, err
	}
	if ngroup == 0 {
		return nil, r.Fail(ErrEmptySong)
	}
	if ngroup > uint64(r.Len()/minGroupSize) {
		return nil, r.Failf(codec.ErrTruncated, "%d event groups", ngroup)
	}
	s.Events = make([]Event, 0, int(ngroup))
	for i := uint64(0); i < ngroup; i++ {
		e, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("event group %d: %w", i, err)
		}
		s.Events = append(s.Events, e)
	}
	for i := 1; i < len(s.Events); i++ {
		if s.Events[i].Time < s.Events[i-1].Time {
			return nil, fmt.Errorf("%w: group %d at %d ns follows %d ns",
				ErrNotChronological, i, s.Events[i].Time, s.Events[i-1].Time)
		}
	}

	npage, err := r.U16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(npage); i++ {
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		if uint64(size) > uint64(r.Len()) {
			return nil, r.Failf(codec.ErrTruncated, "svg page %d is %d bytes", i, size)
		}
		page, err := r.Bytes(int(size))
		if err != nil {
			return nil, err
		}
		s.Pages = append(s.Pages, append([]byte(nil), page...))
	}
	for i, page := range s.Pages {
		if err := check(page); err != nil {
			return nil, &PageError{Index: i, Err: err}
		}
	}
	for i := range s.Events {
		e := &s.Events[i]
		if e.Has(SvgFileChange) && int(e.SvgFile) >= len(s.Pages) {
			return nil, fmt.Errorf("%w: group %d refers to page %d, song has %d pages",
				ErrMissingSvgPage, i, e.SvgFile, len(s.Pages))
		}
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads and decodes a practice song.
func ParseFile(name string) (*Song, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "song %q", name)
	}
	return s, nil
}
