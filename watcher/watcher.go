// Package watcher loads a MIDI file or practice song and reloads it whenever
// it changes on disk.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"moria.us/lpyp/song"
	"moria.us/lpyp/timeline"
)

var ErrUnknownFormat = errors.New("file is neither a MIDI file nor a practice song")

// A Kind is the format of a loaded file.
type Kind uint8

const (
	Unknown Kind = iota
	MIDI
	Song
)

func (k Kind) String() string {
	switch k {
	case MIDI:
		return "midi"
	case Song:
		return "song"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// A State is the result of loading a file once. States are never modified
// after they are created; each reload creates a new one.
type State struct {
	ID       uuid.UUID
	Name     string
	Kind     Kind
	Song     *song.Song // Only for practice songs.
	Timeline timeline.Timeline
	Err      error
}

// Detect returns the kind of file from its header.
func Detect(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, []byte("MThd")):
		return MIDI
	case bytes.HasPrefix(data, []byte("LPYP")):
		return Song
	default:
		return Unknown
	}
}

func decode(data []byte) (Kind, *song.Song, timeline.Timeline, error) {
	switch k := Detect(data); k {
	case MIDI:
		tl, err := timeline.FromMIDI(data)
		return k, nil, tl, err
	case Song:
		s, err := song.Parse(data)
		if err != nil {
			return k, nil, nil, err
		}
		tl, err := timeline.FromSong(s, timeline.WholeSong(s))
		return k, s, tl, err
	default:
		return k, nil, nil, ErrUnknownFormat
	}
}

// Load loads a MIDI file or practice song. Errors are returned in the state.
func Load(name string) *State {
	st := State{
		ID:   uuid.New(),
		Name: name,
	}
	data, err := ioutil.ReadFile(name)
	if err != nil {
		st.Err = err
	} else if st.Kind, st.Song, st.Timeline, err = decode(data); err != nil {
		st.Err = pkgerrors.Wrapf(err, "%s %q", st.Kind, name)
		st.Song = nil
		st.Timeline = nil
	}
	if st.Err != nil {
		logrus.Errorln("Load:", st.Err)
	} else {
		logrus.Infof("Loaded %s %q: %d frames", st.Kind, name, len(st.Timeline))
	}
	return &st
}

type watcher struct {
	name    string
	output  chan<- *State
	watcher *fsnotify.Watcher
	reload  chan struct{}
}

// Watch loads a file, and loads it again each time it changes. Changes which
// happen within delay of each other cause a single reload. The channel is
// closed when the context is canceled or watching fails.
func Watch(ctx context.Context, name string, delay time.Duration) (<-chan *State, error) {
	name = filepath.Clean(name)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace the file, so watch the directory.
	if err := fw.Add(filepath.Dir(name)); err != nil {
		fw.Close()
		return nil, err
	}
	ch := make(chan *State, 1)
	w := watcher{
		name:    name,
		output:  ch,
		watcher: fw,
		reload:  make(chan struct{}, 1),
	}
	go w.watch(ctx, delay)
	return ch, nil
}

func (w *watcher) watch(ctx context.Context, delay time.Duration) {
	defer close(w.output)
	defer w.watcher.Close()
	if err := w.watchFunc(ctx, delay); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorln("Watch:", err)
		select {
		case w.output <- &State{ID: uuid.New(), Name: w.name, Err: err}:
		case <-ctx.Done():
		}
	}
}

func (w *watcher) send(ctx context.Context, st *State) error {
	select {
	case w.output <- st:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *watcher) watchFunc(ctx context.Context, delay time.Duration) error {
	if err := w.send(ctx, Load(w.name)); err != nil {
		return err
	}
	debounced := debounce.New(delay)
	trigger := func() {
		select {
		case w.reload <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher channel closed")
			}
			if filepath.Clean(ev.Name) == w.name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounced(trigger)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher channel closed")
			}
			return err
		case <-w.reload:
			if err := w.send(ctx, Load(w.name)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
