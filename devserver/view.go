package devserver

import (
	"github.com/google/uuid"

	"moria.us/lpyp/measure"
	"moria.us/lpyp/midi"
	"moria.us/lpyp/timeline"
	"moria.us/lpyp/watcher"
)

// A stateView is the JSON form of a loaded file, sent to clients over the
// websocket and from /api/state.
type stateView struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Kind        watcher.Kind `json:"kind"`
	Error       string       `json:"error,omitempty"`
	Instruments []string     `json:"instruments,omitempty"`
	Events      int          `json:"events,omitempty"`
	Pages       int          `json:"pages,omitempty"`
	LastMeasure *uint16      `json:"lastMeasure,omitempty"`
	Frames      int          `json:"frames"`
	Messages    int          `json:"messages"`
	Keys        int          `json:"keys"`
	Duration    uint64       `json:"duration"`
}

func newStateView(st *watcher.State) *stateView {
	v := stateView{
		ID:     st.ID,
		Name:   st.Name,
		Kind:   st.Kind,
		Frames: len(st.Timeline),
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	if s := st.Song; s != nil {
		v.Instruments = s.Instruments
		v.Events = len(s.Events)
		v.Pages = len(s.Pages)
		if n, err := measure.LastMeasure(s); err == nil {
			v.LastMeasure = &n
		}
	}
	v.Messages, v.Keys = st.Timeline.Count()
	v.Duration = st.Timeline.Duration()
	return &v
}

type frameView struct {
	Time     uint64   `json:"time"`
	Messages []string `json:"messages"`
	Keys     []string `json:"keys,omitempty"`
}

func newFrameViews(tl timeline.Timeline) []frameView {
	r := make([]frameView, len(tl))
	for i, f := range tl {
		v := frameView{
			Time:     f.Time,
			Messages: make([]string, len(f.Messages)),
		}
		for j, m := range f.Messages {
			v.Messages[j] = midi.Describe(m)
		}
		for _, k := range f.Keys {
			v.Keys = append(v.Keys, k.String())
		}
		r[i] = v
	}
	return r
}

type rangeView struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Duration uint64 `json:"duration"`
}
