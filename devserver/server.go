// Package devserver serves a practice song or MIDI file over HTTP while it is
// being edited, and notifies browsers when it is reloaded.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"moria.us/lpyp/config"
	"moria.us/lpyp/export"
	"moria.us/lpyp/measure"
	"moria.us/lpyp/song"
	"moria.us/lpyp/svg"
	"moria.us/lpyp/timeline"
	"moria.us/lpyp/watcher"
)

const (
	htmlType  = "text/html; charset=UTF-8"
	textType  = "text/plain; charset=UTF-8"
	jsonType  = "application/json"
	svgType   = "image/svg+xml"
	protoType = "application/x-protobuf"
)

var errNotSong = errors.New("file is not a practice song")

// A Server serves the most recent state received from a watcher.
type Server struct {
	states  states
	origins []string
	handler http.Handler
}

// New creates a server. Call Watch to give it states to serve.
func New(cfg *config.Config) *Server {
	s := &Server{origins: cfg.AllowedOrigins}
	mx := chi.NewMux()
	mx.Get("/", s.serveIndex)
	mx.Get("/api/state", s.serveState)
	mx.Get("/api/timeline", s.serveTimeline)
	mx.Get("/api/timeline.pb", s.serveTimelineProto)
	mx.Get("/api/ranges", s.serveRanges)
	mx.Get("/api/pages/{page}", s.servePage)
	mx.Get("/api/cursor/{event}", s.serveCursor)
	mx.Get("/api/ws", s.serveSocket)
	mx.NotFound(serveNotFound)
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	s.handler = c.Handler(mx)
	return s
}

// Watch serves each state received from ch, until ch is closed or the
// context is canceled.
func (s *Server) Watch(ctx context.Context, ch <-chan *watcher.State) {
	s.states.watch(ctx, ch)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func logResponse(r *http.Request, status int, msg string) {
	if status >= 400 {
		if msg == "" {
			msg = http.StatusText(status)
		}
		logrus.Errorln(status, r.URL, msg)
	} else if msg == "" {
		logrus.Infoln(status, r.URL)
	} else {
		logrus.Infoln(status, r.URL, msg)
	}
}

func serveStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	type tdata struct {
		Status     int
		StatusText string
		Message    string
	}
	d := tdata{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    msg,
	}
	ctype := htmlType
	b, err := execute(statusTemplate, &d)
	if err != nil {
		logrus.Errorln("statusTemplate.Execute:", err)
		ctype = textType
		b = []byte(fmt.Sprintf("%d %s\n%s\n", d.Status, d.StatusText, d.Message))
	}
	logResponse(r, status, msg)
	writeData(w, status, ctype, b)
}

func writeData(w http.ResponseWriter, status int, ctype string, data []byte) {
	hdr := w.Header()
	hdr.Set("Content-Type", ctype)
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	hdr.Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	w.Write(data)
}

func serveError(w http.ResponseWriter, r *http.Request, err error) {
	serveStatus(w, r, http.StatusInternalServerError, err.Error())
}

func serveNotFound(w http.ResponseWriter, r *http.Request) {
	serveStatus(w, r, http.StatusNotFound, fmt.Sprintf("Page not found: %q", r.URL))
}

func serveBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	serveStatus(w, r, http.StatusBadRequest, msg)
}

func serveOK(w http.ResponseWriter, r *http.Request, ctype string, data []byte) {
	logResponse(r, http.StatusOK, "")
	writeData(w, http.StatusOK, ctype, data)
}

func serveJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveOK(w, r, jsonType, data)
}

// current returns the loaded state. If loading failed, it writes an error
// response and returns nil.
func (s *Server) current(w http.ResponseWriter, r *http.Request) *watcher.State {
	st, err := s.states.get(r.Context())
	if err != nil {
		// ctx canceled.
		return nil
	}
	if st.Err != nil {
		serveError(w, r, st.Err)
		return nil
	}
	return st
}

// currentSong is like current, but fails if the file is not a practice song.
func (s *Server) currentSong(w http.ResponseWriter, r *http.Request) *song.Song {
	st := s.current(w, r)
	if st == nil {
		return nil
	}
	if st.Song == nil {
		serveStatus(w, r, http.StatusNotFound, errNotSong.Error())
		return nil
	}
	return st.Song
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.get(r.Context())
	if err != nil {
		return
	}
	data, err := execute(indexTemplate, newStateView(st))
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveOK(w, r, htmlType, data)
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	st, err := s.states.get(r.Context())
	if err != nil {
		return
	}
	serveJSON(w, r, newStateView(st))
}

// requestTimeline returns the timeline for the request. Practice songs can
// be limited to a range of events with the start and end parameters.
func (s *Server) requestTimeline(w http.ResponseWriter, r *http.Request) (timeline.Timeline, bool) {
	st := s.current(w, r)
	if st == nil {
		return nil, false
	}
	q := r.URL.Query()
	if q.Get("start") == "" && q.Get("end") == "" {
		return st.Timeline, true
	}
	if st.Song == nil {
		serveBadRequest(w, r, errNotSong.Error())
		return nil, false
	}
	rg := timeline.WholeSong(st.Song)
	for _, p := range []struct {
		name string
		ptr  *int
	}{{"start", &rg.Start}, {"end", &rg.End}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				serveBadRequest(w, r, fmt.Sprintf("invalid %s: %q", p.name, v))
				return nil, false
			}
			*p.ptr = n
		}
	}
	tl, err := timeline.FromSong(st.Song, rg)
	if err != nil {
		serveBadRequest(w, r, err.Error())
		return nil, false
	}
	return tl, true
}

func (s *Server) serveTimeline(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.requestTimeline(w, r)
	if !ok {
		return
	}
	serveJSON(w, r, newFrameViews(tl))
}

func (s *Server) serveTimelineProto(w http.ResponseWriter, r *http.Request) {
	tl, ok := s.requestTimeline(w, r)
	if !ok {
		return
	}
	var b bytes.Buffer
	if err := export.Write(&b, tl); err != nil {
		serveError(w, r, err)
		return
	}
	serveOK(w, r, protoType, b.Bytes())
}

func parseMeasure(q string) (uint16, error) {
	n, err := strconv.ParseUint(q, 10, 16)
	return uint16(n), err
}

func (s *Server) serveRanges(w http.ResponseWriter, r *http.Request) {
	sg := s.currentSong(w, r)
	if sg == nil {
		return
	}
	q := r.URL.Query()
	first, err := parseMeasure(q.Get("first"))
	if err != nil {
		serveBadRequest(w, r, fmt.Sprintf("invalid first measure: %q", q.Get("first")))
		return
	}
	last := first
	if v := q.Get("last"); v != "" {
		if last, err = parseMeasure(v); err != nil {
			serveBadRequest(w, r, fmt.Sprintf("invalid last measure: %q", v))
			return
		}
	}
	rs, err := measure.Ranges(sg, first, last)
	if err != nil {
		serveError(w, r, err)
		return
	}
	vs := make([]rangeView, len(rs))
	for i, rg := range rs {
		vs[i] = rangeView{
			Start:    rg.Start,
			End:      rg.End,
			Duration: sg.Events[rg.End].Time - sg.Events[rg.Start].Time,
		}
	}
	serveJSON(w, r, vs)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	sg := s.currentSong(w, r)
	if sg == nil {
		return
	}
	n, err := strconv.ParseUint(chi.URLParam(r, "page"), 10, 16)
	if err != nil || int(n) >= len(sg.Pages) {
		serveNotFound(w, r)
		return
	}
	serveOK(w, r, svgType, sg.Pages[n])
}

// serveCursor serves an overlay for the page shown at an event, with the
// cursor box at the event's cursor position.
func (s *Server) serveCursor(w http.ResponseWriter, r *http.Request) {
	sg := s.currentSong(w, r)
	if sg == nil {
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "event"))
	if err != nil {
		serveNotFound(w, r)
		return
	}
	pi, err := measure.PagePos(sg, idx)
	if err != nil {
		serveStatus(w, r, http.StatusNotFound, err.Error())
		return
	}
	ci, err := measure.CursorPos(sg, idx)
	if err != nil {
		serveStatus(w, r, http.StatusNotFound, err.Error())
		return
	}
	page := sg.Events[pi].SvgFile
	c := sg.Events[ci].Cursor
	w.Header().Set("X-Page", strconv.Itoa(int(page)))
	serveOK(w, r, svgType, svg.Overlay(sg.Pages[page], c.Left, c.Right, c.Top, c.Bottom))
}
