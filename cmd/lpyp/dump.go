package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/spf13/cobra"

	"moria.us/lpyp/keys"
	"moria.us/lpyp/midi"
	"moria.us/lpyp/playback"
	"moria.us/lpyp/song"
	"moria.us/lpyp/timeline"
	"moria.us/lpyp/watcher"
)

var (
	flagNotes  bool
	flagKeys   bool
	flagFrames bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the contents of a MIDI file or practice song",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dump(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	fs := dumpCmd.Flags()
	fs.BoolVar(&flagNotes, "notes", false, "print MIDI notes instead of events")
	fs.BoolVar(&flagKeys, "keys", false, "print reconciled key events instead of MIDI events")
	fs.BoolVar(&flagFrames, "frames", false, "print the playback timeline")
	rootCmd.AddCommand(dumpCmd)
}

func seconds(t uint64) float64 {
	return float64(t) / 1e9
}

func dump(w io.Writer, name string) error {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return err
	}
	if flagFrames {
		st, err := load(name)
		if err != nil {
			return err
		}
		p := playback.Printer{W: w}
		for i := range st.Timeline {
			if err := p.Play(&st.Timeline[i]); err != nil {
				return err
			}
		}
		return nil
	}
	switch watcher.Detect(data) {
	case watcher.MIDI:
		f, err := midi.ParseFile(name)
		if err != nil {
			return err
		}
		return dumpMIDI(w, f)
	case watcher.Song:
		s, err := song.ParseFile(name)
		if err != nil {
			return err
		}
		return dumpSong(w, s)
	default:
		return fmt.Errorf("%q: %w", name, watcher.ErrUnknownFormat)
	}
}

func dumpMIDI(w io.Writer, f *midi.File) error {
	h := f.Header
	fmt.Fprintf(w, "format %d, %d tracks, %s timing, division %d\n",
		h.Format, h.NumTracks, h.Timing, h.TickDiv)
	switch {
	case flagNotes:
		for _, n := range midi.Notes(f.Events) {
			fmt.Fprintf(w, "%12.3f %8.3f ch.%-2d %-4s %3d\n",
				seconds(n.Time), seconds(n.Duration), n.Channel, midi.NoteName(n.Pitch), n.Velocity)
		}
	case flagKeys:
		kevs, err := keys.Extract(f.Events)
		if err != nil {
			return err
		}
		for _, e := range kevs {
			fmt.Fprintf(w, "%12.3f %s\n", seconds(e.Time), e.Key())
		}
	default:
		for _, e := range f.Events {
			fmt.Fprintf(w, "%12.3f %s\n", seconds(e.Time), midi.Describe(e.Data))
		}
	}
	return nil
}

func dumpSong(w io.Writer, s *song.Song) error {
	fmt.Fprintf(w, "instruments: %s\n", strings.Join(s.Instruments, ", "))
	fmt.Fprintf(w, "%d events, %d pages\n", len(s.Events), len(s.Pages))
	for i := range s.Events {
		e := &s.Events[i]
		var b strings.Builder
		fmt.Fprintf(&b, "%6d %12.3f", i, seconds(e.Time))
		if e.Has(song.BarNumberChange) {
			fmt.Fprintf(&b, " bar=%d", e.BarNumber)
		}
		if e.Has(song.SvgFileChange) {
			fmt.Fprintf(&b, " page=%d", e.SvgFile)
		}
		if e.Has(song.CursorPosChange) {
			c := e.Cursor
			fmt.Fprintf(&b, " cursor=%d,%d,%d,%d", c.Left, c.Right, c.Top, c.Bottom)
		}
		for _, k := range e.KeysUp {
			fmt.Fprintf(&b, " [%s]", midi.Key{Pitch: k, Action: midi.Released})
		}
		for _, k := range e.KeysDown {
			fmt.Fprintf(&b, " [%s staff %d]", midi.Key{Pitch: k.Pitch}, k.Staff)
		}
		b.WriteString("\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	if len(s.Events) != 0 {
		tl, err := timeline.FromSong(s, timeline.WholeSong(s))
		if err != nil {
			return err
		}
		msgs, _ := tl.Count()
		fmt.Fprintf(w, "%d frames, %d messages\n", len(tl), msgs)
	}
	return nil
}
