package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"moria.us/lpyp/measure"
	"moria.us/lpyp/song"
	"moria.us/lpyp/timeline"
	"moria.us/lpyp/watcher"
)

var rangesCmd = &cobra.Command{
	Use:   "ranges SONG FIRST [LAST]",
	Short: "List the ways of playing measures FIRST to LAST of a practice song",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := song.ParseFile(args[0])
		if err != nil {
			return err
		}
		first, err := parseMeasure(args[1])
		if err != nil {
			return err
		}
		last := first
		if len(args) == 3 {
			if last, err = parseMeasure(args[2]); err != nil {
				return err
			}
		}
		return printRanges(cmd.OutOrStdout(), s, first, last)
	},
}

func init() {
	rootCmd.AddCommand(rangesCmd)
}

func parseMeasure(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid measure %q", s)
	}
	return uint16(n), nil
}

func printRanges(w io.Writer, s *song.Song, first, last uint16) error {
	rs, err := measure.Ranges(s, first, last)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		fmt.Fprintf(w, "no ranges from measure %d to %d\n", first, last)
		return nil
	}
	for i, r := range rs {
		d := s.Events[r.End].Time - s.Events[r.Start].Time
		fmt.Fprintf(w, "%3d: events %s, %.3fs\n", i, r, seconds(d))
	}
	return nil
}

// measureFlags selects part of a practice song to play or export.
type measureFlags struct {
	first uint16
	last  uint16
	index int
}

func (f *measureFlags) add(fs *pflag.FlagSet) {
	fs.Uint16Var(&f.first, "first", 0, "first measure to play")
	fs.Uint16Var(&f.last, "last", 0, "last measure to play, defaults to --first")
	fs.IntVar(&f.index, "range", 0, "which of the ranges from the first to the last measure to play")
}

func (f *measureFlags) set(fs *pflag.FlagSet) bool {
	return fs.Changed("first") || fs.Changed("last") || fs.Changed("range")
}

// timeline returns the timeline for the selected measures of the file.
func (f *measureFlags) timeline(fs *pflag.FlagSet, st *watcher.State) (timeline.Timeline, error) {
	if !f.set(fs) {
		return st.Timeline, nil
	}
	if st.Song == nil {
		return nil, errors.New("measures can only be selected in practice songs")
	}
	first := f.first
	if !fs.Changed("first") {
		first = 1
	}
	last := f.last
	if !fs.Changed("last") {
		last = first
	}
	rs, err := measure.Ranges(st.Song, first, last)
	if err != nil {
		return nil, err
	}
	if f.index < 0 || f.index >= len(rs) {
		return nil, fmt.Errorf("range %d does not exist, measures %d to %d have %d ranges", f.index, first, last, len(rs))
	}
	return timeline.FromSong(st.Song, rs[f.index])
}
