package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moria.us/lpyp/song"
	"moria.us/lpyp/timeline"
	"moria.us/lpyp/watcher"
)

func midiData() []byte {
	track := []byte{
		0, 0x90, 60, 100,
		0x60, 0x80, 60, 0,
		0, 0xff, 0x2f, 0,
	}
	b := []byte("MThd\x00\x00\x00\x06\x00\x00\x00\x01\x00\x60MTrk")
	b = binary.BigEndian.AppendUint32(b, uint32(len(track)))
	return append(b, track...)
}

func testSong() *song.Song {
	return &song.Song{
		Instruments: []string{"Piano"},
		Events: []song.Event{
			{Time: 0, KeysDown: []song.KeyDown{{Pitch: 60}}, Flags: song.BarNumberChange, BarNumber: 1},
			{Time: 500000000, KeysUp: []uint8{60}, KeysDown: []song.KeyDown{{Pitch: 62}}},
			{Time: 1000000000, KeysUp: []uint8{62}, Flags: song.BarNumberChange, BarNumber: 2},
			{Time: 1500000000, KeysDown: []song.KeyDown{{Pitch: 64}}, Flags: song.BarNumberChange, BarNumber: 1},
			{Time: 2000000000, KeysUp: []uint8{64}},
		},
	}
}

func TestDumpMIDI(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a.mid")
	require.NoError(t, os.WriteFile(name, midiData(), 0o666))

	var buf bytes.Buffer
	require.NoError(t, dump(&buf, name))
	out := buf.String()
	assert.Contains(t, out, "format 0, 1 tracks")
	assert.Contains(t, out, "       0.000 ")
	assert.Contains(t, out, "       0.500 ")

	flagNotes = true
	defer func() { flagNotes = false }()
	buf.Reset()
	require.NoError(t, dump(&buf, name))
	assert.Contains(t, buf.String(), "       0.000    0.500 ch.0  C4   100\n")
}

func TestDumpUnknown(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello"), 0o666))
	assert.ErrorIs(t, dump(&bytes.Buffer{}, name), watcher.ErrUnknownFormat)
}

func TestDumpSong(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpSong(&buf, testSong()))
	out := buf.String()
	assert.Contains(t, out, "instruments: Piano\n")
	assert.Contains(t, out, "     0        0.000 bar=1 [press C4 staff 0]\n")
	assert.Contains(t, out, "     1        0.500 [release C4] [press D4 staff 0]\n")
	assert.Contains(t, out, "5 frames, 6 messages\n")
}

func TestPrintRanges(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRanges(&buf, testSong(), 1, 1))
	assert.Equal(t, "  0: events 0-1, 0.500s\n"+
		"  1: events 0-4, 2.000s\n"+
		"  2: events 3-4, 0.500s\n", buf.String())

	buf.Reset()
	require.NoError(t, printRanges(&buf, testSong(), 3, 3))
	assert.Equal(t, "no ranges from measure 3 to 3\n", buf.String())
}

func TestMeasureFlags(t *testing.T) {
	s := testSong()
	full, err := timeline.FromSong(s, timeline.WholeSong(s))
	require.NoError(t, err)
	st := &watcher.State{Kind: watcher.Song, Song: s, Timeline: full}

	type testcase struct {
		args  []string
		times []uint64
		ok    bool
	}
	cases := []testcase{
		{nil, []uint64{0, 500000000, 1000000000, 1500000000, 2000000000}, true},
		{[]string{"--first=1"}, []uint64{0, 500000000}, true},
		{[]string{"--first=1", "--range=1"}, []uint64{0, 500000000, 1000000000, 1500000000, 2000000000}, true},
		{[]string{"--first=1", "--range=2"}, []uint64{0, 500000000}, true},
		{[]string{"--first=1", "--last=2"}, []uint64{0, 500000000, 1000000000}, true},
		{[]string{"--first=1", "--range=3"}, nil, false},
		{[]string{"--first=4"}, nil, false},
	}
	for _, c := range cases {
		var f measureFlags
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		f.add(fs)
		require.NoError(t, fs.Parse(c.args))
		tl, err := f.timeline(fs, st)
		if !c.ok {
			assert.Error(t, err, "%q", c.args)
			continue
		}
		if !assert.NoError(t, err, "%q", c.args) {
			continue
		}
		var times []uint64
		for _, fr := range tl {
			times = append(times, fr.Time)
		}
		assert.Equal(t, c.times, times, "%q", c.args)
	}

	var f measureFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.add(fs)
	require.NoError(t, fs.Parse([]string{"--first=1"}))
	_, err = f.timeline(fs, &watcher.State{Kind: watcher.MIDI})
	assert.Error(t, err)
}
