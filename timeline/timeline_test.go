package timeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moria.us/lpyp/keys"
	"moria.us/lpyp/measure"
	"moria.us/lpyp/midi"
	"moria.us/lpyp/song"
)

func on(t uint64, pitch uint8) midi.Event  { return midi.Event{Time: t, Data: []byte{0x90, pitch, 100}} }
func off(t uint64, pitch uint8) midi.Event { return midi.Event{Time: t, Data: []byte{0x80, pitch, 0}} }

func TestGroup(t *testing.T) {
	msgs := []midi.Event{
		on(0, 60),
		{Time: 0, Data: []byte{0xc0, 3}},
		off(100, 60),
		on(100, 62),
		off(300, 62),
	}
	kevs := []keys.Event{
		{Time: 0, Pitch: 60, Action: midi.Pressed},
		{Time: 75, Pitch: 60, Action: midi.Released},
		{Time: 100, Pitch: 62, Action: midi.Pressed},
		{Time: 300, Pitch: 62, Action: midi.Released},
	}
	tl, err := Group(msgs, kevs)
	require.NoError(t, err)
	assert.Equal(t, Timeline{
		{Time: 0, Messages: [][]byte{{0x90, 60, 100}, {0xc0, 3}}, Keys: []midi.Key{{60, midi.Pressed}}},
		{Time: 75, Keys: []midi.Key{{60, midi.Released}}},
		{Time: 100, Messages: [][]byte{{0x80, 60, 0}, {0x90, 62, 100}}, Keys: []midi.Key{{62, midi.Pressed}}},
		{Time: 300, Messages: [][]byte{{0x80, 62, 0}}, Keys: []midi.Key{{62, midi.Released}}},
	}, tl)
	nmsg, nkey := tl.Count()
	assert.Equal(t, len(msgs), nmsg)
	assert.Equal(t, len(kevs), nkey)
	assert.Equal(t, uint64(300), tl.Duration())
}

func TestGroupReorder(t *testing.T) {
	msgs := []midi.Event{
		on(0, 60),
		on(0, 64),
		off(1000, 60),
		off(1000, 64),
		on(1000, 60),
		off(2000, 60),
	}
	kevs, err := keys.Extract(msgs)
	require.NoError(t, err)
	tl, err := Group(msgs, kevs)
	require.NoError(t, err)
	require.Len(t, tl, 4)
	assert.Equal(t, [][]byte{{0x90, 60, 100}, {0x80, 64, 0}, {0x80, 60, 0}}, tl[2].Messages)
}

func TestGroupErrors(t *testing.T) {
	type testcase struct {
		name string
		msgs []midi.Event
		kevs []keys.Event
		err  error
	}
	cases := []testcase{
		{
			name: "unpaired",
			msgs: []midi.Event{on(0, 60)},
			kevs: []keys.Event{{Time: 0, Pitch: 60, Action: midi.Pressed}},
			err:  ErrPressReleaseMismatch,
		},
		{
			name: "same frame",
			kevs: []keys.Event{
				{Time: 0, Pitch: 60, Action: midi.Pressed},
				{Time: 10, Pitch: 60, Action: midi.Released},
				{Time: 10, Pitch: 60, Action: midi.Pressed},
				{Time: 20, Pitch: 60, Action: midi.Released},
			},
			err: ErrSimultaneousPressRelease,
		},
	}
	for _, c := range cases {
		_, err := Group(c.msgs, c.kevs)
		if !errors.Is(err, c.err) {
			t.Errorf("%s: got %v, expected %v", c.name, err, c.err)
		}
	}
}

func TestCheck(t *testing.T) {
	type testcase struct {
		name   string
		tl     Timeline
		ninput int
		err    error
	}
	msg := [][]byte{{0xc0, 1}}
	cases := []testcase{
		{"ok", Timeline{{Time: 0, Messages: msg}, {Time: 1, Messages: msg}}, 2, nil},
		{"lost", Timeline{{Time: 0, Messages: msg}}, 2, ErrEventsLost},
		{"duplicated", Timeline{{Time: 0, Messages: msg}, {Time: 1, Messages: msg}}, 1, ErrEventsDuplicated},
		{"empty", Timeline{{Time: 0, Messages: msg}, {Time: 1}}, 2, ErrEmptyFrame},
		{"same time", Timeline{{Time: 0, Messages: msg}, {Time: 0, Messages: msg}}, 2, ErrDuplicateFrame},
	}
	for _, c := range cases {
		err := c.tl.check(c.ninput)
		if !errors.Is(err, c.err) {
			t.Errorf("%s: got %v, expected %v", c.name, err, c.err)
		}
	}
}

func midiFile(events ...[]byte) []byte {
	body := bytes.Join(append(events, []byte{0, 0xff, 0x2f, 0}), nil)
	b := []byte("MThd\x00\x00\x00\x06\x00\x00\x00\x01\x00\x60MTrk")
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

func TestFromMIDI(t *testing.T) {
	// Two quarter notes on the same key, then a fifth.
	data := midiFile(
		[]byte{0, 0x90, 60, 100},
		[]byte{0x60, 0x80, 60, 0},
		[]byte{0, 0x90, 60, 100},
		[]byte{0, 0x90, 67, 100},
		[]byte{0x60, 0x80, 60, 0},
		[]byte{0, 0x80, 67, 0},
	)
	tl, err := FromMIDI(data)
	require.NoError(t, err)
	const quarter = 500000000
	var times []uint64
	for _, f := range tl {
		times = append(times, f.Time)
	}
	assert.Equal(t, []uint64{0, quarter - 75000000, quarter, 2 * quarter}, times)
	assert.Equal(t, []midi.Key{{60, midi.Released}}, tl[1].Keys)
	assert.Empty(t, tl[1].Messages)
	// The repeated note is pressed before the old one is released.
	assert.Equal(t, [][]byte{{0x90, 60, 100}, {0x80, 60, 0}, {0x90, 67, 100}}, tl[2].Messages)

	_, err = FromMIDI(data[:20])
	assert.Error(t, err)
}

func TestFromSong(t *testing.T) {
	s := &song.Song{
		Instruments: []string{"Piano"},
		Events: []song.Event{
			{Time: 0, Flags: song.BarNumberChange, BarNumber: 1, KeysDown: []song.KeyDown{{60, 0}}},
			{Time: 1000, Flags: song.BarNumberChange, BarNumber: 2, KeysUp: []uint8{60}, KeysDown: []song.KeyDown{{62, 0}, {10, 1}}},
			{Time: 1500, Flags: song.CursorPosChange},
			{Time: 2000, KeysUp: []uint8{62, 10}},
			{Time: 2000, KeysDown: []song.KeyDown{{64, 0}}},
			{Time: 3000, KeysUp: []uint8{64}},
		},
	}
	tl, err := FromSong(s, measure.Range{Start: 1, End: 4})
	require.NoError(t, err)
	assert.Equal(t, Timeline{
		{
			Time:     0,
			Messages: [][]byte{{0x80, 60, 0}, {0x90, 62, 64}, {0x90, 10, 64}},
			Keys:     []midi.Key{{60, midi.Released}, {62, midi.Pressed}, {10, midi.Pressed}},
		},
		{
			Time:     1000,
			Messages: [][]byte{{0x80, 62, 0}, {0x80, 10, 0}, {0x90, 64, 64}},
			Keys:     []midi.Key{{62, midi.Released}, {10, midi.Released}, {64, midi.Pressed}},
		},
	}, tl)

	whole, err := FromSong(s, WholeSong(s))
	require.NoError(t, err)
	assert.Len(t, whole, 4)
	assert.Equal(t, uint64(3000), whole.Duration())

	_, err = FromSong(s, measure.Range{Start: 2, End: 6})
	assert.ErrorIs(t, err, measure.ErrIndex)
}
