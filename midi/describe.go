package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Describe returns a readable description of a raw MIDI message.
func Describe(msg []byte) string {
	return gomidi.Message(msg).String()
}
