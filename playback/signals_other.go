//go:build !unix

package playback

import "os"

var signalCommands = map[os.Signal]Command{
	os.Interrupt: Stop,
}
