//go:build unix

package playback

import (
	"os"

	"golang.org/x/sys/unix"
)

var signalCommands = map[os.Signal]Command{
	unix.SIGTSTP: Pause,
	unix.SIGCONT: Resume,
	unix.SIGINT:  Stop,
	unix.SIGTERM: Stop,
	unix.SIGQUIT: Stop,
}
