package playback

import (
	"context"
	"os"
	"os/signal"
)

// Signals returns a channel of the commands requested by signals: pausing from
// the terminal, continuing, and interrupting. Signals are no longer handled
// once the context is done.
func Signals(ctx context.Context) <-chan Command {
	sigs := make(chan os.Signal, 1)
	var list []os.Signal
	for s := range signalCommands {
		list = append(list, s)
	}
	signal.Notify(sigs, list...)
	cmds := make(chan Command, 1)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case s := <-sigs:
				select {
				case cmds <- signalCommands[s]:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return cmds
}
