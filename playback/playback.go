// Package playback plays a timeline in real time.
package playback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"moria.us/lpyp/midi"
	"moria.us/lpyp/timeline"
)

// A Command changes the state of a running player.
type Command uint8

const (
	Pause Command = iota + 1
	Resume
	Stop
)

func (c Command) String() string {
	switch c {
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// A Sink receives frames when they are due.
type Sink interface {
	Play(f *timeline.Frame) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(f *timeline.Frame) error

func (fn SinkFunc) Play(f *timeline.Frame) error {
	return fn(f)
}

// A Printer is a sink which writes a line for each frame.
type Printer struct {
	W io.Writer
}

func (p *Printer) Play(f *timeline.Frame) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%12.3f", float64(f.Time)/1e9)
	for _, k := range f.Keys {
		fmt.Fprintf(&b, " [%s]", k)
	}
	for _, m := range f.Messages {
		b.WriteString(" ")
		b.WriteString(midi.Describe(m))
	}
	b.WriteString("\n")
	_, err := io.WriteString(p.W, b.String())
	return err
}

// A Player plays frames at their times, scaled by Speed.
type Player struct {
	// Speed is the playback speed, 1 for normal speed. Zero means 1.
	Speed float64
}

func (p *Player) offset(t uint64) time.Duration {
	speed := p.Speed
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(t) / speed)
}

// Run plays the frames in order, sending each to the sink when it is due. It
// returns when all frames are played, when it receives Stop, or when the
// context is canceled. Time spent paused does not count towards the frame
// times.
func (p *Player) Run(ctx context.Context, tl timeline.Timeline, sink Sink, cmds <-chan Command) error {
	start := time.Now()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	// handle applies a command, returning true if playback should stop.
	handle := func(c Command) (bool, error) {
		switch c {
		case Stop:
			logrus.Infoln("Playback stopped")
			return true, nil
		case Pause:
			paused := time.Now()
			logrus.Infoln("Playback paused")
			if stop, err := waitResume(ctx, cmds); stop || err != nil {
				return true, err
			}
			start = start.Add(time.Since(paused))
			logrus.Infoln("Playback resumed")
		}
		return false, nil
	}
	for i := range tl {
		f := &tl[i]
		for {
			// Pending commands take priority over due frames.
			select {
			case c, ok := <-cmds:
				if !ok {
					cmds = nil
					continue
				}
				if stop, err := handle(c); stop || err != nil {
					return err
				}
				continue
			default:
			}
			wait := time.Until(start.Add(p.offset(f.Time)))
			if wait <= 0 {
				break
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			case c, ok := <-cmds:
				timer.Stop()
				if !ok {
					cmds = nil
					continue
				}
				if stop, err := handle(c); stop || err != nil {
					return err
				}
			}
		}
		if err := sink.Play(f); err != nil {
			return err
		}
	}
	return nil
}

// waitResume blocks until playback is resumed or stopped.
func waitResume(ctx context.Context, cmds <-chan Command) (stop bool, err error) {
	for {
		select {
		case c, ok := <-cmds:
			if !ok {
				return true, nil
			}
			switch c {
			case Resume:
				return false, nil
			case Stop:
				logrus.Infoln("Playback stopped")
				return true, nil
			}
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
