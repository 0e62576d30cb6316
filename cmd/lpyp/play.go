package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moria.us/lpyp/playback"
)

var (
	playMeasures measureFlags
	flagSpeed    float64
)

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a MIDI file or practice song in real time, printing each frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := load(args[0])
		if err != nil {
			return err
		}
		tl, err := playMeasures.timeline(cmd.Flags(), st)
		if err != nil {
			return err
		}
		p := playback.Player{Speed: cfg.Speed}
		if cmd.Flags().Changed("speed") {
			p.Speed = flagSpeed
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		logrus.Infof("Playing %d frames at speed %g", len(tl), p.Speed)
		return p.Run(ctx, tl, &playback.Printer{W: cmd.OutOrStdout()}, playback.Signals(ctx))
	},
}

func init() {
	fs := playCmd.Flags()
	playMeasures.add(fs)
	fs.Float64Var(&flagSpeed, "speed", 1, "playback speed, overriding the configuration file")
	rootCmd.AddCommand(playCmd)
}
