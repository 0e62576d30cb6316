package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moria.us/lpyp/devserver"
	"moria.us/lpyp/watcher"
)

var (
	flagHost string
	flagPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve FILE",
	Short: "Serve a MIDI file or practice song, reloading it when it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		if fs.Changed("host") {
			cfg.Host = flagHost
		}
		if fs.Changed("port") {
			cfg.Port = flagPort
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ch, err := watcher.Watch(ctx, args[0], time.Duration(cfg.ReloadDelay))
		if err != nil {
			return err
		}
		logrus.Infof("Serving %q on %s", args[0], cfg.Addr())
		s := devserver.New(cfg)
		go s.Watch(ctx, ch)
		return devserver.ListenAndServe(ctx, cfg.Host, cfg.Port, s)
	},
}

func init() {
	fs := serveCmd.Flags()
	fs.StringVar(&flagHost, "host", "localhost", "host to serve from, or * to bind to all local addresses")
	fs.IntVar(&flagPort, "port", 9013, "port to serve from")
	rootCmd.AddCommand(serveCmd)
}
