package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moria.us/lpyp/config"
	"moria.us/lpyp/watcher"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "lpyp",
	Short:         "Practice song and MIDI file tools",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		lvl, err := cfg.Level()
		if err != nil {
			return err
		}
		logrus.SetLevel(lvl)
		return nil
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&flagConfig, "config", "lpyp.json", "configuration file")
	fs.StringVar(&flagLogLevel, "log-level", "", "log level, overriding the configuration file")
}

// load loads a MIDI file or practice song.
func load(name string) (*watcher.State, error) {
	st := watcher.Load(name)
	if st.Err != nil {
		return nil, st.Err
	}
	return st, nil
}
