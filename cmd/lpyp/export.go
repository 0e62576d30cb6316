package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moria.us/lpyp/export"
)

var exportMeasures measureFlags

var exportCmd = &cobra.Command{
	Use:   "export FILE OUT",
	Short: "Write the playback timeline as length-prefixed protocol buffer messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := load(args[0])
		if err != nil {
			return err
		}
		tl, err := exportMeasures.timeline(cmd.Flags(), st)
		if err != nil {
			return err
		}
		if args[1] == "-" {
			return export.Write(cmd.OutOrStdout(), tl)
		}
		fp, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := export.Write(fp, tl); err != nil {
			fp.Close()
			return err
		}
		if err := fp.Close(); err != nil {
			return err
		}
		logrus.Infof("Wrote %d frames to %q", len(tl), args[1])
		return nil
	},
}

func init() {
	exportMeasures.add(exportCmd.Flags())
	rootCmd.AddCommand(exportCmd)
}
