package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status <studyKey>",
		Short: "Show the processing status of a study",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := g.setup(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, renderTable(
				[]string{"Study", "Status", "Version", "Message"},
				[][]string{{status.StudyInstanceUID, status.Status, status.Version, status.Message}},
				nil,
			))
			return nil
		},
	}
}

// exactArgs is cobra.ExactArgs reporting an invalid argument exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withExit(ExitInvalidArgs, cobra.ExactArgs(n)(cmd, args))
	}
}
