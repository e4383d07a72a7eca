package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the available conversion presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.presets()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFPS\tWIDTH\tDESCRIPTION")
			for _, p := range set.List() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", p.Name, p.FPS, p.Width, p.Description)
			}
			return w.Flush()
		},
	}
}
