package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostdev-ops/rm-alert-engine/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return printJSON(version.GetBuildInfo())
			}
			fmt.Println(version.GetFullVersion())
			return nil
		},
	}
}
