package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/monitor"
)

func newThresholdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Inspect metric thresholds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a thresholds file, or the configured thresholds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				thresholds []config.ThresholdConfig
				source     string
			)
			if len(args) == 1 {
				loaded, err := config.LoadThresholds(args[0])
				if err != nil {
					return err
				}
				thresholds, source = loaded, args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				thresholds, source = cfg.Monitoring.Thresholds, "configuration"
				if len(thresholds) == 0 {
					source = "built-in defaults"
				}
			}

			specs, err := monitor.SpecsFromConfig(thresholds)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(specs)
			}

			fmt.Printf("%d thresholds valid (%s)\n\n", len(specs), source)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tCATEGORY\tDIRECTION\tTARGET\tWARNING\tCRITICAL")
			for _, s := range specs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%g\n", s.Metric, s.Category, s.Direction, s.Target, s.Warning, s.Critical)
			}
			return w.Flush()
		},
	})

	return cmd
}
