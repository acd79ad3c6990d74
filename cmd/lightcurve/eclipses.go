package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/star/starflux/internal/config"
	"github.com/star/starflux/internal/eclipse"
)

func newEclipsesCmd(g *globalOpts) *cobra.Command {
	var (
		file        string
		start, stop float64
		maxEvents   int
	)
	cmd := &cobra.Command{
		Use:     "eclipses -f system.yaml",
		Short:   "List transits and occultations of each secondary",
		Example: `  lightcurve eclipses -f system.yaml --start 0 --stop 30`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadSpec(file)
			if err != nil {
				return err
			}
			results, err := eclipse.Find(cmd.Context(), eclipse.Request{
				Spec:      spec,
				Start:     start,
				Stop:      stop,
				MaxEvents: maxEvents,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BODY\tKIND\tSTART\tMID\tEND\tHOURS\tMIN SEP")
			for _, r := range results {
				for _, e := range r.Events {
					fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%.6f\t%.3f\t%.4f\n",
						r.Name, e.Kind, e.Start, e.Mid, e.End, e.DurationHours, e.MinSeparation)
				}
				if r.Error != "" {
					g.logger().Warn("eclipse search incomplete", "body", r.Name, "error", r.Error)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "system description file")
	cmd.Flags().Float64Var(&start, "start", 0, "search window start (days)")
	cmd.Flags().Float64Var(&stop, "stop", 10, "search window end (days)")
	cmd.Flags().IntVar(&maxEvents, "max-events", eclipse.DefaultMaxEvents, "maximum events per body")
	cmd.MarkFlagRequired("file")
	return cmd
}
