package main

import (
	"encoding/csv"
	"errors"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/star/starflux/internal/config"
	"github.com/star/starflux/internal/lightcurve"
)

func newRunCmd(g *globalOpts) *cobra.Command {
	var (
		file            string
		start, stop     float64
		points, workers int
	)
	cmd := &cobra.Command{
		Use:   "run -f system.yaml",
		Short: "Print a light curve as CSV",
		Long: `Evaluate the system at n evenly spaced times over [start, stop] and print
one CSV row per time: the time followed by the total flux of each channel.`,
		Example: `  lightcurve run -f system.yaml --start -0.1 --stop 0.1 --n 500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if points < 1 {
				return errors.New("--n must be positive")
			}
			if !(stop >= start) {
				return errors.New("--stop must not be before --start")
			}
			spec, err := config.LoadSpec(file)
			if err != nil {
				return err
			}

			ev := lightcurve.NewEvaluator(workers, g.logger())
			curve, err := ev.Compute(cmd.Context(), spec, lightcurve.Linspace(start, stop, points))
			if err != nil {
				return err
			}
			return writeCSV(cmd, curve)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "system description file")
	cmd.Flags().Float64Var(&start, "start", 0, "first time (days)")
	cmd.Flags().Float64Var(&stop, "stop", 1, "last time (days)")
	cmd.Flags().IntVar(&points, "n", 1000, "number of samples")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "evaluation workers")
	cmd.MarkFlagRequired("file")
	return cmd
}

func writeCSV(cmd *cobra.Command, curve *lightcurve.Curve) error {
	w := csv.NewWriter(cmd.OutOrStdout())
	var header []string
	if len(curve.Flux) > 0 {
		header = append(header, "time")
		for c := range curve.Flux[0] {
			header = append(header, "flux_"+strconv.Itoa(c))
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}
	row := make([]string, 0, len(header))
	for i, t := range curve.Time {
		row = append(row[:0], strconv.FormatFloat(t, 'g', -1, 64))
		for _, f := range curve.Flux[i] {
			row = append(row, strconv.FormatFloat(f, 'g', 12, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
