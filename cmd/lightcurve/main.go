// Command lightcurve evaluates system descriptions from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type globalOpts struct {
	verbose bool
	stderr  io.Writer
}

func (g *globalOpts) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(g.stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOpts{stderr: stderr}
	root := &cobra.Command{
		Use:   "lightcurve",
		Short: "Keplerian light curves of spherical-harmonic bodies",
		Long: `Evaluate the flux of a primary and its orbiting secondaries, find their
transits and occultations, and build systems from the exoplanet catalog.

System files are YAML, or JSON when the name ends in .json. Times are days,
angles degrees and lengths primary radii.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newRunCmd(g), newEclipsesCmd(g), newCatalogCmd(g))
	return root
}
