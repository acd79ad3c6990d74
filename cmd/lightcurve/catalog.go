package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/starflux/internal/catalog"
	"github.com/star/starflux/internal/config"
)

func newCatalogCmd(g *globalOpts) *cobra.Command {
	var (
		sourceURL, cacheDir string
		maxAge              time.Duration
		u1, u2              float64
	)
	cmd := &cobra.Command{
		Use:   "catalog NAME|random",
		Short: "Print the system description of a catalog host or planet as YAML",
		Long: `Look up a host star ("Kepler-10") or a single planet ("Kepler-10 c") in the
exoplanet archive table and print a system description that transits each
planet at its catalogued mid-transit time. The name "random" picks a host
with at least one complete planet. The table is downloaded on first use and
cached on disk.`,
		Example: `  lightcurve catalog WASP-12 > wasp12.yaml
  lightcurve run -f wasp12.yaml --start 2457010.45 --stop 2457010.58
  lightcurve catalog random`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := g.logger()
			svc := catalog.NewService(
				catalog.NewFetcher(sourceURL, logger),
				catalog.NewCache(cacheDir, 0),
				catalog.NewStore(),
				maxAge,
				logger,
			)
			if err := svc.EnsureFresh(cmd.Context()); err != nil {
				return err
			}
			var (
				planets []catalog.Planet
				err     error
			)
			if strings.EqualFold(args[0], "random") {
				planets, err = svc.Store().Random(nil)
			} else {
				planets, err = svc.Store().Lookup(args[0])
			}
			if err != nil {
				return err
			}
			spec, err := catalog.ToSpec(planets, []float64{u1, u2})
			if err != nil {
				return err
			}
			return config.EncodeSpec(cmd.OutOrStdout(), spec)
		},
	}
	cmd.Flags().StringVar(&sourceURL, "url", catalog.DefaultSourceURL, "planet table CSV URL")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", defaultCacheDir(), "directory for downloaded tables")
	cmd.Flags().DurationVar(&maxAge, "max-age", catalog.DefaultMaxAge, "refetch tables older than this")
	cmd.Flags().Float64Var(&u1, "u1", catalog.DefaultLimbDarkening[0], "linear limb darkening coefficient")
	cmd.Flags().Float64Var(&u2, "u2", catalog.DefaultLimbDarkening[1], "quadratic limb darkening coefficient")
	return cmd
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "starflux", "catalog")
	}
	return filepath.Join(dir, "starflux", "catalog")
}
