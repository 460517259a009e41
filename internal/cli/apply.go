package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/winsor/pkg/models"
)

var (
	applyCorpus        string
	applyBatch         string
	applyOut           string
	applyInterpolation string
	applyPromTextfile  string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Winsorize a batch of observations",
	Long: `Derive bounds from --corpus, clamp every mean in --batch to them and write
the result to --out (or back to --batch when --out is empty).

Covariances and metric names are written back unchanged. Metrics that were
never seen in the corpus pass through untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("observation store not initialized")
		}
		if applyCorpus == "" || applyBatch == "" {
			return fmt.Errorf("--corpus and --batch are required")
		}
		interp := models.Interpolation(applyInterpolation)
		if !interp.Valid() {
			return fmt.Errorf("invalid --interpolation %q: must be linear or nearest_observed", applyInterpolation)
		}

		corpus, asOf, err := loadCorpus(applyCorpus)
		if err != nil {
			return err
		}
		w, err := buildWinsorizer(corpus, interp, asOf)
		if err != nil {
			return err
		}

		batch, err := Store.Load(applyBatch)
		if err != nil {
			return err
		}
		report, err := w.Apply(batch)
		if err != nil {
			return err
		}

		out := applyOut
		if out == "" {
			out = applyBatch
		}
		if err := Store.Save(out, batch); err != nil {
			return err
		}

		fmt.Printf("Winsorized %d records (%d readings), clamped %d -> %s\n",
			report.Records, report.Readings, report.Clamped(), out)
		for _, metric := range report.Metrics() {
			c := report.ByMetric[metric]
			if c.Clamped() == 0 {
				continue
			}
			fmt.Printf("  %-24s %d low, %d high of %d\n", metric+":", c.ClampedLow, c.ClampedHigh, c.Readings)
		}

		if applyPromTextfile != "" {
			if PromRegistry == nil {
				return fmt.Errorf("prometheus registry not initialized")
			}
			if err := prometheus.WriteToTextfile(applyPromTextfile, PromRegistry); err != nil {
				return fmt.Errorf("writing prometheus textfile: %w", err)
			}
		}

		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyCorpus, "corpus", "", "Observations file the bounds are derived from")
	applyCmd.Flags().StringVar(&applyBatch, "batch", "", "Observations file to winsorize")
	applyCmd.Flags().StringVar(&applyOut, "out", "", "Where to write the winsorized batch (default: overwrite --batch)")
	applyCmd.Flags().StringVar(&applyInterpolation, "interpolation", "", "Override the configured interpolation (linear, nearest_observed)")
	applyCmd.Flags().StringVar(&applyPromTextfile, "prom-textfile", "", "Write Prometheus counters to this file for the node_exporter textfile collector")
	rootCmd.AddCommand(applyCmd)
}
