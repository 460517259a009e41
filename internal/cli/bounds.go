package cli

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/winsor/pkg/models"
)

var (
	boundsCorpus        string
	boundsInterpolation string
	boundsJSON          bool
)

var (
	boundsHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	boundsUnboundedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var boundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Show the winsorization bounds resolved from a corpus",
	Long: `Resolve per-metric (lower, upper) bounds from the observations in --corpus
using the rules in .winsorconfig.yaml and print them.

Metrics without a rule are shown as unbounded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("observation store not initialized")
		}
		if boundsCorpus == "" {
			return fmt.Errorf("--corpus is required")
		}
		interp := models.Interpolation(boundsInterpolation)
		if !interp.Valid() {
			return fmt.Errorf("invalid --interpolation %q: must be linear or nearest_observed", boundsInterpolation)
		}

		corpus, asOf, err := loadCorpus(boundsCorpus)
		if err != nil {
			return err
		}
		w, err := buildWinsorizer(corpus, interp, asOf)
		if err != nil {
			return err
		}

		if boundsJSON {
			type row struct {
				Metric string   `json:"metric"`
				Lower  *float64 `json:"lower,omitempty"`
				Upper  *float64 `json:"upper,omitempty"`
			}
			rows := make([]row, 0, len(w.Metrics()))
			for _, metric := range w.Metrics() {
				b, _ := w.BoundsFor(metric)
				rows = append(rows, row{Metric: metric, Lower: jsonBound(b.Lower), Upper: jsonBound(b.Upper)})
			}
			data, err := json.MarshalIndent(map[string]any{
				"transform_id":  w.ID(),
				"interpolation": w.Interpolation(),
				"bounds":        rows,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting bounds as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Bounds from %s (%d records, %s interpolation)\n\n", boundsCorpus, len(corpus), w.Interpolation())
		fmt.Println(boundsHeaderStyle.Render(fmt.Sprintf("  %-24s %14s %14s", "METRIC", "LOWER", "UPPER")))
		for _, metric := range w.Metrics() {
			b, _ := w.BoundsFor(metric)
			line := fmt.Sprintf("  %-24s %14s %14s", metric, formatBound(b.Lower), formatBound(b.Upper))
			if b.IsUnbounded() {
				line = boundsUnboundedStyle.Render(line)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// formatBound renders a bound for the table, spelling out infinities.
func formatBound(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.6g", v)
}

// jsonBound returns nil for an infinite side, which JSON cannot encode.
func jsonBound(v float64) *float64 {
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func init() {
	boundsCmd.Flags().StringVar(&boundsCorpus, "corpus", "", "Observations file the bounds are derived from")
	boundsCmd.Flags().StringVar(&boundsInterpolation, "interpolation", "", "Override the configured interpolation (linear, nearest_observed)")
	boundsCmd.Flags().BoolVar(&boundsJSON, "json", false, "Output bounds as JSON")
	rootCmd.AddCommand(boundsCmd)
}
