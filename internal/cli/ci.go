package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codalotl/skilleval/internal/report"
)

func newCICmd(a *app) *cobra.Command {
	var column string
	var outPath string
	var resamples int
	var level float64
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "ci <scores.csv>",
		Short: "Bootstrap confidence intervals of the mean score per model and condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := report.ReadFile(args[0])
			if err != nil {
				return err
			}
			if column == "" {
				column, err = report.DetectScoreColumn(sheet)
				if err != nil {
					return err
				}
			} else if !sheet.Has(column) {
				return fmt.Errorf("column %q not in %s", column, args[0])
			}
			bs := a.cfg.Bootstrap
			if resamples > 0 {
				bs.Resamples = resamples
			}
			if level > 0 {
				bs.Level = level
			}
			rows := report.ConfidenceIntervals(sheet, report.CIOptions{
				Column:    column,
				Resamples: bs.Resamples,
				Level:     bs.Level,
				Seed:      bs.Seed,
			})
			if outPath == "" {
				return report.WriteCIs(a.stdout, rows)
			}
			if err := report.WriteCIFile(outPath, rows); err != nil {
				return err
			}
			return a.printer.Appf("Wrote %d intervals (%s, %d resamples) to %s", len(rows), column, bs.Resamples, outPath)
		},
	})
	cmd.Flags().StringVar(&column, "score-column", "", "column to bootstrap (default: first of deep_score, auto_score, pass_count)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the CSV here instead of stdout")
	cmd.Flags().IntVar(&resamples, "resamples", 0, "bootstrap resamples (default: from config)")
	cmd.Flags().Float64Var(&level, "level", 0, "confidence level (default: from config)")
	return cmd
}
