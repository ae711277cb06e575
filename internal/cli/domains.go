package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codalotl/skilleval/internal/report"
	"github.com/codalotl/skilleval/internal/score"
)

func newDomainsCmd(a *app) *cobra.Command {
	var schema bool
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "domains",
		Short: "List registered domains and their score columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, ev := range score.Evaluators() {
				name := ev.Name()
				rows = append(rows, []string{
					name,
					strconv.Itoa(ev.ScoredRules()),
					score.OutputName(ev),
					a.cfg.ResultsDir(name),
				})
			}
			if err := a.printer.Table([]string{"domain", "scored rules", "output", "results"}, rows); err != nil {
				return err
			}
			if !schema {
				return nil
			}
			for _, ev := range score.Evaluators() {
				if err := a.printer.Appf("%s:", ev.Name()); err != nil {
					return err
				}
				if err := a.printer.Detail(strings.Join(report.BuildCSVSchema(ev), ",")); err != nil {
					return err
				}
			}
			return nil
		},
	})
	cmd.Flags().BoolVar(&schema, "schema", false, "also print each domain's full CSV header")
	return cmd
}
