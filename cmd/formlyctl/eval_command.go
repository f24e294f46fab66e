package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kirillkom/formly/internal/bootstrap"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/eval"
)

func newEvalCommand(ctx *commandContext) *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the classifier against the built-in evaluation corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			classifier, err := bootstrap.NewClassifier(cmd.Context(), cfg, forms.Default())
			if err != nil {
				return err
			}

			cases := eval.Corpus()
			if only != "" {
				filtered := cases[:0]
				for _, c := range cases {
					if c.Name == only {
						filtered = append(filtered, c)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("no eval case named %q", only)
				}
				cases = filtered
			}

			report := eval.Run(cmd.Context(), classifier, cases)
			fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "case", "", "Run a single case by name")
	return cmd
}

func renderReport(report eval.Report) string {
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		rows = append(rows, []string{
			r.Case.Name,
			r.Case.ExpectedType,
			r.Result.DocumentType,
			strconv.FormatBool(r.Result.NeedsHumanReview),
			strconv.Itoa(r.Result.Attempts),
			mark(r.TypeCorrect && r.ReviewCorrect),
		})
	}
	out := renderTable(
		[]string{"Case", "Expected", "Got", "Review", "Attempts", "OK"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
	out += fmt.Sprintf("type accuracy: %.0f%%\nreview recall: %.0f%%\nfalse positives: %d\naverage attempts: %.2f\n",
		report.TypeAccuracy*100, report.ReviewRecall*100, report.FalsePositives, report.AverageAttempts)
	return out
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
