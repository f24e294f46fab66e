package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/grading"
	"github.com/kirillkom/formly/internal/core/issues"
)

func newFormsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List supported form templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := forms.Default()
			rows := make([][]string, 0, len(registry.Types()))
			for _, docType := range registry.Types() {
				tpl, ok := registry.Lookup(docType)
				if !ok {
					continue
				}
				required := 0
				for _, f := range tpl.Fields {
					if f.Required {
						required++
					}
				}
				rows = append(rows, []string{
					tpl.Type,
					tpl.DisplayName,
					strconv.Itoa(len(tpl.Fields)),
					strconv.Itoa(required),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Type", "Name", "Fields", "Required"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newGradeCommand() *cobra.Command {
	var (
		file     string
		ocrFile  string
		taxYear  int
		asJSON   bool
		fileName string
	)
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade an extraction result JSON file against its form template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read extraction: %w", err)
			}
			var extraction domain.ExtractionResult
			if err := json.Unmarshal(raw, &extraction); err != nil {
				return fmt.Errorf("decode extraction: %w", err)
			}
			ocrText := ""
			if ocrFile != "" {
				text, err := os.ReadFile(ocrFile)
				if err != nil {
					return fmt.Errorf("read ocr text: %w", err)
				}
				ocrText = string(text)
			}

			grade := grading.New(forms.Default()).Grade(grading.Input{
				Extraction:      extraction,
				OCRText:         ocrText,
				FileName:        fileName,
				ExpectedTaxYear: taxYear,
				AttemptNumber:   1,
			})
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(grade)
			}

			fmt.Fprintf(out, "type: %s\npass: %t\nscore: %d\nconfidence: %.2f\n", grade.DocumentType, grade.Pass, grade.Score, grade.Confidence)
			if len(grade.Issues) > 0 {
				rows := make([][]string, 0, len(grade.Issues))
				for _, view := range issues.Explain(grade.Issues) {
					rows = append(rows, []string{string(view.Severity), view.Type, view.Description})
				}
				fmt.Fprint(out, renderTable([]string{"Severity", "Issue", "Description"}, rows, nil))
			}
			if !grade.Pass && grade.Feedback != "" {
				fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(grade.Feedback))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Extraction result JSON file")
	cmd.Flags().StringVar(&ocrFile, "ocr", "", "OCR text file the extraction came from")
	cmd.Flags().IntVar(&taxYear, "tax-year", 0, "Expected tax year")
	cmd.Flags().StringVar(&fileName, "file-name", "", "Original document file name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full grade result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newNormalizeIssueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize-issue <issue>...",
		Short: "Normalize issue strings and show the suggested action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, view := range issues.Explain(issues.NormalizeAll(args)) {
				rows = append(rows, []string{view.Raw, string(view.Severity), view.SuggestedAction})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Issue", "Severity", "Action"}, rows, nil))
			return nil
		},
	}
}
