package main

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/formly/internal/bootstrap"
	"github.com/kirillkom/formly/internal/core/domain"
)

func newStuckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stuck",
		Short: "List documents stuck in a processing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd.Context(), false, func(app *bootstrap.App) error {
				now := time.Now().UTC()
				docs, err := app.RecoveryUC.ListStuck(cmd.Context(), now)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No stuck documents")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					age := "-"
					if doc.ProcessingStartedAt != nil {
						age = now.Sub(*doc.ProcessingStartedAt).Round(time.Second).String()
					}
					rows = append(rows, []string{doc.ID, doc.FileName, string(doc.ProcessingStatus), age, fmt.Sprintf("%d", doc.RetryCount)})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "File", "Status", "Age", "Retries"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reset stuck documents and requeue them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd.Context(), true, func(app *bootstrap.App) error {
				report, err := app.RecoveryUC.Recover(cmd.Context(), time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stuck: %d, requeued: %d, exhausted: %d, failed: %d\n",
					len(report.Stuck), len(report.Requeued), len(report.Exhausted), len(report.Failed))
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "retry <document-id>",
		Short: "Requeue a failed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), true, func(app *bootstrap.App) error {
				doc, err := app.ReviewUC.Retry(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Document %s queued (retry %d)\n", doc.ID, doc.RetryCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reset the retry counter before requeueing")
	return cmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <engagement-id>",
		Short: "Run a full reconciliation for an engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), false, func(app *bootstrap.App) error {
				rec, err := app.ReconcileUC.Reconcile(cmd.Context(), args[0], domain.ReconcileTrigger{Kind: domain.TriggerManual})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "completion: %d%%\nready: %t\n", rec.CompletionPercentage, rec.IsReady)
				if len(rec.ItemStatuses) > 0 {
					rows := make([][]string, 0, len(rec.ItemStatuses))
					for _, item := range rec.ItemStatuses {
						rows = append(rows, itemRow(item))
					}
					fmt.Fprint(out, renderTable([]string{"Item", "Status", "Documents"}, rows, nil))
				}
				for _, issue := range rec.Issues {
					fmt.Fprintf(out, "- %s\n", issue)
				}
				return nil
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		mimeType string
		inline   bool
	)
	cmd := &cobra.Command{
		Use:   "import <engagement-id> <storage-key>...",
		Short: "Register files already present in object storage",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engagementID, keys := args[0], args[1:]
			files := make([]domain.DiscoveredFile, 0, len(keys))
			for _, key := range keys {
				key = strings.TrimSpace(key)
				if key == "" {
					return errors.New("storage key must not be empty")
				}
				files = append(files, domain.DiscoveredFile{
					FileName:   path.Base(key),
					StorageKey: key,
					MimeType:   mimeType,
				})
			}
			return ctx.withApp(cmd.Context(), !inline, func(app *bootstrap.App) error {
				docs, err := app.IngestUC.RegisterDiscovered(cmd.Context(), engagementID, files)
				for _, doc := range docs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", doc.ID, doc.StorageKey)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "MIME type applied to every imported file")
	cmd.Flags().BoolVar(&inline, "inline", false, "Process the batch in this process instead of queueing it")
	return cmd
}

func itemRow(item domain.ItemState) []string {
	docs := "-"
	if len(item.DocumentIDs) > 0 {
		docs = strings.Join(item.DocumentIDs, ", ")
	}
	return []string{item.ItemID, string(item.Status), docs}
}
