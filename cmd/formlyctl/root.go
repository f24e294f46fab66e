package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "formlyctl",
		Short:         "Operate the formly document intake pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(newFormsCommand())
	rootCmd.AddCommand(newGradeCommand())
	rootCmd.AddCommand(newNormalizeIssueCommand())
	rootCmd.AddCommand(newEvalCommand(ctx))
	rootCmd.AddCommand(newStuckCommand(ctx))
	rootCmd.AddCommand(newRecoverCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))

	return rootCmd
}
