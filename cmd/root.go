package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "renthouse-scheduler",
	Short: "Recurring-bill scheduler for the renthouse backend",
}

func Execute() error {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	return rootCmd.Execute()
}
