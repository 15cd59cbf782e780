package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest import audit row",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		imp, err := env.Store.LatestImport(ctx)
		if err != nil {
			return err
		}
		if imp == nil {
			fmt.Println("no imports yet")
			return nil
		}

		fmt.Printf("import %s\n  started:   %s\n  status:    %s\n  added:     %d\n",
			imp.ID, imp.Started.Format("2006-01-02 15:04:05 MST"), imp.Status, imp.AddedCount)
		if imp.Completed != nil {
			fmt.Printf("  completed: %s\n", imp.Completed.Format("2006-01-02 15:04:05 MST"))
		}
		if imp.Error != "" {
			fmt.Printf("  error:     %s\n", imp.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
