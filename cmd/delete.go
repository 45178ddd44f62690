/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <id>",
	Short: "Delete a record that is still in its initial status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, args[0])
		if err != nil {
			return err
		}
		page, err := s.openPage(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer page.Close()

		return reported(cmd, page.Controller().Delete(cmd.Context(), args[1]))
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
