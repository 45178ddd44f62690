/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// bulkCmd represents the bulk command
var bulkCmd = &cobra.Command{
	Use:   "bulk <kind> <status>",
	Short: "Move several records to the same status",
	Long: `Move several records to the same status in one request.

Every record must allow the transition for the current user; otherwise
nothing is sent. Without --ids, every visible record that allows the
transition is selected, using the filter flags.

Example:
  hris bulk leave approved --ids 3,4,9
  hris bulk travel rejected --status pending --remarks "Budget frozen"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := readCriteria(cmd)
		if err != nil {
			return err
		}
		s, err := newSession(cmd, args[0])
		if err != nil {
			return err
		}
		ids, _ := cmd.Flags().GetStringSlice("ids")
		remarks, _ := cmd.Flags().GetString("remarks")
		to := workflow.Status(args[1])

		page, err := s.openPage(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer page.Close()
		if err := page.OpenModal(workflow.ModalBulk); err != nil {
			return err
		}
		defer page.CloseModal()

		if len(ids) > 0 {
			_, err = page.Controller().BulkTransition(cmd.Context(), ids, to, remarks)
			return reported(cmd, err)
		}

		page.Filter().SetCriteria(criteria)
		page.Filter().Flush()
		for _, rec := range page.Filter().Visible() {
			if !allows(page, rec.ID, to) {
				continue
			}
			if _, err := page.Selection().Toggle(rec.ID); err != nil {
				return err
			}
		}
		if page.Selection().Len() == 0 {
			return errors.New("no visible record can move to " + string(to))
		}
		_, err = page.Controller().BulkTransitionSelected(cmd.Context(), to, remarks)
		return reported(cmd, err)
	},
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	criteriaFlags(bulkCmd)
	bulkCmd.Flags().StringSlice("ids", nil, "Record IDs (default: every matching visible record)")
	bulkCmd.Flags().String("remarks", "", "Remarks stored with every status change")
	bulkCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}

// allows 当前用户能否将记录转到目标状态
func allows(page *workflow.Page, id string, to workflow.Status) bool {
	edges, err := page.Controller().Allowed(id)
	if err != nil {
		return false
	}
	for _, e := range edges {
		if e.To == to {
			return true
		}
	}
	return false
}
