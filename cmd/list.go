/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List records of a kind",
	Long: `List meetings, events, leave or travel orders.

Filters are applied locally with the same rules as the service list endpoint.

Example:
  hris list meetings --status Scheduled --from 2025-03-01 --to 2025-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := readCriteria(cmd)
		if err != nil {
			return err
		}
		s, err := newSession(cmd, args[0])
		if err != nil {
			return err
		}
		page, err := s.openPage(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer page.Close()

		page.Filter().SetCriteria(criteria)
		page.Filter().Flush()
		visible := page.Filter().Visible()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if visible == nil {
				visible = []workflow.Record{}
			}
			return enc.Encode(visible)
		}
		return printRecords(cmd.OutOrStdout(), s, page, visible)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	criteriaFlags(listCmd)
	listCmd.Flags().Bool("json", false, "Print records as JSON")
}

// printRecords 表格输出,ACTIONS 列为当前用户可执行的状态
func printRecords(out io.Writer, s *session, page *workflow.Page, records []workflow.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tWHO\tSTATUS\tSTART\tEND\tACTIONS")
	for _, r := range records {
		who := r.EmployeeName
		if who == "" {
			who = r.Organizer
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Title, who, r.Status,
			r.Start.In(s.location).Format("2006-01-02 15:04"),
			r.End.In(s.location).Format("2006-01-02 15:04"),
			actions(page, r.ID))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d record(s)\n", len(records))
	return nil
}

func actions(page *workflow.Page, id string) string {
	edges, err := page.Controller().Allowed(id)
	if err != nil || len(edges) == 0 {
		return "-"
	}
	to := make([]string, 0, len(edges))
	for _, e := range edges {
		to = append(to, string(e.To))
	}
	return strings.Join(to, ",")
}
