/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <kind>",
	Short: "Download matching records as an Excel workbook",
	Long: `Download the records matching the filter flags as an .xlsx workbook
generated by the record service.

Example:
  hris export leave --status approved -o leave.xlsx`,
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

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = fmt.Sprintf("%s-%s.xlsx", s.kind.Name, time.Now().In(s.location).Format("20060102"))
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}

		n, err := s.client.Export(cmd.Context(), criteria, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(output)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	criteriaFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: <kind>-YYYYMMDD.xlsx)")
}
