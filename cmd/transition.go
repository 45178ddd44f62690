/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// 命令行接受的时间格式
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// transitionCmd represents the transition command
var transitionCmd = &cobra.Command{
	Use:   "transition <kind> <id> <status>",
	Short: "Move one record to a new status",
	Long: `Move one record to a new status.

The transition is checked against the kind's transition table before the
request is sent. Rejections and cancellations usually need --remarks, and
postponing a meeting or event needs --start and --end.

Example:
  hris transition leave 42 approved
  hris transition meetings 7 Postponed --start "2025-03-10 09:00" --end "2025-03-10 10:00"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, args[0])
		if err != nil {
			return err
		}

		in := workflow.Input{}
		in.Remarks, _ = cmd.Flags().GetString("remarks")
		if in.Start, err = timeFlag(cmd, "start", s.location); err != nil {
			return err
		}
		if in.End, err = timeFlag(cmd, "end", s.location); err != nil {
			return err
		}

		page, err := s.openPage(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer page.Close()
		modal := workflow.ModalDetail
		if in.Start != nil || in.End != nil {
			modal = workflow.ModalReschedule
		}
		if err := page.OpenModal(modal); err != nil {
			return err
		}
		defer page.CloseModal()

		_, err = page.Controller().Transition(cmd.Context(), args[1], workflow.Status(args[2]), in)
		return reported(cmd, err)
	},
}

func init() {
	rootCmd.AddCommand(transitionCmd)

	transitionCmd.Flags().String("remarks", "", "Remarks stored with the status change")
	transitionCmd.Flags().String("start", "", "New start time when rescheduling")
	transitionCmd.Flags().String("end", "", "New end time when rescheduling")
	transitionCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}

// timeFlag 按工作流时区解析时间参数,未设置时返回 nil
func timeFlag(cmd *cobra.Command, name string, loc *time.Location) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD HH:MM or RFC 3339", name, raw)
}
