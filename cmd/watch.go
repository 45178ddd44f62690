/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <kind>",
	Short: "Keep a filtered list on screen and refresh it on changes",
	Long: `Show the records matching the filter flags and reprint them whenever
the list changes.

The list refreshes every workflow.refresh_interval and immediately when the
service pushes a change for this kind. Editing refresh_interval in the
config file takes effect without a restart.`,
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

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		var current atomic.Pointer[workflow.Page]
		render := func(visible []workflow.Record) {
			page := current.Load()
			if page == nil {
				return
			}
			fmt.Fprintln(out)
			if err := printRecords(out, s, page, visible); err != nil {
				s.logger.WithError(err).Warn("Failed to print records")
			}
		}

		page, err := s.openPage(ctx, cmd, render)
		if err != nil {
			return err
		}
		defer page.Close()
		current.Store(page)
		page.Filter().SetCriteria(criteria)

		// 未指定配置文件时不监听
		if s.configPath != "" {
			watcher := config.NewConfigWatcher(s.cfg, s.configPath, s.logger)
			watcher.OnConfigChange(func(next *config.Config) {
				page.Scheduler().SetInterval(next.Workflow.RefreshInterval)
				s.logger.WithField("interval", page.Scheduler().Interval()).Info("Refresh interval updated")
			})
			if err := watcher.Start(); err != nil {
				s.logger.WithError(err).Warn("Config hot reload disabled")
			}
			defer watcher.Stop()
		}

		go func() {
			err := s.client.Subscribe(ctx, func(ev workflow.ChangeEvent) {
				s.logger.WithFields(logrus.Fields{"action": ev.Action, "ids": ev.IDs}).Debug("Record change received")
				page.Scheduler().Nudge()
			})
			if err != nil {
				s.logger.WithError(err).Warn("Change notifications unavailable")
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	criteriaFlags(watchCmd)
}
