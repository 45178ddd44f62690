/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/api"
	"github.com/progenxxx/hris-sub006/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hris",
	Short: "HR approval workflow for meetings, events, leave and travel orders",
	Long: `hris runs the record service for meetings, events, leave requests and
travel orders, and drives their approval workflow from the command line.

Every status change is checked against the same transition table on the
client and on the server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: config.yaml in ., ./config or $HOME/.hris)")
}

// GetRootCmd 返回根命令(用于测试)
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 加载配置
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, configPath, nil
}

// newLogger 根据配置创建日志记录器,命令行输出写到 stderr
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		logger.SetOutput(cmd.ErrOrStderr())
	}
	return logger, nil
}
