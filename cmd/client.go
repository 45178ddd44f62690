/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/console"
	"github.com/progenxxx/hris-sub006/internal/container"
	"github.com/progenxxx/hris-sub006/internal/recordclient"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// session 命令行一次会话: 配置、日志与记录服务客户端
type session struct {
	cfg        *config.Config
	configPath string
	logger     *logrus.Logger
	kind       *workflow.KindConfig
	client     *recordclient.Client
	principal  workflow.Principal
	location   *time.Location
}

func init() {
	for _, c := range []*cobra.Command{listCmd, transitionCmd, bulkCmd, deleteCmd, exportCmd, watchCmd} {
		c.Flags().String("token", "", "Bearer token (default: client.token)")
		c.Flags().String("server", "", "Record service base URL (default: client.base_url)")
	}
}

// newSession 解析记录类型并创建客户端
func newSession(cmd *cobra.Command, kindName string) (*session, error) {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Client.Token = v
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.Client.BaseURL = v
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	kinds, err := container.LoadKinds(cfg.Workflow)
	if err != nil {
		return nil, err
	}
	kind, ok := kinds.Get(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q (known: %v)", kindName, kinds.Names())
	}
	loc, err := cfg.Workflow.Location()
	if err != nil {
		return nil, err
	}

	if cfg.Client.Token == "" {
		return nil, errors.New("no token configured: set client.token, APP_CLIENT_TOKEN or --token")
	}
	claims, err := auth.ParseUnverified(cfg.Client.Token)
	if err != nil {
		return nil, err
	}

	client, err := recordclient.New(kind, recordclient.Options{
		BaseURL:    cfg.Client.BaseURL,
		Token:      cfg.Client.Token,
		Timeout:    cfg.Client.Timeout,
		RPS:        cfg.Client.RPS,
		MaxRetries: cfg.Client.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		kind:       kind,
		client:     client,
		principal:  claims.Principal(),
		location:   loc,
	}, nil
}

// openPage 加载列表页; 调用方负责 Close
func (s *session) openPage(ctx context.Context, cmd *cobra.Command, onVisible func([]workflow.Record)) (*workflow.Page, error) {
	assumeYes, _ := cmd.Flags().GetBool("yes")
	page, err := workflow.NewPage(workflow.PageOptions{
		Kind:            s.kind,
		Remote:          s.client,
		Principal:       s.principal,
		Notifier:        console.NewNotifier(cmd.OutOrStdout(), s.logger),
		Confirmer:       console.NewConfirmer(cmd.InOrStdin(), cmd.OutOrStdout(), assumeYes),
		Logger:          s.logger,
		Location:        s.location,
		Debounce:        s.cfg.Workflow.Debounce,
		RefreshInterval: s.cfg.Workflow.RefreshInterval,
		OnVisible:       onVisible,
	})
	if err != nil {
		return nil, err
	}
	if err := page.Load(ctx); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// reported 结果已由终端通知打印,不再重复输出错误
func reported(cmd *cobra.Command, err error) error {
	if err != nil {
		cmd.SilenceErrors = true
	}
	return err
}

// criteriaFlags 注册过滤参数
func criteriaFlags(c *cobra.Command) {
	c.Flags().String("status", "", "Status tab (empty or \"all\" for every status)")
	c.Flags().String("search", "", "Case-insensitive search text")
	c.Flags().String("from", "", "Start date YYYY-MM-DD, inclusive")
	c.Flags().String("to", "", "End date YYYY-MM-DD, inclusive")
}

// readCriteria 读取并校验过滤参数
func readCriteria(cmd *cobra.Command) (workflow.Criteria, error) {
	var c workflow.Criteria
	c.StatusTab, _ = cmd.Flags().GetString("status")
	c.SearchText, _ = cmd.Flags().GetString("search")
	c.DateFrom, _ = cmd.Flags().GetString("from")
	c.DateTo, _ = cmd.Flags().GetString("to")
	return c, c.Validate()
}
