/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/auth"
)

// departmentsCmd represents the departments command
var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "Manage department manager relations in OpenFGA",
	Long: `Assign, revoke and list the departments a user manages.

When openfga.enabled is true the service reads department manager scope
from OpenFGA instead of the token claims.`,
}

var departmentsAssignCmd = &cobra.Command{
	Use:   "assign <user-id> <department>...",
	Short: "Make a user manager of one or more departments",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFGAClient(cmd)
		if err != nil {
			return err
		}
		for _, dept := range args[1:] {
			if err := client.AssignManager(cmd.Context(), args[0], dept); err != nil {
				return fmt.Errorf("failed to assign %s: %w", dept, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s manages %s\n", args[0], dept)
		}
		return nil
	},
}

var departmentsRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <department>...",
	Short: "Remove a user as manager of one or more departments",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFGAClient(cmd)
		if err != nil {
			return err
		}
		for _, dept := range args[1:] {
			if err := client.RevokeManager(cmd.Context(), args[0], dept); err != nil {
				return fmt.Errorf("failed to revoke %s: %w", dept, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s no longer manages %s\n", args[0], dept)
		}
		return nil
	},
}

var departmentsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List the departments a user manages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFGAClient(cmd)
		if err != nil {
			return err
		}
		departments, err := client.ManagedDepartments(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, dept := range departments {
			fmt.Fprintln(cmd.OutOrStdout(), dept)
		}
		return nil
	},
}

var departmentsCheckCmd = &cobra.Command{
	Use:   "check <user-id> <department>",
	Short: "Check whether a user manages a department",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newFGAClient(cmd)
		if err != nil {
			return err
		}
		ok, err := client.IsManager(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		return nil
	},
}

var departmentsModelCmd = &cobra.Command{
	Use:   "model",
	Short: "Print the OpenFGA authorization model to load into the store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), auth.GetPermissionModel())
	},
}

func init() {
	rootCmd.AddCommand(departmentsCmd)
	departmentsCmd.AddCommand(departmentsAssignCmd, departmentsRevokeCmd, departmentsListCmd, departmentsCheckCmd, departmentsModelCmd)
}

// newFGAClient 根据配置创建 OpenFGA 客户端
func newFGAClient(cmd *cobra.Command) (*auth.OpenFGAClient, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.OpenFGA.StoreID == "" {
		return nil, errors.New("openfga.store_id is not configured")
	}
	return auth.NewOpenFGAClient(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID)
}
