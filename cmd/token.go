/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/progenxxx/hris-sub006/internal/container"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a JWT for a user and role set",
	Long: `Mint a JWT signed with auth.secret.

Roles: super_admin, hrd_manager, department_manager.
Department managers list their departments with --departments.

Example:
  hris token mgr-1 --name "Ana" --roles department_manager --departments IT,Finance`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		validator, err := container.NewValidator(cfg, nil)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		roles, _ := cmd.Flags().GetStringSlice("roles")
		departments, _ := cmd.Flags().GetStringSlice("departments")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		p := workflow.Principal{UserID: args[0], Name: name, ManagedDepartments: departments}
		for _, r := range roles {
			switch workflow.Role(strings.TrimSpace(r)) {
			case workflow.RoleSuperAdmin:
				p.SuperAdmin = true
			case workflow.RoleHrdManager:
				p.HrdManager = true
			case workflow.RoleDepartmentManager:
				p.DepartmentManager = true
			default:
				return fmt.Errorf("unknown role %q", r)
			}
		}
		if len(departments) > 0 && !p.DepartmentManager {
			return fmt.Errorf("--departments requires the %s role", workflow.RoleDepartmentManager)
		}
		if p.DepartmentManager && len(departments) == 0 {
			return fmt.Errorf("a %s needs at least one department", workflow.RoleDepartmentManager)
		}
		p.ManagedDepartments = slices.Compact(p.ManagedDepartments)

		token, err := validator.Issue(p, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("name", "", "Display name")
	tokenCmd.Flags().StringSlice("roles", nil, "Roles: super_admin, hrd_manager, department_manager")
	tokenCmd.Flags().StringSlice("departments", nil, "Departments managed by a department manager")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: auth.token_ttl)")
}
