package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

var (
	userTenant   string
	userInactive bool
	upsert       entity.User
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userUpsertCmd, userListCmd)

	userUpsertCmd.Flags().StringVar(&userTenant, "tenant", "", "Tenant ID")
	userUpsertCmd.Flags().StringVar(&upsert.ID, "id", "", "User ID")
	userUpsertCmd.Flags().StringVar(&upsert.Name, "name", "", "Display name")
	userUpsertCmd.Flags().StringVar(&upsert.Email, "email", "", "Email address")
	userUpsertCmd.Flags().StringVar(&upsert.Role, "role", entity.RoleEmployee, "Role: employee, manager or admin")
	userUpsertCmd.Flags().StringVar(&upsert.Department, "department", "", "Department")
	userUpsertCmd.Flags().StringVar(&upsert.ManagerID, "manager", "", "Manager user ID")
	userUpsertCmd.Flags().StringVar(&upsert.LarkOpenID, "lark-open-id", "", "Lark open_id for notifications")
	userUpsertCmd.Flags().BoolVar(&userInactive, "inactive", false, "Store the user as inactive")
	_ = userUpsertCmd.MarkFlagRequired("tenant")
	_ = userUpsertCmd.MarkFlagRequired("id")

	userListCmd.Flags().StringVar(&userTenant, "tenant", "", "Tenant ID")
	_ = userListCmd.MarkFlagRequired("tenant")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory users",
}

var userUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Create or update a user",
	Args:  cobra.NoArgs,
	RunE:  runUserUpsert,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

func runUserUpsert(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	u := upsert
	u.TenantID = userTenant
	u.IsActive = !userInactive
	if err := c.Services().Directory.UpsertUser(cmd.Context(), &u); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s (%s)\n", u.ID, u.Role)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	users, err := c.Services().Directory.ListUsers(cmd.Context(), userTenant)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tDEPARTMENT\tMANAGER\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Name, u.Role, u.Department, u.ManagerID, u.IsActive)
	}
	return tw.Flush()
}
