package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
)

var (
	workflowTenant          string
	workflowIncludeInactive bool

	testWorkflowID string
	testEmployee   string
	testAmount     string
	testCategory   string
	testDepartment string
	testRole       string
)

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowImportCmd, workflowListCmd, workflowTestCmd)

	workflowListCmd.Flags().StringVar(&workflowTenant, "tenant", "", "Tenant ID")
	workflowListCmd.Flags().BoolVar(&workflowIncludeInactive, "all", false, "Include deactivated workflows")
	_ = workflowListCmd.MarkFlagRequired("tenant")

	workflowTestCmd.Flags().StringVar(&workflowTenant, "tenant", "", "Tenant ID")
	workflowTestCmd.Flags().StringVar(&testWorkflowID, "workflow", "", "Workflow ID; empty runs workflow selection")
	workflowTestCmd.Flags().StringVar(&testEmployee, "employee", "", "Submitting employee ID")
	workflowTestCmd.Flags().StringVar(&testAmount, "amount", "0", "Sample amount")
	workflowTestCmd.Flags().StringVar(&testCategory, "category", "", "Sample category")
	workflowTestCmd.Flags().StringVar(&testDepartment, "department", "", "Department override")
	workflowTestCmd.Flags().StringVar(&testRole, "role", "", "Role override")
	_ = workflowTestCmd.MarkFlagRequired("tenant")
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage approval workflows",
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <file-or-dir>...",
	Short: "Import workflow seed files",
	Long:  "Upserts the users and workflows of YAML seed documents. A directory imports every .yaml/.yml file in name order and skips invalid files.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkflowImport,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowList,
}

var workflowTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Preview the approval chain for a sample expense",
	Long:  "Builds the chain a sample expense would get without storing anything and prints it as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowTest,
}

func runWorkflowImport(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	workflows := c.Services().Workflow
	total := service.ImportResult{}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}

		var res *service.ImportResult
		if info.IsDir() {
			res, err = worker.ImportDir(cmd.Context(), workflows, arg, c.Logger())
		} else {
			res, err = importSeedFile(cmd, workflows, arg)
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", arg, err)
		}
		total.Created += res.Created
		total.Updated += res.Updated
		total.Users += res.Users
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d users=%d\n", total.Created, total.Updated, total.Users)
	return nil
}

func importSeedFile(cmd *cobra.Command, workflows service.WorkflowService, path string) (*service.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return workflows.ImportYAML(cmd.Context(), f)
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	list, err := c.Services().Workflow.List(cmd.Context(), workflowTenant, workflowIncludeInactive)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No workflows.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tDEFAULT\tUPDATED")
	for _, wf := range list {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n",
			wf.ID, wf.Name, wf.IsActive, wf.IsDefault, wf.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runWorkflowTest(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(testAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", testAmount, err)
	}

	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	preview, err := c.Services().Workflow.TestWorkflow(cmd.Context(), workflowTenant, testWorkflowID, service.SampleExpense{
		EmployeeID: testEmployee,
		Amount:     amount,
		Category:   testCategory,
		Department: testDepartment,
		Role:       testRole,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(preview)
}
