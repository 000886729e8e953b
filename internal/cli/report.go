package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-approval/internal/application/service"
)

var (
	reportTenant   string
	reportEmployee string
	reportLimit    int
	reportOut      string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportTenant, "tenant", "", "Tenant ID")
	reportCmd.Flags().StringVar(&reportEmployee, "employee", "", "Restrict to one employee's expenses")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0, "Maximum expenses in the report")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the workbook to this file instead of report storage")
	_ = reportCmd.MarkFlagRequired("tenant")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export an approval report workbook",
	Long:  "Writes an XLSX workbook with the selected expenses and their approval chains. Without --out the workbook goes to the configured reports directory.",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	filter := service.ReportFilter{
		TenantID:   reportTenant,
		EmployeeID: reportEmployee,
		Limit:      reportLimit,
	}
	reports := c.Services().Report

	if reportOut == "" {
		path, err := reports.Export(cmd.Context(), filter)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reports.Location(path))
		return nil
	}

	data, err := reports.Build(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(reportOut, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), reportOut)
	return nil
}
