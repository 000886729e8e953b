package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var escalateBatch int

func init() {
	rootCmd.AddCommand(escalateCmd)
	escalateCmd.Flags().IntVar(&escalateBatch, "batch", 500, "Maximum expenses to check, 0 for all")
}

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Run one escalation sweep",
	Long:  "Checks every actionable expense and appends escalation approvers for entries that waited longer than their workflow allows.",
	Args:  cobra.NoArgs,
	RunE:  runEscalate,
}

func runEscalate(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	summary, err := c.Services().Escalation.CheckAll(cmd.Context(), escalateBatch)
	if err != nil {
		return fmt.Errorf("escalation sweep failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d escalated=%d entries=%d failed=%d\n",
		summary.Checked, summary.Escalated, summary.Entries, summary.Failed)
	return nil
}
