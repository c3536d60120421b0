// File: cmd/plan.go
package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/internal/formfill"
	"github.com/xkilldash9x/formpilot/internal/reporting"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the configured form plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			plan, err := cfg.Form().Plan()
			if err != nil {
				return err
			}
			renderPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
}

// renderPlan prints the plan's steps and readiness rules as a table.
func renderPlan(w io.Writer, plan formfill.FormFieldPlan) {
	t := reporting.NewTable(w)
	t.SetTitle(plan.URL)
	t.AppendHeader(table.Row{"#", "Step", "Action", "Locator", "Value"})
	for i, s := range plan.Steps {
		value := ""
		if s.Action == formfill.ActionType {
			value = string(s.Input)
			if s.Input == formfill.InputLiteral || s.Input == "" {
				value = "\"" + s.Text + "\""
			}
		}
		t.AppendRow(table.Row{i + 1, s.Label(), s.Action, s.Locator.String(), value})
	}

	ready := "wait " + plan.Readiness.SettleDelay.String()
	if plan.Readiness.Locator != nil {
		ready = "visible " + plan.Readiness.Locator.String()
	}
	t.AppendFooter(table.Row{"", "ready", ready, "", ""})
	if plan.Confirmation.Text != "" {
		t.AppendFooter(table.Row{"", "confirm", "text", plan.Confirmation.Text, ""})
	}
	t.Render()
}
