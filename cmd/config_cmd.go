// File: cmd/config_cmd.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and share configuration files",
	}
	configCmd.AddCommand(newConfigTemplateCmd())
	return configCmd
}

func newConfigTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template IN OUT",
		Short: "Write a copy of a YAML config with every value blanked",
		Long: `Reads IN and writes OUT with the same keys and comments but no values,
so a config can be shared without its identifiers, passwords or phone numbers.`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.StripTemplateFile(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", args[1])
			return nil
		},
	}
}
