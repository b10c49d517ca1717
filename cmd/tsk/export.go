// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <file>...",
	Short: "Render the resolved configuration as JSON, YAML, or TOML",
	Long: `Load one or more configuration files, deep-merge them in order
(later files win), and render the resolved tree in the requested
format.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := export.Format(exportFormat)
		if valid, errs := format.IsValid(); !valid {
			return errs[0]
		}

		settings := loadSettings(cmd.Context())
		m := newManager(settings)

		tree, err := m.LoadMerged(cmd.Context(), args, resolveEnv(settings), true)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := export.Write(out, tree, format); err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Println(SuccessStyle.Render("✓ ") + fmt.Sprintf("wrote %s (%s)", exportOutput, format))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json, yaml, or toml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")
}
