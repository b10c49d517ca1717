// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/export"
	"github.com/tuskcfg/tusk/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a .tsk file and dump the document",
	Long: `Parse a .tsk file and print the raw document as JSON.

Includes are listed but not expanded, and reference tokens are kept
verbatim. Use 'tsk export' for the fully resolved tree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		doc, warnings, err := parser.Parse(data, args[0])
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+w.String())
		}

		for _, inc := range doc.Includes {
			fmt.Fprintln(os.Stderr, VerboseStyle.Render(
				fmt.Sprintf("include %q (line %d, not expanded)", inc.Path, inc.Line)))
		}

		return export.Write(os.Stdout, doc.ToMap(), export.FormatJSON)
	},
}
