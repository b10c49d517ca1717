// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/include"
	"github.com/tuskcfg/tusk/internal/parser"
	"github.com/tuskcfg/tusk/internal/refs"
	"github.com/tuskcfg/tusk/internal/runctx"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse a file, expand includes, and resolve references",
	Long: `Parse a .tsk file, expand its include chain, and resolve every
reference. Warnings are printed to stderr; with --strict any warning
becomes an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Context())

		rctx := runctx.New(settings.MaxIncludeDepth)
		resolver := include.NewResolver(afero.NewOsFs(), parser.Parse, settings.IncludeParallelism)

		doc, parseWarnings, err := resolver.Expand(cmd.Context(), args[0], rctx)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		warningCount := len(parseWarnings)
		for _, w := range parseWarnings {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+w.String())
		}
		if validateStrict && warningCount > 0 {
			return &ExitError{Code: 1, Err: fmt.Errorf("%d parse warning(s) in strict mode", warningCount)}
		}

		refWarnings, err := refs.Resolve(doc, rctx, refs.Options{Strict: validateStrict})
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		warningCount += len(refWarnings)
		for _, w := range refWarnings {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+w.String())
		}

		counters := rctx.Counters()
		summary := fmt.Sprintf("%s is valid (%d file(s), %d warning(s))",
			args[0], len(rctx.ProcessedFiles()), warningCount)
		fmt.Println(SuccessStyle.Render("✓ ") + summary)
		if verbose {
			fmt.Println(VerboseStyle.Render(fmt.Sprintf(
				"includes: %d, variable accesses: %d", counters.Includes, counters.VariableAccesses)))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "treat warnings and unresolved references as errors")
}
