// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/export"
)

var getEval bool

var getCmd = &cobra.Command{
	Use:   "get <file> <key>",
	Short: "Look up a single value by dotted key",
	Long: `Load a configuration and print the value at a dotted key, e.g.
'server.host'. Scalars print raw; lists and maps print as JSON.
With --eval, embedded expression snippets are evaluated first.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Context())
		if getEval {
			settings.EvalFujsen = true
		}

		m := newManager(settings)
		cfg, err := m.Load(cmd.Context(), args[0], resolveEnv(settings))
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		for _, w := range cfg.Warnings {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+w)
		}

		value, ok := lookupKey(cfg.Tree, args[1])
		if !ok {
			return &ExitError{Code: 1, Err: fmt.Errorf("key %q not found in %s", args[1], args[0])}
		}

		switch v := value.(type) {
		case map[string]any:
			return export.Write(os.Stdout, v, export.FormatJSON)
		case string:
			fmt.Println(v)
		default:
			fmt.Println(v)
		}
		return nil
	},
}

// lookupKey descends a nested tree along a dotted key.
func lookupKey(tree map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var current any = tree
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func init() {
	getCmd.Flags().BoolVar(&getEval, "eval", false, "evaluate embedded expression snippets")
}
