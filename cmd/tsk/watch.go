// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/manager"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>...",
	Short: "Reload configurations when their sources change",
	Long: `Load the given configuration files, then watch them and reload on
every change, printing a diff of the resolved tree. Blocks until
interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Context())
		m := newManager(settings)

		m.OnChanged(func(cfg *manager.Configuration, changes []document.Change) {
			fmt.Printf("%s %s\n", KeyStyle.Render("reloaded"), cfg.Path)
			for _, c := range changes {
				printChange(c)
			}
		})
		m.OnError(func(path, env string, err error) {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ ")+formatErrorForDisplay(err, verbose))
		})

		env := resolveEnv(settings)
		for _, path := range args {
			cfg, err := m.Load(cmd.Context(), path, env)
			if err != nil {
				// Keep going: the user may fix the file and save again.
				fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ ")+formatErrorForDisplay(err, verbose))
				continue
			}
			fmt.Printf("%s %s (%d key(s))\n", SuccessStyle.Render("✓"), cfg.Path, len(cfg.Doc.Flatten()))
		}

		fmt.Println(SubtitleStyle.Render("Watching for changes (Ctrl+C to stop)..."))
		return m.Watch(cmd.Context())
	},
}

// printChange renders one diff entry.
func printChange(c document.Change) {
	switch c.Kind {
	case document.ChangeAdded:
		fmt.Printf("  %s %s = %v\n", SuccessStyle.Render("+"), KeyStyle.Render(c.Key), c.New)
	case document.ChangeRemoved:
		fmt.Printf("  %s %s\n", ErrorStyle.Render("-"), KeyStyle.Render(c.Key))
	case document.ChangeUpdated:
		fmt.Printf("  %s %s: %v -> %v\n", WarningStyle.Render("~"), KeyStyle.Render(c.Key), c.Old, c.New)
	}
}
