// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// formatReference is the rendered source for `tsk docs`.
const formatReference = `# The .tsk format

A .tsk file is a sequence of sections holding key/value assignments.

    # comments start with a hash
    include "database.tsk"

    app_name = "demo"          # keys before any section are root keys

    [server]
    host = "localhost"
    port = 8080
    debug = true
    timeout = 2.5
    nothing = null
    origins = ["https://a.example", "https://b.example"]
    limits = { max = 100, burst = 20 }
    url = "http://${server.host}:${server.port}"
    region = @{app_name}
    capacity = fujsen { limits.max * 2 }

## Includes

` + "`include \"path\"`" + ` merges another file before the including file's
own keys. Later includes override earlier ones; the including file
overrides them all. Cycles and over-deep chains are errors.

## References

` + "`${a.b}`" + ` and ` + "`@{a.b}`" + ` refer to other keys in the flat
` + "`section.key`" + ` space. Forward references are fine. Inside strings
they interpolate; standalone they take the target's value and type.

## Environment overlays

Loading with an environment applies, in order:
` + "`config.<env>.tsk`" + `, ` + "`peanu.<env>.tsk`" + `,
` + "`environments/<env>.tsk`" + ` from the source file's directory.

## Binary artifacts

` + "`tsk compile`" + ` produces a .pnt artifact: the expanded document in a
compact binary layout, optionally compressed (gzip or brotli),
checksummed, and carrying source metadata. ` + "`tsk inspect`" + ` shows the
header; loading a .pnt anywhere a .tsk is accepted just works.
`

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Show the configuration format reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := glamour.Render(formatReference, "auto")
		if err != nil {
			// Fall back to the raw markdown on renderer failure.
			fmt.Print(formatReference)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}
