// SPDX-License-Identifier: MPL-2.0

// Command tsk is the CLI for the tusk configuration engine.
package main

import cmd "github.com/tuskcfg/tusk/cmd/tsk"

func main() {
	cmd.Execute()
}
