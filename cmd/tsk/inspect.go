// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/pnt"
)

var inspectVerify bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pnt>",
	Short: "Show the header and metadata of a binary artifact",
	Long: `Show the header and metadata of a binary .pnt artifact without
decoding its payload. With --verify the payload is also checksummed
and decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		info, err := pnt.Stat(data)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		row := func(label, value string) {
			fmt.Printf("%s %s\n", KeyStyle.Render(fmt.Sprintf("%-14s", label+":")), value)
		}
		row("version", fmt.Sprintf("%d", info.Version))
		row("codec", info.Codec)
		row("stored", fmt.Sprintf("%d bytes", info.StoredLen))
		row("uncompressed", fmt.Sprintf("%d bytes", info.UncompressedLen))
		row("optimized", fmt.Sprintf("%t", info.Optimized))
		row("checksummed", fmt.Sprintf("%t", info.Checksummed))
		row("debug info", fmt.Sprintf("%t", info.HasDebug))
		if info.Metadata != nil {
			row("source", info.Metadata.SourcePath)
			row("producer", info.Metadata.ProducerVersion)
			row("compiled", info.Metadata.CompiledAt.Format("2006-01-02 15:04:05 MST"))
		}

		if !inspectVerify {
			return nil
		}
		artifact, err := pnt.Load(cmd.Context(), data)
		if err != nil {
			fmt.Println(ErrorStyle.Render("✗ ") + "payload verification failed")
			return &ExitError{Code: 1, Err: err}
		}
		fmt.Println(SuccessStyle.Render("✓ ") + fmt.Sprintf("payload ok (%d key(s))", len(artifact.Doc.Flatten())))
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "verify the checksum and decode the payload")
}
