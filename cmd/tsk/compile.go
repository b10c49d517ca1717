// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/compress"
	"github.com/tuskcfg/tusk/internal/include"
	"github.com/tuskcfg/tusk/internal/parser"
	"github.com/tuskcfg/tusk/internal/platform"
	"github.com/tuskcfg/tusk/internal/pnt"
	"github.com/tuskcfg/tusk/internal/runctx"
)

var (
	compileOutput      string
	compileCompression string
	compileOptimize    bool
	compileChecksum    bool
	compileMetadata    bool
	compileDebug       bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile a .tsk file into a binary .pnt artifact",
	Long: `Compile a .tsk file into a binary .pnt artifact.

Includes are expanded before compiling, so the artifact is
self-contained. Reference tokens are preserved and resolved by
whoever loads the artifact.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Context())

		name := compileCompression
		if name == "" {
			name = settings.DefaultCompression.String()
		}
		codec, err := compress.ByName(name)
		if err != nil {
			return err
		}

		output := compileOutput
		if output == "" {
			output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".pnt"
		}
		base := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
		if platform.IsWindowsReservedName(base) {
			return fmt.Errorf("output name %q is reserved on Windows", base)
		}

		rctx := runctx.New(settings.MaxIncludeDepth)
		resolver := include.NewResolver(afero.NewOsFs(), parser.Parse, settings.IncludeParallelism)
		doc, warnings, err := resolver.Expand(cmd.Context(), args[0], rctx)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+w.String())
		}

		opts := pnt.Options{
			Codec:    codec,
			Checksum: compileChecksum,
			Optimize: compileOptimize,
			Debug:    compileDebug,
		}
		if compileMetadata {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			opts.Metadata = &pnt.Metadata{
				SourcePath:      abs,
				ProducerVersion: "tusk/" + Version,
				CompiledAt:      time.Now().UTC(),
			}
		}

		data, err := pnt.Compile(cmd.Context(), doc, opts)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return err
		}

		fmt.Println(SuccessStyle.Render("✓ ") + fmt.Sprintf("compiled %s (%d bytes, %s)", output, len(data), codec.Name()))
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "output path (default: source with .pnt extension)")
	compileCmd.Flags().StringVarP(&compileCompression, "compression", "c", "", "compression codec: none, gzip, or brotli (default from settings)")
	compileCmd.Flags().BoolVar(&compileOptimize, "optimize", true, "deduplicate repeated strings into a shared pool")
	compileCmd.Flags().BoolVar(&compileChecksum, "checksum", true, "record an integrity checksum")
	compileCmd.Flags().BoolVar(&compileMetadata, "metadata", true, "record source path and compile time")
	compileCmd.Flags().BoolVar(&compileDebug, "debug", false, "record source positions for every key")
}
