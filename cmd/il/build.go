package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/hostlib"
	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/linker"
	"il.dev/il/internal/merger"
	"il.dev/il/internal/parser"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build <file.il> [file2.il ...]",
	Short: "Parse, merge, and link one or more IL sources into an assembly",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "a.ilasm", "output assembly path")
	rootCmd.AddCommand(buildCmd)
}

// runBuild parses each source independently (each gets its own generator,
// per the parser's own contract), then merges them left to right into one
// Intermediate before linking — mirroring how multiple translation units
// come together ahead of a single link step.
func runBuild(cmd *cobra.Command, args []string) error {
	log := logger()
	defer log.Sync()

	var merged *ilmodel.Intermediate
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		g := generator.New(log)
		p, err := parser.New(src, path, g)
		if err != nil {
			return fmt.Errorf("tokenizing %s: %w", path, err)
		}
		if err := p.Parse(); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		im, err := g.Finalize()
		if err != nil {
			return fmt.Errorf("finalizing %s: %w", path, err)
		}
		if merged == nil {
			merged = im
			continue
		}
		merged, err = merger.Merge(merged, im, log)
		if err != nil {
			return fmt.Errorf("merging %s: %w", path, err)
		}
	}

	bindings, _ := defaultBindings()
	as, err := linker.Link(merged, bindings, log)
	if err != nil {
		return fmt.Errorf("linking: %w", err)
	}

	if err := os.WriteFile(buildOutput, as.Serialize(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", buildOutput, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d methods, %d types)\n", buildOutput, len(as.Methods), len(as.Types))
	return nil
}

// defaultBindings returns the CLI's host-library surface: empty until a
// concrete library registration is wired in, so an assembly built and run
// by this tool alone never trips RuntimeHashMismatch against itself.
func defaultBindings() (linker.RuntimeBindings, *hostlib.Registry) {
	reg := hostlib.NewRegistry()
	return linker.RuntimeBindings{}, reg
}
