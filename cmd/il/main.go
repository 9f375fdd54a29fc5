// Command il is the toolchain's command-line front end: build, run,
// translate, and dump over the generator/parser/merger/linker/interpreter
// pipeline, wired the way a cobra-based tool in this shop usually is — one
// root command, one file per subcommand, a shared --verbose flag.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "il",
	Short: "Build, run, and translate IL assemblies",
	Long: "il drives the IL toolchain: parsing and merging source files into\n" +
		"an intermediate form, linking it into an executable assembly, running\n" +
		"that assembly on the built-in interpreter, translating it back to\n" +
		"text or C source, and dumping its table of contents for inspection.",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "il:", err)
		os.Exit(1)
	}
}

// logger returns a development logger when --verbose is set, and a no-op
// logger otherwise — every pipeline stage accepts a nil logger too, but an
// explicit Nop keeps the intent visible at the call site.
func logger() *zap.Logger {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}
	return zap.NewNop()
}
