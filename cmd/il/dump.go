package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"il.dev/il/internal/ilmodel"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <assembly>",
	Short: "Print an assembly's table of contents and table sizes",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	as, err := ilmodel.DeserializeAssembly(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version:      %d.%d.%d\n", as.Version.Major, as.Version.Minor, as.Version.Changelist)
	fmt.Fprintf(out, "word size:    %d\n", as.WordSize)
	fmt.Fprintf(out, "runtime hash: %#016x\n", as.RuntimeHash)
	if as.Main.Valid() {
		fmt.Fprintf(out, "entry point:  %s (method %d)\n", as.Names[as.Methods[as.Main].Name], as.Main)
	} else {
		fmt.Fprintf(out, "entry point:  <missing>\n")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-12s %6d entries\n", "types", len(as.Types))
	fmt.Fprintf(out, "%-12s %6d entries\n", "signatures", len(as.Signatures))
	fmt.Fprintf(out, "%-12s %6d entries\n", "methods", len(as.Methods))
	fmt.Fprintf(out, "%-12s %6d entries\n", "offsets", len(as.Offsets))
	fmt.Fprintf(out, "%-12s %6d entries, %6d bytes\n", "globals", len(as.Globals.Entries), len(as.Globals.Bytes))
	fmt.Fprintf(out, "%-12s %6d entries, %6d bytes\n", "constants", len(as.Constants.Entries), len(as.Constants.Bytes))
	fmt.Fprintf(out, "%-12s %6d entries\n", "names", len(as.Names))
	fmt.Fprintf(out, "%-12s %6d entries\n", "metas", len(as.Metas))

	var external, bytecode int
	for _, mt := range as.Methods {
		if mt.External {
			external++
		} else {
			bytecode += len(mt.Bytecode)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "external methods: %d\n", external)
	fmt.Fprintf(out, "bytecode bytes:   %d\n", bytecode)
	return nil
}
