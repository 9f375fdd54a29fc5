package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"il.dev/il/internal/ilmodel"
	"il.dev/il/internal/interpreter"
)

var (
	runMinStack          int
	runMaxStack          int
	runMaxCallstackDepth int
)

var runCmd = &cobra.Command{
	Use:   "run <assembly>",
	Short: "Load and interpret a linked assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMinStack, "min-stack", 4096, "minimum interpreter stack size in bytes")
	runCmd.Flags().IntVar(&runMaxStack, "max-stack", 1<<20, "maximum interpreter stack size in bytes")
	runCmd.Flags().IntVar(&runMaxCallstackDepth, "max-callstack-depth", 4096, "maximum interpreter call depth")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logger()
	defer log.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	as, err := ilmodel.DeserializeAssembly(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	runtimeBindings, registry := defaultBindings()
	rc, err := interpreter.Run(as, interpreter.Config{
		MinStack:          runMinStack,
		MaxStack:          runMaxStack,
		MaxCallstackDepth: runMaxCallstackDepth,
		RuntimeHash:       runtimeBindings.Hash(),
		Bindings:          registry,
		Log:               log,
	})
	if err != nil {
		return fmt.Errorf("running %s: %w", args[0], err)
	}
	os.Exit(int(rc))
	return nil
}
