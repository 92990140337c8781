package main

import (
	"flag"
	"os"
	"sync"

	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
)

// klogFlags holds the klog flags exposed on every root command.
var (
	klogFlags    = flag.NewFlagSet("", flag.ContinueOnError)
	klogInitOnce sync.Once
)

func initLogging() {
	klogInitOnce.Do(func() {
		klog.InitFlags(klogFlags)
		klogFlags.Set("logtostderr", "true")
		klogFlags.Set("v", "1")
		klog.SetFormatter(&klog.FmtConstWidth{
			FileNameCharWidth: 16,
			UseColor:          true,
		})
	})
}

func newRootCmd(cli *cliFlags) *cobra.Command {
	initLogging()

	rootCmd := &cobra.Command{
		Use:   "gosym",
		Short: "Symmetry reduction for explicit-state model checking",
		Long: `Loads a model with scalarset (symmetric) domains and maps states onto canonical
representatives of their symmetry orbits.

Subcommands:
  check    - Load a model and report its variables, shapes and group order
  canon    - Canonicalize states
  orbit    - Enumerate the orbit of each state
  match    - Test whether states are symmetric images of the first one
  catalog  - Add states to a catalog of canonical states

Examples:
  gosym check mutex.model
  gosym canon mutex.model states.txt --strategy heuristic_small_mem
  gosym catalog mutex.model states.txt --db ./visited`,
		SilenceUsage: true,
	}

	cli.bind(rootCmd)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	return rootCmd
}

func main() {
	err := newRootCmd(&cliFlags{}).Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
