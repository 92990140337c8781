package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/2x3systems/gosym/gosym"
	"github.com/2x3systems/gosym/libsym"
	"github.com/2x3systems/gosym/libsym/catalog"
	"github.com/plan-systems/klog"
	"github.com/spf13/cobra"
)

// cliFlags holds the persistent flags of one root command.
type cliFlags struct {
	configPath  string
	strategyArg string
	symmetryArg bool
	permLimit   int64
	workers     int
	dbPath      string
}

func (cli *cliFlags) bind(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.configPath, "config", "", "YAML options file")
	flags.StringVar(&cli.strategyArg, "strategy", "", "exhaustive, heuristic_fast, heuristic_small_mem or heuristic_normalize")
	flags.BoolVar(&cli.symmetryArg, "symmetry", true, "enable symmetry reduction")
	flags.Int64Var(&cli.permLimit, "perm-limit", 0, "residual permutations streamed by heuristic_small_mem (0 is unlimited)")
	flags.IntVar(&cli.workers, "workers", 0, "parallel canonicalization workers (0 uses the config or CPU count)")
	flags.StringVar(&cli.dbPath, "db", "", "catalog directory (empty for in-memory)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "check MODEL",
			Short: "Load a model and report its variables, shapes and group order",
			Args:  cobra.ExactArgs(1),
			RunE:  cli.runCheck,
		},
		&cobra.Command{
			Use:   "canon MODEL STATES",
			Short: "Canonicalize each state literal in STATES",
			Args:  cobra.ExactArgs(2),
			RunE:  cli.runCanon,
		},
		&cobra.Command{
			Use:   "orbit MODEL STATES",
			Short: "Print the orbit size and minimum of each state in STATES",
			Args:  cobra.ExactArgs(2),
			RunE:  cli.runOrbit,
		},
		&cobra.Command{
			Use:   "match MODEL STATES",
			Short: "Test whether each state in STATES is a symmetric image of the first",
			Args:  cobra.ExactArgs(2),
			RunE:  cli.runMatch,
		},
		&cobra.Command{
			Use:   "catalog MODEL STATES",
			Short: "Add the canonical forms of STATES to a catalog and report which were new",
			Long: `Adds the canonical form of each state to a badger catalog.

Without --db the catalog is held in memory, which reports the number of distinct
orbits among the given states.`,
			Args: cobra.ExactArgs(2),
			RunE: cli.runCatalog,
		},
	)
}

// resolveOpts layers explicitly set flags over the config file (or defaults).
func (cli *cliFlags) resolveOpts(cmd *cobra.Command) (gosym.Opts, error) {
	opts := gosym.DefaultOpts()
	if cli.configPath != "" {
		var err error
		if opts, err = gosym.LoadOpts(cli.configPath); err != nil {
			return opts, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		if err := opts.Strategy.UnmarshalText([]byte(cli.strategyArg)); err != nil {
			return opts, err
		}
	}
	if flags.Changed("symmetry") {
		opts.Symmetry = cli.symmetryArg
	}
	if flags.Changed("perm-limit") {
		opts.PermLimit = cli.permLimit
	}
	if flags.Changed("workers") && cli.workers > 0 {
		opts.Workers = cli.workers
	}
	if flags.Changed("db") {
		opts.CatalogPath = cli.dbPath
	}
	if flags.Changed("v") {
		opts.Verbosity, _ = strconv.Atoi(klogFlags.Lookup("v").Value.String())
	} else if cli.configPath != "" {
		klogFlags.Set("v", strconv.Itoa(opts.Verbosity))
	}
	return opts, opts.Validate()
}

func (cli *cliFlags) loadModel(cmd *cobra.Command, modelPath string) (*libsym.Model, error) {
	opts, err := cli.resolveOpts(cmd)
	if err != nil {
		return nil, err
	}
	return libsym.LoadModelFile(modelPath, opts)
}

func loadStates(M *libsym.Model, statesPath string) ([]gosym.State, error) {
	buf, err := os.ReadFile(statesPath)
	if err != nil {
		return nil, err
	}
	return M.ParseStates(string(buf))
}

func (cli *cliFlags) runCheck(cmd *cobra.Command, args []string) error {
	M, err := cli.loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, D := range M.Domains {
		fmt.Fprintf(out, "scalarset %-16s %d\n", D.Name, D.Size)
	}
	for _, v := range M.Vars {
		fmt.Fprintf(out, "var %3d  %-16s %-26v %v\n", v.Index, v.Name, v.Shape(), v.Type)
	}
	order := fmt.Sprintf("%d", M.GroupOrder())
	if M.GroupOrder() > gosym.MaxExplicitPermutations {
		order = fmt.Sprintf("> %d", gosym.MaxExplicitPermutations)
	}
	fmt.Fprintf(out, "strategy %v, group order %s, state size %d bytes, residual enumeration %v\n",
		M.Opts.Strategy, order, M.StateSize, M.NeedsEnumeration())
	return nil
}

func (cli *cliFlags) runCanon(cmd *cobra.Command, args []string) error {
	M, err := cli.loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	states, err := loadStates(M, args[1])
	if err != nil {
		return err
	}
	canonic, err := M.CanonicalizeAll(context.Background(), states, M.Opts.Workers)
	if err != nil {
		return err
	}

	stream := gosym.NewStateStream()
	go func() {
		for _, S := range canonic {
			stream.PushState(S)
		}
		stream.Close()
	}()
	count, err := stream.Print(cmd.OutOrStdout(), M, gosym.PrintOpts{})
	klog.V(1).Infof("canonicalized %d states", count)
	return err
}

func (cli *cliFlags) runOrbit(cmd *cobra.Command, args []string) error {
	M, err := cli.loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	states, err := loadStates(M, args[1])
	if err != nil {
		return err
	}
	if M.GroupOrder() > gosym.MaxExplicitPermutations {
		klog.Warningf("enumerating a group of more than %d permutations", gosym.MaxExplicitPermutations)
	}
	out := cmd.OutOrStdout()
	for _, S := range states {
		orbit := M.Orbit(S)
		fmt.Fprintf(out, "%6d  %s\n", orbit.Len(), M.StateString(orbit.Min()))
		orbit.Close()
	}
	return nil
}

func (cli *cliFlags) runMatch(cmd *cobra.Command, args []string) error {
	M, err := cli.loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	states, err := loadStates(M, args[1])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	out := cmd.OutOrStdout()
	C := M.NewCanonicalizer()
	for i, S := range states[1:] {
		fmt.Fprintf(out, "%3d  %-5v %s\n", i+1, C.Match(S, states[0]), M.StateString(S))
	}
	return nil
}

func (cli *cliFlags) runCatalog(cmd *cobra.Command, args []string) error {
	M, err := cli.loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	states, err := loadStates(M, args[1])
	if err != nil {
		return err
	}

	cat, err := catalog.OpenCatalog(M, catalog.CatalogOpts{
		DbPathName: M.Opts.CatalogPath,
	})
	if err != nil {
		return err
	}
	defer cat.Close()

	added := 0
	for _, S := range states {
		isNew, err := cat.TryAddState(S)
		if err != nil {
			return err
		}
		if isNew {
			added++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d new, %d already present, %d total\n", added, len(states)-added, cat.NumStates())
	return nil
}
