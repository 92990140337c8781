package gosym

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Opts are the process-wide symmetry options fixed at model load.
type Opts struct {
	Strategy    Strategy `yaml:"strategy"`
	Symmetry    bool     `yaml:"symmetry"`     // false disables permutation reduction (multisets are still sorted)
	PermLimit   int64    `yaml:"perm_limit"`   // caps streamed residual candidates for heuristic_small_mem; 0 is unlimited
	Workers     int      `yaml:"workers"`      // parallel canonicalization workers for batches
	CatalogPath string   `yaml:"catalog_path"` // empty for an in-memory catalog
	Verbosity   int      `yaml:"verbosity"`
}

// DefaultOpts returns the options used when no config file is given.
func DefaultOpts() Opts {
	return Opts{
		Strategy:  HeuristicFast,
		Symmetry:  true,
		Workers:   runtime.NumCPU(),
		Verbosity: 1,
	}
}

// LoadOpts reads YAML options from pathname on top of DefaultOpts().
func LoadOpts(pathname string) (Opts, error) {
	opts := DefaultOpts()

	buf, err := os.ReadFile(pathname)
	if err != nil {
		return opts, errors.Wrapf(ErrBadConfig, "reading %q: %v", pathname, err)
	}
	if err = yaml.Unmarshal(buf, &opts); err != nil {
		return opts, errors.Wrapf(ErrBadConfig, "parsing %q: %v", pathname, err)
	}
	return opts, opts.Validate()
}

// Validate checks option ranges.
func (opts *Opts) Validate() error {
	if opts.Strategy < Exhaustive || opts.Strategy > HeuristicNormalize {
		return errors.Wrapf(ErrBadStrategy, "strategy %d", opts.Strategy)
	}
	if opts.PermLimit < 0 {
		return errors.Wrap(ErrBadConfig, "perm_limit must be >= 0")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return nil
}
