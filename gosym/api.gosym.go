package gosym

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// MaxExplicitPermutations bounds the number of permutation tuples an Explicit permutation set may materialize.
const MaxExplicitPermutations = 600000

// State is a packed, fixed-size model state.
//
// Leaves are fixed-width big-endian codes laid out in variable priority order, so raw byte order is the
// state order used to pick canonical representatives.
type State []byte

// Compare returns -1, 0, or 1 in raw lexicographic byte order.
func (S State) Compare(other State) int {
	return bytes.Compare(S, other)
}

// IsEqual returns true if both states hold identical bytes.
func (S State) IsEqual(other State) bool {
	return bytes.Equal(S, other)
}

// Clone returns a copy of S that shares no storage with it.
func (S State) Clone() State {
	return append(State(nil), S...)
}

// Strategy selects the canonicalization algorithm used for a loaded model.
type Strategy int32

const (
	Exhaustive Strategy = iota
	HeuristicFast
	HeuristicSmallMem
	HeuristicNormalize
)

var strategyNames = []string{
	"exhaustive",
	"heuristic_fast",
	"heuristic_small_mem",
	"heuristic_normalize",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

// IsExact returns true if this Strategy always yields the lexicographic minimum of a state's orbit.
func (s Strategy) IsExact() bool {
	return s != HeuristicNormalize
}

// ParseStrategy converts a configuration name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	for i, si := range strategyNames {
		if si == name {
			return Strategy(i), nil
		}
	}
	return Exhaustive, errors.Wrapf(ErrBadStrategy, "%q", name)
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Shape classifies how symmetry acts on a type.
//
// Shapes are listed in the priority order in which state variables are laid out and visited.
type Shape byte

const (
	Free Shape = iota
	SymmetricScalar
	SymmetricArrayFree
	MultisetFree
	SymmetricArrayOfSymmetric
	MultisetOfSymmetric
	Complex

	NumShapes
)

var shapeNames = [NumShapes]string{
	"Free",
	"SymmetricScalar",
	"SymmetricArrayFree",
	"MultisetFree",
	"SymmetricArrayOfSymmetric",
	"MultisetOfSymmetric",
	"Complex",
}

func (s Shape) String() string {
	if s >= NumShapes {
		return "Shape?"
	}
	return shapeNames[s]
}

// IsSimple returns true for shapes that refinement always settles without any residual search.
func (s Shape) IsSimple() bool {
	return s <= MultisetFree
}

// Canonicalizer rewrites states into symmetry representatives for one loaded model.
//
// A Canonicalizer owns per-call scratch, so each concurrent caller needs its own instance.
type Canonicalizer interface {

	// Canonicalize writes the representative of src's orbit into dst (which is resized as needed) and returns it.
	// src is never modified and may be the same slice as dst.
	Canonicalize(dst, src State) State

	// Match returns true if some permutation of candidate equals stored.
	// Neither state is modified.
	Match(candidate, stored State) bool

	// Strategy returns the strategy this Canonicalizer runs.
	Strategy() Strategy
}

// StateSet dedupes states, typically canonical ones.
type StateSet interface {

	// TryAdd adds S if it is not already present and returns true if it was added.
	TryAdd(S State) bool

	// Len returns the number of distinct states added.
	Len() int

	// Close releases all resources held by this set.
	Close()
}

// PrintOpts specifies how states are printed.
type PrintOpts struct {
	Label   string
	Indices bool // prefix each line with its count
}

// StatePrinter writes states in the model's literal syntax.
type StatePrinter interface {
	WriteState(out io.Writer, S State) error
}
