package libsym

import (
	"fmt"

	"github.com/2x3systems/gosym/gosym"
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// permTables lists every permutation of one domain, ordered lexicographically by position-to-element map.
type permTables struct {
	count int
	fwd   []uint8 // fwd[i*n+e] is the position of element e under permutation i
	rev   []uint8 // rev[i*n+q] is the element at position q under permutation i
}

func (D *Domain) permTables() *permTables {
	D.tablesOnce.Do(func() {
		n := D.Size
		count := factorial(n)
		if count > gosym.MaxExplicitPermutations {
			panic(errors.Wrapf(gosym.ErrInternal, "explicit tables requested for scalarset %s (size %d)", D.Name, n))
		}
		T := &D.tables
		T.count = int(count)
		T.fwd = make([]uint8, T.count*n)
		T.rev = make([]uint8, T.count*n)

		seq := make([]int, n)
		for q := range seq {
			seq[q] = q
		}
		for i := 0; i < T.count; i++ {
			for q, e := range seq {
				T.rev[i*n+q] = uint8(e)
				T.fwd[i*n+e] = uint8(q)
			}
			nextLex(seq)
		}
	})
	return &D.tables
}

// nextLex advances a to its lexicographic successor.  At the last arrangement it wraps a back to ascending order
// and returns false.
func nextLex(a []int) bool {
	i := len(a) - 2
	for i >= 0 && a[i] >= a[i+1] {
		i--
	}
	if i < 0 {
		reverseInts(a)
		return false
	}
	j := len(a) - 1
	for a[j] <= a[i] {
		j--
	}
	a[i], a[j] = a[j], a[i]
	reverseInts(a[i+1:])
	return true
}

func reverseInts(a []int) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}

type permMode byte

const (
	modeSimple permMode = iota
	modeExplicit
	modeOne
)

// PermSet is a set of candidate permutations over all domains of a Model.
//
// In Simple form it is one ordered partition per domain: the candidates are the permutations sending each cell
// onto its range of positions.  In Explicit form it is an active flag per permutation tuple of the full group.
// In One form it holds a single current tuple that NextPermutation steps through the permutations respecting the
// partition it was made from.
//
// A PermSet is scratch for one canonicalization at a time and is not safe for concurrent use.
type PermSet struct {
	M     *Model
	mode  permMode
	parts []partition
	dry   []partition // scratch for trial refinements

	active *bitset.BitSet
	stride []uint64

	rev [][]int // modeOne: rev[D][q] is the element at position q
	cur Perm    // modeOne: current forward map
	at  Perm    // scratch for PermAt

	approx   bool
	stalled  bool
	stallVar int

	members []int    // scratch for splitCells
	keys    [][]byte // scratch for splitCells
}

func NewPermSet(M *Model) *PermSet {
	ps := &PermSet{
		M:      M,
		parts:  make([]partition, len(M.Domains)),
		dry:    make([]partition, len(M.Domains)),
		stride: make([]uint64, len(M.Domains)),
		rev:    make([][]int, len(M.Domains)),
		cur:    M.NewPerm(),
		at:     M.NewPerm(),
	}
	for i, D := range M.Domains {
		ps.rev[i] = make([]int, D.Size)
	}
	ps.ResetToSimple()
	return ps
}

// ResetToSimple makes every domain a single uncommitted cell: the full group with no restriction.
func (ps *PermSet) ResetToSimple() {
	for i, D := range ps.M.Domains {
		ps.parts[i].reset(D.Size)
	}
	ps.mode = modeSimple
	ps.stalled = false
	ps.stallVar = len(ps.M.Vars)
}

// ResetToExplicit materializes the full group, failing if its order exceeds the explicit ceiling.
func (ps *PermSet) ResetToExplicit() error {
	if err := ps.initExplicit(); err != nil {
		return err
	}
	ps.active.ClearAll()
	ps.active.FlipRange(0, uint(ps.M.groupOrder))
	for i, D := range ps.M.Domains {
		ps.parts[i].reset(D.Size)
	}
	ps.mode = modeExplicit
	return nil
}

func (ps *PermSet) initExplicit() error {
	if ps.M.groupOrder > gosym.MaxExplicitPermutations {
		return ps.M.ceilingError()
	}
	stride := uint64(1)
	for i, D := range ps.M.Domains {
		ps.stride[i] = stride
		stride *= uint64(D.permTables().count)
	}
	if ps.active == nil {
		ps.active = bitset.New(uint(ps.M.groupOrder))
	}
	return nil
}

// SimpleToExplicit materializes only the permutations respecting the current partitions.
func (ps *PermSet) SimpleToExplicit() error {
	if ps.mode != modeSimple {
		panic(errors.Wrap(gosym.ErrInternal, "SimpleToExplicit on a non-simple PermSet"))
	}

	restricted := uint64(1)
	for i := range ps.parts {
		P := &ps.parts[i]
		for c := 0; c < len(P.elems); c = P.end[c] {
			restricted = satMul(restricted, factorial(P.size(c)))
		}
	}
	if restricted > gosym.MaxExplicitPermutations {
		return errors.Wrapf(gosym.ErrPermutationCeiling, "residual of more than %d permutations", gosym.MaxExplicitPermutations)
	}
	if err := ps.initExplicit(); err != nil {
		return err
	}

	// Per domain, the table indices that keep every element within its cell's positions
	allowed := make([][]uint64, len(ps.M.Domains))
	for i, D := range ps.M.Domains {
		n := D.Size
		T := D.permTables()
		P := &ps.parts[i]
		lo := make([]int, n)
		hi := make([]int, n)
		for e := range lo {
			lo[e] = P.cell[e]
			hi[e] = P.end[P.cell[e]]
		}
		for idx := 0; idx < T.count; idx++ {
			ok := true
			for q, e := range T.rev[idx*n : idx*n+n] {
				if q < lo[e] || q >= hi[e] {
					ok = false
					break
				}
			}
			if ok {
				allowed[i] = append(allowed[i], uint64(idx))
			}
		}
	}

	ps.active.ClearAll()
	digits := make([]int, len(allowed))
	for {
		bit := uint64(0)
		for i, d := range digits {
			bit += allowed[i][d] * ps.stride[i]
		}
		ps.active.Set(uint(bit))

		i := 0
		for ; i < len(digits); i++ {
			digits[i]++
			if digits[i] < len(allowed[i]) {
				break
			}
			digits[i] = 0
		}
		if i == len(digits) {
			break
		}
	}
	ps.mode = modeExplicit
	return nil
}

// SimpleToOne commits to the single permutation listing elements by ascending class, ties by element order.
// NextPermutation then steps through the other permutations respecting the same partition.
func (ps *PermSet) SimpleToOne() {
	if ps.mode != modeSimple {
		panic(errors.Wrap(gosym.ErrInternal, "SimpleToOne on a non-simple PermSet"))
	}
	for i := range ps.parts {
		rev := append(ps.rev[i][:0], ps.parts[i].elems...)
		ps.rev[i] = rev
		for q, e := range rev {
			ps.cur[i][e] = q
		}
	}
	ps.mode = modeOne
}

// Representative fills P with the permutation SimpleToOne would commit to, leaving the set in Simple form.
func (ps *PermSet) Representative(P Perm) {
	for i := range ps.parts {
		for q, e := range ps.parts[i].elems {
			P[i][e] = q
		}
	}
}

// Current returns the permutation committed by SimpleToOne or reached by NextPermutation.
func (ps *PermSet) Current() Perm {
	return ps.cur
}

// NextPermutation advances to the next permutation respecting the cells, varying the first cell of the first
// domain fastest.  Returns false once every such permutation has been visited.
func (ps *PermSet) NextPermutation() bool {
	if ps.mode != modeOne {
		panic(errors.Wrap(gosym.ErrInternal, "NextPermutation without SimpleToOne"))
	}
	for i := range ps.parts {
		P := &ps.parts[i]
		rev := ps.rev[i]
		for start := 0; start < len(rev); {
			end := P.end[P.cell[rev[start]]]
			if end-start > 1 {
				advanced := nextLex(rev[start:end])
				for q := start; q < end; q++ {
					ps.cur[i][rev[q]] = q
				}
				if advanced {
					return true
				}
			}
			start = end
		}
	}
	return false
}

// MoreThanOneRemain returns true if D's partition still has a cell of two or more elements.
func (ps *PermSet) MoreThanOneRemain(D *Domain) bool {
	return !ps.parts[D.ID].isDiscrete()
}

// remainIn returns true if some domain T refers to still has a cell of two or more elements.  Refining on a
// variable whose domains are all discrete can neither split a cell nor stall.
func (ps *PermSet) remainIn(T *Type) bool {
	for _, D := range T.domains {
		if ps.MoreThanOneRemain(D) {
			return true
		}
	}
	return false
}

// AnyRemain returns true if some domain's partition is not yet discrete.
func (ps *PermSet) AnyRemain() bool {
	for i := range ps.parts {
		if !ps.parts[i].isDiscrete() {
			return true
		}
	}
	return false
}

// NumClasses returns the total number of cells over all domains.
func (ps *PermSet) NumClasses() int {
	total := 0
	for i := range ps.parts {
		total += ps.parts[i].numClasses()
	}
	return total
}

// Count returns the number of active permutations of an Explicit set.
func (ps *PermSet) Count() uint64 {
	if ps.mode != modeExplicit {
		return 0
	}
	return uint64(ps.active.Count())
}

// NextActive returns the first active permutation index at or after i.
func (ps *PermSet) NextActive(i uint64) (uint64, bool) {
	next, ok := ps.active.NextSet(uint(i))
	return uint64(next), ok
}

// Deactivate removes permutation i from an Explicit set.
func (ps *PermSet) Deactivate(i uint64) {
	ps.active.Clear(uint(i))
}

// PermAt decodes the permutation tuple with the given explicit index.
// The returned Perm is overwritten by the next call.
func (ps *PermSet) PermAt(i uint64) Perm {
	for d, D := range ps.M.Domains {
		T := D.permTables()
		n := D.Size
		idx := int((i / ps.stride[d]) % uint64(T.count))
		for e, q := range T.fwd[idx*n : idx*n+n] {
			ps.at[d][e] = int(q)
		}
	}
	return ps.at
}

// Class returns the class id (cell rank) of element e of D.
func (ps *PermSet) Class(D *Domain, e int) int {
	P := &ps.parts[D.ID]
	return P.rank(P.cell[e])
}

// UndefinedClass returns the id of D's uncommitted cell.
func (ps *PermSet) UndefinedClass(D *Domain) int {
	return ps.parts[D.ID].cells - 1
}

// Stalled returns true if exact refinement stopped at an ambiguity it cannot express as a partition, and the
// index (in priority order) of the variable where it stopped.
func (ps *PermSet) Stalled() (bool, int) {
	return ps.stalled, ps.stallVar
}

func (ps *PermSet) String() string {
	buf := make([]byte, 0, 64)
	for i, D := range ps.M.Domains {
		P := &ps.parts[i]
		buf = fmt.Appendf(buf, "%s:", D.Name)
		for c := 0; c < len(P.elems); c = P.end[c] {
			buf = append(buf, " ["...)
			for k, e := range P.members(c, nil) {
				if k > 0 {
					buf = append(buf, ' ')
				}
				buf = fmt.Appendf(buf, "%d", e)
			}
			buf = append(buf, ']')
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}
