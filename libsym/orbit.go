package libsym

import (
	"github.com/2x3systems/gosym/gosym"
)

// ForEachPermutation calls fn with every element of M's symmetry group, starting with the identity, until fn
// returns false.  The Perm passed to fn is only valid during the call.
func (M *Model) ForEachPermutation(fn func(P Perm) bool) {
	ps := NewPermSet(M)
	ps.SimpleToOne()
	for fn(ps.Current()) && ps.NextPermutation() {
	}
}

// Orbit returns every distinct state reachable from S by a permutation of M's scalarsets.
// The orbit's Min is the exact canonical representative of S.
func (M *Model) Orbit(S gosym.State) *OrderedSet {
	src := M.NewState()
	defer M.ReclaimState(src)
	copy(src, S)
	M.SortMultisets(src)

	orbit := NewOrderedSet()
	dst := M.NewState()
	defer M.ReclaimState(dst)
	M.ForEachPermutation(func(P Perm) bool {
		dst = M.Permute(dst, src, P)
		orbit.TryAdd(dst)
		return true
	})
	return orbit
}
