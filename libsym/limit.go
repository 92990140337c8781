package libsym

import (
	"bytes"

	"github.com/2x3systems/gosym/gosym"
	"github.com/pkg/errors"
)

// Refinement narrows the Simple partitions using the contents of one variable.
//
// In exact mode, each step keeps every permutation that can still produce the lexicographically smallest state
// and drops the rest, so the leaves walked so far are identical under all remaining permutations.  When the
// remaining choice cannot be written as an ordered partition (two differently valued candidates tie), the set
// stalls: it stops refining and leaves the rest to enumeration.
//
// In approximate mode ties are split off as a group instead and walking continues, which is what normalize
// needs: the outcome depends only on the state's structure, never on element identities.

// SimpleLimit refines on the scalarset leaves of a SymmetricScalar variable.
func (ps *PermSet) SimpleLimit(v *Var, S gosym.State) {
	ps.checkShape("SimpleLimit", v, gosym.SymmetricScalar)
	ps.refine(v, S, levelScalar)
}

// ArrayLimit refines on a scalarset-indexed array (or multiset) of free elements, grouping positions by value.
func (ps *PermSet) ArrayLimit(v *Var, S gosym.State) {
	ps.checkShape("ArrayLimit", v, gosym.SymmetricArrayFree, gosym.MultisetFree)
	ps.refine(v, S, levelArray)
}

// Limit refines on a scalarset-indexed array whose elements hold scalarset values: self references,
// references into other cells, and references into other domains.
func (ps *PermSet) Limit(v *Var, S gosym.State) {
	ps.checkShape("Limit", v, gosym.SymmetricArrayOfSymmetric, gosym.Complex)
	ps.refine(v, S, levelGraph)
}

// MultisetLimit refines on a multiset of symmetric elements, treating its occupied slots as an index set ordered
// by their contents.
func (ps *PermSet) MultisetLimit(v *Var, S gosym.State) {
	ps.checkShape("MultisetLimit", v, gosym.MultisetOfSymmetric, gosym.Complex)
	ps.refine(v, S, levelMultiset)
}

func (ps *PermSet) checkShape(op string, v *Var, shapes ...gosym.Shape) {
	shape := v.Shape()
	for _, si := range shapes {
		if si == shape {
			return
		}
	}
	panic(errors.Wrapf(gosym.ErrInternal, "%s called on %v variable %q", op, shape, v.Name))
}

// SetExact selects exact (stalling) or approximate (splitting) refinement.
func (ps *PermSet) SetExact(exact bool) {
	ps.approx = !exact
}

func (ps *PermSet) refine(v *Var, S gosym.State, level refineLevel) {
	if ps.mode != modeSimple {
		panic(errors.Wrapf(gosym.ErrInternal, "refinement of %q on a non-simple PermSet", v.Name))
	}
	if ps.stalled {
		return
	}
	ps.walk(v.Root, S, level)
	if ps.stalled {
		ps.stallVar = v.Index
	}
}

func (ps *PermSet) stall() {
	if !ps.approx {
		ps.stalled = true
	}
}

func (ps *PermSet) walk(n *Node, S []byte, level refineLevel) {
	T := n.Type
	if ps.stalled || !T.symmetric {
		return
	}

	if need, ok := levelFor(T); !ok || need > level {
		if !ps.approx {
			ps.stall()
		} else if T.Kind == KindArray && T.Index.Kind == KindScalarset {
			ps.splitByWeight(n, S)
		}
		return
	}

	switch T.Kind {
	case KindScalarset:
		if code := getCode(S, n); code != 0 {
			ps.parts[T.Domain.ID].individualize(int(code - 1))
		}
	case KindRecord:
		for _, kid := range n.Kids {
			ps.walk(kid, S, level)
		}
	case KindArray:
		if T.Index.Kind == KindScalarset {
			ps.limitIndexed(n, S, level)
		} else {
			for _, kid := range n.Kids {
				ps.walk(kid, S, level)
			}
		}
	case KindMultiset:
		ps.limitMultiset(n, S, level)
	}
}

// limitIndexed walks the positions of a scalarset-indexed array in order.  At each position it finds the
// elements of the cell starting there whose element block can be made smallest, and commits the winner.
func (ps *PermSet) limitIndexed(n *Node, S []byte, level refineLevel) {
	D := n.Type.Index.Domain
	P := &ps.parts[D.ID]
	selfRef := n.Type.Elem.RefersTo(D)

	// Free elements never change under a permutation, so each cell just sorts by element bytes
	if !n.Type.Elem.symmetric {
		ps.splitCells(n, func(kid *Node) []byte {
			return kid.Bytes(S)
		})
		return
	}

	for pos := 0; pos < D.Size && !ps.stalled; {
		c := P.cellAt(pos)
		members := P.members(c, nil)
		if len(members) == 1 {
			ps.walk(n.Kids[members[0]], S, level)
			pos++
			continue
		}

		keys := make([][]byte, len(members))
		for i, e := range members {
			keys[i] = ps.dryKey(n.Kids[e], S, D, e)
		}
		winners := leastKeys(members, keys)

		switch {
		case len(winners) == 1:
			P.individualize(winners[0])
			ps.walk(n.Kids[winners[0]], S, level)
			pos++

		case !selfRef && sameContents(n.Kids, winners, S):
			// Identical elements: whichever goes first, the next len(winners) blocks come out the same
			P.splitFront(c, winners)
			ps.walk(n.Kids[winners[0]], S, level)
			pos += len(winners)

		default:
			ps.stall()
			if ps.stalled {
				return
			}
			P.splitFront(c, winners)
			pos += len(winners)
		}
	}
}

// limitMultiset repeatedly takes the present elements that can be made smallest, in the order they will appear
// once the multiset is sorted.
func (ps *PermSet) limitMultiset(n *Node, S []byte, level refineLevel) {
	elem := n.Type.Elem
	if !elem.symmetric {
		return
	}

	remaining := make([]*Node, 0, len(n.Kids))
	for _, kid := range n.Kids {
		if slotPresent(S, kid) {
			remaining = append(remaining, kid)
		}
	}

	for len(remaining) > 0 && !ps.stalled {
		keys := make([][]byte, len(remaining))
		idx := make([]int, len(remaining))
		for i, kid := range remaining {
			keys[i] = ps.dryKey(kid, S, nil, 0)
			idx[i] = i
		}
		winners := leastKeys(idx, keys)
		groups := groupByContents(remaining, winners, S)

		if len(groups) == 1 {
			ps.walk(remaining[groups[0][0]], S, level)
			remaining = removeSlots(remaining, groups[0])
			continue
		}

		if elem.symLeaves != 1 {
			ps.stall()
			remaining = removeSlots(remaining, winners)
			continue
		}

		// Each tied group holds one distinct element of the same cell.  Elements that occur more often must take
		// the lower positions.
		most := 0
		for _, g := range groups {
			if len(g) > most {
				most = len(g)
			}
		}
		var top []int
		var taken []int
		for _, g := range groups {
			if len(g) == most {
				top = append(top, g[0])
				taken = append(taken, g...)
			}
		}
		if len(top) == 1 {
			ps.walk(remaining[top[0]], S, level)
		} else {
			leaf := firstSymLeaf(elem, remaining[top[0]])
			D := leaf.Type.Domain
			targets := make([]int, len(top))
			for i, ti := range top {
				targets[i] = int(getCode(S, firstSymLeaf(elem, remaining[ti])) - 1)
			}
			P := &ps.parts[D.ID]
			P.splitFront(P.cell[targets[0]], targets)
		}
		remaining = removeSlots(remaining, taken)
	}
}

// splitByWeight splits each cell of an array's index domain by the permutation-invariant weight of the elements.
func (ps *PermSet) splitByWeight(n *Node, S []byte) {
	ps.splitCells(n, func(kid *Node) []byte {
		return appendWeight(nil, kid, S)
	})
}

// splitCells splits every cell of the index domain of n by the key of each member's element, in one pass.
func (ps *PermSet) splitCells(n *Node, key func(kid *Node) []byte) {
	P := &ps.parts[n.Type.Index.Domain.ID]
	for c := 0; c < len(P.elems); {
		next := P.end[c]
		if next-c > 1 {
			ps.members = P.members(c, ps.members[:0])
			ps.keys = ps.keys[:0]
			for _, e := range ps.members {
				ps.keys = append(ps.keys, key(n.Kids[e]))
			}
			P.splitByKeys(ps.members, ps.keys)
		}
		c = next
	}
}

// dryKey returns the smallest block n can be rewritten to when D's element e is placed first in its cell
// (D may be nil), committing each referenced element as early as possible.
func (ps *PermSet) dryKey(n *Node, S []byte, D *Domain, e int) []byte {
	for _, Di := range n.Type.domains {
		ps.dry[Di.ID].copyFrom(&ps.parts[Di.ID])
	}
	if D != nil && n.Type.RefersTo(D) {
		ps.dry[D.ID].individualize(e)
	}
	return ps.appendGreedy(nil, n, S)
}

func (ps *PermSet) appendGreedy(buf []byte, n *Node, S []byte) []byte {
	T := n.Type
	if !T.symmetric {
		return append(buf, n.Bytes(S)...)
	}
	switch T.Kind {
	case KindScalarset:
		code := getCode(S, n)
		if code != 0 {
			P := &ps.dry[T.Domain.ID]
			e := int(code - 1)
			P.individualize(e)
			code = uint32(P.position(e)) + 1
		}
		return appendCode(buf, T.width, code)
	case KindRecord:
		for _, kid := range n.Kids {
			buf = ps.appendGreedy(buf, kid, S)
		}
		return buf
	case KindArray:
		if T.Index.Kind != KindScalarset {
			for _, kid := range n.Kids {
				buf = ps.appendGreedy(buf, kid, S)
			}
			return buf
		}
	}
	panic(errors.Wrapf(gosym.ErrInternal, "element type %v is not SymmetricScalar", T))
}

// leastKeys returns the members whose keys equal the smallest key.
func leastKeys(members []int, keys [][]byte) []int {
	least := keys[0]
	for _, k := range keys[1:] {
		if bytes.Compare(k, least) < 0 {
			least = k
		}
	}
	var winners []int
	for i, k := range keys {
		if bytes.Equal(k, least) {
			winners = append(winners, members[i])
		}
	}
	return winners
}

func sameContents(kids []*Node, elems []int, S []byte) bool {
	first := kids[elems[0]].Bytes(S)
	for _, e := range elems[1:] {
		if !bytes.Equal(first, kids[e].Bytes(S)) {
			return false
		}
	}
	return true
}

// groupByContents groups slot indices (into slots) holding identical elements, in order of first occurrence.
func groupByContents(slots []*Node, which []int, S []byte) [][]int {
	var groups [][]int
	for _, i := range which {
		placed := false
		for g, group := range groups {
			if bytes.Equal(slots[group[0]].Bytes(S), slots[i].Bytes(S)) {
				groups[g] = append(group, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}
	return groups
}

func containsInt(list []int, x int) bool {
	for _, xi := range list {
		if xi == x {
			return true
		}
	}
	return false
}

func removeSlots(slots []*Node, drop []int) []*Node {
	out := slots[:0:0]
	for i, slot := range slots {
		if !containsInt(drop, i) {
			out = append(out, slot)
		}
	}
	return out
}

// firstSymLeaf returns the scalarset leaf within n, whose type T holds exactly one.
func firstSymLeaf(T *Type, n *Node) *Node {
	if T.Kind == KindScalarset {
		return n
	}
	for _, kid := range n.Kids {
		if kid.Type.symmetric {
			return firstSymLeaf(kid.Type, kid)
		}
	}
	return nil
}
