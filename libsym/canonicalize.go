package libsym

import (
	"bytes"

	"github.com/2x3systems/gosym/gosym"
	"github.com/pkg/errors"
)

// canonicalizer runs the configured strategy for one Model.  It owns its PermSet and state buffers, so it must
// not be shared between goroutines.
type canonicalizer struct {
	M    *Model
	ps   *PermSet
	src  gosym.State // input with multisets sorted; read-only during a call
	work gosym.State // result under construction
	cand gosym.State
	best gosym.State
	rep  Perm
	done []bool // variables already rewritten into work
}

// NewCanonicalizer returns a Canonicalizer running M's configured strategy.
func (M *Model) NewCanonicalizer() gosym.Canonicalizer {
	return M.newCanonicalizer()
}

func (M *Model) newCanonicalizer() *canonicalizer {
	return &canonicalizer{
		M:    M,
		ps:   NewPermSet(M),
		src:  make(gosym.State, M.StateSize),
		work: make(gosym.State, M.StateSize),
		cand: make(gosym.State, M.StateSize),
		best: make(gosym.State, M.StateSize),
		rep:  M.NewPerm(),
		done: make([]bool, len(M.Vars)),
	}
}

// Canonicalize is a convenience that borrows a pooled Canonicalizer; it is safe for concurrent use.
func (M *Model) Canonicalize(dst, src gosym.State) gosym.State {
	C := M.canonPool.Get().(*canonicalizer)
	dst = C.Canonicalize(dst, src)
	M.canonPool.Put(C)
	return dst
}

// Match is the pooled counterpart of Canonicalizer.Match.
func (M *Model) Match(candidate, stored gosym.State) bool {
	C := M.canonPool.Get().(*canonicalizer)
	match := C.Match(candidate, stored)
	M.canonPool.Put(C)
	return match
}

func (C *canonicalizer) Strategy() gosym.Strategy {
	return C.M.Opts.Strategy
}

func (C *canonicalizer) Canonicalize(dst, src gosym.State) gosym.State {
	C.load(src)
	if C.M.Opts.Symmetry && C.M.HasSymmetry() {
		switch C.M.Opts.Strategy {
		case gosym.Exhaustive:
			C.exhaustive()
		case gosym.HeuristicFast:
			C.heuristicFast()
		case gosym.HeuristicSmallMem:
			C.heuristicSmallMem()
		case gosym.HeuristicNormalize:
			C.heuristicNormalize()
		}
	}
	dst = C.M.resize(dst)
	copy(dst, C.work)
	return dst
}

func (C *canonicalizer) load(S gosym.State) {
	if len(S) != C.M.StateSize {
		panic(errors.Wrapf(gosym.ErrBadState, "state has %d bytes, model needs %d", len(S), C.M.StateSize))
	}
	copy(C.src, S)
	C.M.SortMultisets(C.src)
	copy(C.work, C.src)
	for i := range C.done {
		C.done[i] = false
	}
}

// exhaustive scans the full group, keeping the permutations that make each variable smallest in turn.
func (C *canonicalizer) exhaustive() {
	if err := C.ps.ResetToExplicit(); err != nil {
		panic(errors.Wrap(gosym.ErrInternal, err.Error()))
	}
	C.narrow(0)
	C.applyFirstActive()
}

// heuristicFast refines, then enumerates whatever residual the refinement could not settle.
func (C *canonicalizer) heuristicFast() {
	C.refine()
	if stalled, at := C.ps.Stalled(); stalled {
		if err := C.ps.SimpleToExplicit(); err != nil {
			panic(errors.Wrap(gosym.ErrInternal, err.Error()))
		}
		C.narrow(at)
		C.applyFirstActive()
		return
	}
	C.ps.SimpleToOne()
	C.applyPerm(C.ps.Current())
}

// heuristicSmallMem refines, then streams the residual one permutation at a time, keeping the best state.
func (C *canonicalizer) heuristicSmallMem() {
	C.refine()
	stalled, at := C.ps.Stalled()
	C.ps.SimpleToOne()
	C.applyPerm(C.ps.Current())
	if !stalled {
		return
	}

	vars := C.M.Vars[at:]
	off := vars[0].Root.Offset
	copy(C.best, C.work)
	copy(C.cand, C.work)

	limit := C.M.Opts.PermLimit
	for count := int64(1); C.ps.NextPermutation(); count++ {
		if limit > 0 && count >= limit {
			break
		}
		// Refinement stopped at vars[0], so none of vars was rewritten early
		P := C.ps.Current()
		for _, v := range vars {
			if v.Type.symmetric {
				permuteNode(v.Root, v.Root, P, C.cand, C.src)
			}
		}
		if bytes.Compare(C.cand[off:], C.best[off:]) < 0 {
			copy(C.best[off:], C.cand[off:])
		}
	}
	copy(C.work, C.best)
}

// heuristicNormalize refines to a fixed point and commits to one permutation without any search.
func (C *canonicalizer) heuristicNormalize() {
	ps := C.ps
	ps.ResetToSimple()
	ps.SetExact(false)
	for ps.AnyRemain() {
		before := ps.NumClasses()
		for _, v := range C.M.Vars {
			if v.Type.symmetric && ps.remainIn(v.Type) {
				C.refineVar(v, false)
			}
		}
		if ps.NumClasses() == before {
			break
		}
	}
	ps.SimpleToOne()
	C.applyPerm(ps.Current())
}

// refine runs one exact refinement pass over the variables in priority order, stopping early once every
// partition is discrete or the refinement stalls.
func (C *canonicalizer) refine() {
	ps := C.ps
	ps.ResetToSimple()
	ps.SetExact(true)
	for _, v := range C.M.Vars {
		if !v.Type.symmetric {
			continue
		}
		if !ps.AnyRemain() {
			break
		}
		if !ps.remainIn(v.Type) {
			continue
		}
		C.refineVar(v, true)
		if stalled, _ := ps.Stalled(); stalled {
			break
		}
	}
}

// refineVar dispatches on v's shape.  With rewrite set, simple shapes are rewritten as soon as they are settled.
func (C *canonicalizer) refineVar(v *Var, rewrite bool) {
	switch v.Shape() {
	case gosym.SymmetricScalar:
		if rewrite {
			C.SimpleCanonicalize(v)
		} else {
			C.ps.SimpleLimit(v, C.src)
		}
	case gosym.SymmetricArrayFree, gosym.MultisetFree:
		if rewrite {
			C.ArrayCanonicalize(v)
		} else {
			C.ps.ArrayLimit(v, C.src)
		}
	case gosym.SymmetricArrayOfSymmetric:
		C.ps.Limit(v, C.src)
	case gosym.MultisetOfSymmetric, gosym.Complex:
		C.ps.MultisetLimit(v, C.src)
	}
}

// SimpleCanonicalize commits v's scalarset values to classes and rewrites v to the committed positions.
func (C *canonicalizer) SimpleCanonicalize(v *Var) {
	C.ps.SimpleLimit(v, C.src)
	C.rewrite(v)
}

// ArrayCanonicalize groups v's positions by value and rewrites v in class order.
func (C *canonicalizer) ArrayCanonicalize(v *Var) {
	C.ps.ArrayLimit(v, C.src)
	C.rewrite(v)
}

// rewrite writes v under any permutation respecting the current partitions; after a settled refinement they
// all agree on v.
func (C *canonicalizer) rewrite(v *Var) {
	if stalled, _ := C.ps.Stalled(); stalled {
		return
	}
	C.ps.Representative(C.rep)
	permuteNode(v.Root, v.Root, C.rep, C.work, C.src)
	C.done[v.Index] = true
}

// narrow drops the active permutations that do not make each variable (from index from, in priority order)
// as small as possible.
func (C *canonicalizer) narrow(from int) {
	ps := C.ps
	var winners []uint64
	for _, v := range C.M.Vars[from:] {
		if !v.Type.symmetric || C.done[v.Index] {
			continue
		}
		if ps.Count() <= 1 {
			return
		}
		winners = winners[:0]
		best := v.Root.Bytes(C.best)
		for i, ok := ps.NextActive(0); ok; i, ok = ps.NextActive(i + 1) {
			permuteNode(v.Root, v.Root, ps.PermAt(i), C.cand, C.src)
			got := v.Root.Bytes(C.cand)
			if len(winners) == 0 {
				copy(best, got)
				winners = append(winners, i)
				continue
			}
			switch bytes.Compare(got, best) {
			case -1:
				for _, w := range winners {
					ps.Deactivate(w)
				}
				winners = append(winners[:0], i)
				copy(best, got)
			case 0:
				winners = append(winners, i)
			default:
				ps.Deactivate(i)
			}
		}
	}
}

func (C *canonicalizer) applyFirstActive() {
	i, ok := C.ps.NextActive(0)
	if !ok {
		panic(errors.Wrap(gosym.ErrInternal, "no active permutation left"))
	}
	C.applyPerm(C.ps.PermAt(i))
}

// applyPerm rewrites every symmetric variable not yet rewritten.
func (C *canonicalizer) applyPerm(P Perm) {
	for _, v := range C.M.Vars {
		if v.Type.symmetric && !C.done[v.Index] {
			permuteNode(v.Root, v.Root, P, C.work, C.src)
			C.done[v.Index] = true
		}
	}
}

// Match enumerates the permutations of candidate the configured strategy would consider and reports whether
// any of them equals stored.
func (C *canonicalizer) Match(candidate, stored gosym.State) bool {
	C.load(candidate)
	if len(stored) != C.M.StateSize {
		return false
	}
	copy(C.best, stored)
	C.M.SortMultisets(C.best)
	if C.src.IsEqual(C.best) {
		return true
	}
	if !C.M.Opts.Symmetry || !C.M.HasSymmetry() {
		return false
	}

	// Every permutation preserves each variable's weight
	for _, v := range C.M.Vars {
		if v.Type.symmetric && CompareWeight(v.Root, C.src, v.Root, C.best) != 0 {
			return false
		}
	}

	ps := C.ps
	if C.M.explicitMatch() {
		if err := ps.ResetToExplicit(); err != nil {
			panic(errors.Wrap(gosym.ErrInternal, err.Error()))
		}
		for i, ok := ps.NextActive(0); ok; i, ok = ps.NextActive(i + 1) {
			C.cand = C.M.Permute(C.cand, C.src, ps.PermAt(i))
			if C.cand.IsEqual(C.best) {
				return true
			}
		}
		return false
	}

	ps.ResetToSimple()
	ps.SimpleToOne()
	for {
		C.cand = C.M.Permute(C.cand, C.src, ps.Current())
		if C.cand.IsEqual(C.best) {
			return true
		}
		if !ps.NextPermutation() {
			return false
		}
	}
}

// explicitMatch returns true if Match should enumerate an Explicit set rather than stream.
func (M *Model) explicitMatch() bool {
	switch M.Opts.Strategy {
	case gosym.Exhaustive:
		return true
	case gosym.HeuristicFast:
		return M.needsEnumerate
	}
	return false
}
