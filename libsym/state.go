package libsym

import (
	"github.com/2x3systems/gosym/gosym"
	"github.com/pkg/errors"
)

// NewState returns a zeroed state (every leaf undefined, every multiset empty) from M's pool.
func (M *Model) NewState() gosym.State {
	if S, ok := M.statePool.Get().(gosym.State); ok {
		clear(S)
		return S
	}
	return make(gosym.State, M.StateSize)
}

// ReclaimState returns S to M's pool.  S must not be used afterwards.
func (M *Model) ReclaimState(S gosym.State) {
	if len(S) == M.StateSize {
		M.statePool.Put(S)
	}
}

// Read returns the bytes of S holding v.
func (v *Var) Read(S gosym.State) []byte {
	return v.Root.Bytes(S)
}

// Write overwrites v in S with val, which must come from Read on a state of the same model.
func (v *Var) Write(S gosym.State, val []byte) {
	copy(v.Root.Bytes(S), val)
}

// Get returns the code of a leaf variable: 0 for undefined, else one more than the value's index.
func (v *Var) Get(S gosym.State) uint32 {
	return getCode(S, v.Root)
}

// Set assigns the code of a leaf variable.
func (v *Var) Set(S gosym.State, code uint32) error {
	if !v.Type.IsLeaf() {
		return errors.Wrapf(gosym.ErrBadValue, "%s is not a leaf", v.Name)
	}
	if int(code) > v.Type.NumValues() {
		return errors.Wrapf(gosym.ErrBadValue, "code %d out of range for %v", code, v.Type)
	}
	setCode(S, v.Root, code)
	return nil
}
