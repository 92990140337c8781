package libsym

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2x3systems/gosym/gosym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapes(t *testing.T) {
	M := loadModel(t, `
		scalarset P : 2;
		scalarset Q : 2;
		var cx : array [P] of array [Q] of boolean;
		var mo : multiset [2] of P;
		var ao : array [P] of Q;
		var ms : multiset [2] of boolean;
		var af : array [P] of boolean;
		var fa : array [boolean] of P;
		var r  : record { a : P; b : boolean; };
		var s  : P;
		var f  : 0..3;
	`, gosym.HeuristicFast)

	want := []struct {
		name  string
		shape gosym.Shape
	}{
		{"f", gosym.Free},
		{"fa", gosym.SymmetricScalar},
		{"r", gosym.SymmetricScalar},
		{"s", gosym.SymmetricScalar},
		{"af", gosym.SymmetricArrayFree},
		{"ms", gosym.MultisetFree},
		{"ao", gosym.SymmetricArrayOfSymmetric},
		{"mo", gosym.MultisetOfSymmetric},
		{"cx", gosym.Complex},
	}
	require.Len(t, M.Vars, len(want))
	offset := 0
	for i, wi := range want {
		v := M.Vars[i]
		assert.Equal(t, wi.name, v.Name)
		assert.Equal(t, wi.shape, v.Shape(), v.Name)
		assert.Equal(t, i, v.Index)
		assert.Equal(t, offset, v.Root.Offset, v.Name)
		offset += v.Type.Size()
	}
	assert.Equal(t, offset, M.StateSize)

	assert.False(t, M.Var("f").Type.HasSymmetry())
	assert.False(t, M.Var("ms").Type.HasSymmetry())
	assert.True(t, M.Var("cx").Type.HasSymmetry())
	assert.True(t, M.NeedsEnumeration())
	assert.EqualValues(t, 4, M.GroupOrder())

	// Declaration order is kept for printing
	assert.Equal(t, "cx", M.Decls[0].Name)
	assert.Equal(t, "f", M.Decls[len(M.Decls)-1].Name)
}

func TestSimpleModelNeedsNoEnumeration(t *testing.T) {
	M := loadModel(t, `
		scalarset P : 12;
		var owner : P;
		var busy  : array [P] of boolean;
	`, gosym.HeuristicFast)
	assert.False(t, M.NeedsEnumeration())
	assert.Greater(t, M.GroupOrder(), uint64(gosym.MaxExplicitPermutations))
}

func TestCeiling(t *testing.T) {
	const graph = `
		scalarset Node : 10;
		var next : array [Node] of Node;
	`
	const simple = `
		scalarset Node : 10;
		var owner : Node;
	`

	for _, tc := range []struct {
		model    string
		strategy gosym.Strategy
		fails    bool
	}{
		{graph, gosym.Exhaustive, true},
		{graph, gosym.HeuristicFast, true},
		{graph, gosym.HeuristicSmallMem, false},
		{graph, gosym.HeuristicNormalize, false},
		{simple, gosym.Exhaustive, true},
		{simple, gosym.HeuristicFast, false},
	} {
		opts := gosym.DefaultOpts()
		opts.Strategy = tc.strategy
		_, err := LoadModel(tc.model, opts)
		if tc.fails {
			require.Error(t, err, tc.strategy)
			assert.ErrorIs(t, err, gosym.ErrPermutationCeiling)
			assert.Contains(t, err.Error(), "Node(10)")
		} else {
			assert.NoError(t, err, tc.strategy)
		}
	}

	opts := gosym.DefaultOpts()
	opts.Strategy = gosym.Exhaustive
	opts.Symmetry = false
	_, err := LoadModel(graph, opts)
	assert.NoError(t, err)

	// 9! fits under the ceiling
	opts.Symmetry = true
	_, err = LoadModel("scalarset Node : 9; var next : array [Node] of Node;", opts)
	assert.NoError(t, err)
}

func TestModelErrors(t *testing.T) {
	for _, tc := range []struct {
		model string
		err   error
	}{
		{"scalarset P : 2; var x : Q;", gosym.ErrUnknownType},
		{"scalarset P : 2; scalarset P : 3; var x : P;", gosym.ErrDuplicateName},
		{"scalarset P : 2; var x : P; var x : P;", gosym.ErrDuplicateName},
		{"enum E { a, b, a }; var x : E;", gosym.ErrDuplicateName},
		{"type R : record { a : boolean; }; var x : array [R] of boolean;", gosym.ErrBadIndexType},
		{"var x : array [array [boolean] of boolean] of boolean;", gosym.ErrBadIndexType},
		{"var x : multiset [0] of boolean;", gosym.ErrBadModel},
		{"var x : 5..2;", gosym.ErrBadModel},
		{"scalarset P : 0; var x : P;", gosym.ErrBadModel},
		{"scalarset P : 2;", gosym.ErrBadModel},
		{"var x : ;", gosym.ErrBadModel},
	} {
		_, err := LoadModel(tc.model, gosym.DefaultOpts())
		assert.ErrorIs(t, err, tc.err, tc.model)
	}

	opts := gosym.DefaultOpts()
	opts.Strategy = gosym.Strategy(9)
	_, err := LoadModel("var x : boolean;", opts)
	assert.ErrorIs(t, err, gosym.ErrBadStrategy)
}

func TestLoadModelFile(t *testing.T) {
	pathname := filepath.Join(t.TempDir(), "mutex.model")
	require.NoError(t, os.WriteFile(pathname, []byte(mutexModel), 0644))

	M, err := LoadModelFile(pathname, gosym.DefaultOpts())
	require.NoError(t, err)
	assert.NotNil(t, M.Domain("Proc"))
	assert.Nil(t, M.Domain("Mode"))

	_, err = LoadModelFile(filepath.Join(t.TempDir(), "missing.model"), gosym.DefaultOpts())
	assert.Error(t, err)
}

func TestStateLiterals(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)

	S, err := M.ParseState(`{
		net:   {| {src: Proc_2, m: idle}, {src: Proc_0, m: crit}, {src: Proc_0} |},
		owner: Proc_1,
		mode:  [idle, trying, undefined],
	}`)
	require.Error(t, err, "trailing comma is not part of the syntax")

	S, err = M.ParseState(`{
		net:   {| {src: Proc_2, m: idle}, {src: Proc_0, m: crit}, {src: Proc_0} |},
		owner: Proc_1,
		mode:  [idle, trying, undefined]
	}`)
	require.NoError(t, err)
	str := M.StateString(S)
	assert.Equal(t, "{ owner: Proc_1, mode: [idle, trying, undefined], next: [undefined, undefined, undefined], "+
		"net: {|{src: Proc_0, m: undefined}, {src: Proc_0, m: crit}, {src: Proc_2, m: idle}|} }", str)

	again, err := M.ParseState(str)
	require.NoError(t, err)
	assert.Equal(t, S, again)

	assert.Equal(t, uint32(2), M.Var("owner").Get(S))
	require.NoError(t, M.Var("owner").Set(S, 0))
	assert.Equal(t, uint32(0), M.Var("owner").Get(S))
	assert.ErrorIs(t, M.Var("owner").Set(S, 4), gosym.ErrBadValue)
	assert.ErrorIs(t, M.Var("mode").Set(S, 1), gosym.ErrBadValue)

	for _, bad := range []string{
		"{ owner: Proc_3 }",
		"{ owner: Other_0 }",
		"{ owner: idle }",
		"{ mode: [idle, idle] }",
		"{ mode: [idle, idle, busy] }",
		"{ net: {| {src: Proc_0}, {src: Proc_0}, {src: Proc_0}, {src: Proc_0} |} }",
		"{ net: {| {dst: Proc_0} |} }",
		"{ nobody: Proc_0 }",
		"{ owner: Proc_0 } { owner: Proc_1 }",
	} {
		_, err := M.ParseState(bad)
		assert.ErrorIs(t, err, gosym.ErrBadValue, bad)
	}
}

func TestFreeLeaves(t *testing.T) {
	M := loadModel(t, `
		var b : boolean;
		var n : -2..300;
		var m : array [0..1] of boolean;
	`, gosym.HeuristicFast)
	assert.False(t, M.HasSymmetry())
	assert.Equal(t, 1+2+2, M.StateSize)

	const lit = "{ b: true, n: 299, m: [false, undefined] }"
	S := M.MustParseState(lit)
	assert.Equal(t, lit, M.StateString(S))
	assert.Equal(t, S, M.Canonicalize(nil, S))

	lo := M.MustParseState("{ n: -2 }")
	hi := M.MustParseState("{ n: 300 }")
	assert.Negative(t, lo.Compare(hi))
	assert.Negative(t, M.MustParseState("{ }").Compare(lo), "undefined orders first")
}

func TestSignature(t *testing.T) {
	A := loadModel(t, mutexModel, gosym.HeuristicFast)
	B := loadModel(t, strings.ReplaceAll(mutexModel, "scalarset Proc : 3;", "scalarset Proc : 4;"), gosym.Exhaustive)
	assert.NotEqual(t, A.Signature(), B.Signature())

	C := loadModel(t, mutexModel, gosym.HeuristicNormalize)
	assert.Equal(t, A.Signature(), C.Signature())
}

func TestInternalDispatchError(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	S := M.NewState()
	ps := NewPermSet(M)

	defer func() {
		err, _ := recover().(error)
		require.Error(t, err)
		assert.ErrorIs(t, err, gosym.ErrInternal)
	}()
	ps.MultisetLimit(M.Var("owner"), S)
}
