package libsym

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/2x3systems/gosym/gosym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoneScalar(t *testing.T) {
	for _, strategy := range allStrategies {
		M := loadModel(t, "scalarset D : 3; var v : D;", strategy)
		S := M.MustParseState("{ v: D_1 }")
		assert.Equal(t, "{ v: D_0 }", M.StateString(M.Canonicalize(nil, S)), strategy)
	}
}

func TestRecordFirstAppearance(t *testing.T) {
	const model = `
		scalarset D : 3;
		var r : record { x : D; y : D; };
	`
	for _, strategy := range allStrategies {
		M := loadModel(t, model, strategy)
		for _, lit := range []string{
			"{ r: {x: D_2, y: D_0} }",
			"{ r: {x: D_1, y: D_2} }",
			"{ r: {x: D_0, y: D_1} }",
		} {
			got := M.Canonicalize(nil, M.MustParseState(lit))
			assert.Equal(t, "{ r: {x: D_0, y: D_1} }", M.StateString(got), "%v %s", strategy, lit)
		}
		got := M.Canonicalize(nil, M.MustParseState("{ r: {x: D_2, y: D_2} }"))
		assert.Equal(t, "{ r: {x: D_0, y: D_0} }", M.StateString(got), strategy)
	}
}

func TestUndefinedIsFixed(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	S := M.MustParseState("{ owner: undefined, next: [undefined, Proc_2, undefined] }")
	got := M.Canonicalize(nil, S)
	assert.Equal(t, "{ owner: undefined, mode: [undefined, undefined, undefined], next: [undefined, undefined, Proc_0], net: {||} }",
		M.StateString(got))
}

func TestExactStrategies(t *testing.T) {
	for _, modelDesc := range []string{mutexModel, mixedModel} {
		for _, strategy := range exactStrategies {
			M := loadModel(t, modelDesc, strategy)
			perms := allPerms(M)
			C := M.NewCanonicalizer()

			for _, S := range randomStates(M, 7, 120) {
				canonic := C.Canonicalize(nil, S)

				// Global minimality
				orbit := M.Orbit(S)
				require.Equal(t, orbit.Min(), canonic, "%v: %s", strategy, M.StateString(S))

				// Idempotence
				require.Equal(t, canonic, C.Canonicalize(nil, canonic), strategy)

				// Symmetry invariance
				for _, P := range perms {
					image := M.Permute(nil, S, P)
					require.Equal(t, canonic, C.Canonicalize(nil, image), "%v: %s under %s", strategy, M.StateString(S), permString(P))
				}
			}
		}
	}
}

func TestStrategyAgreement(t *testing.T) {
	models := make(map[gosym.Strategy]*Model)
	for _, strategy := range exactStrategies {
		models[strategy] = loadModel(t, mixedModel, strategy)
	}
	reference := models[gosym.Exhaustive]
	for _, S := range randomStates(reference, 11, 200) {
		want := reference.Canonicalize(nil, S)
		for _, strategy := range exactStrategies[1:] {
			assert.Equal(t, want, models[strategy].Canonicalize(nil, S), strategy)
		}
	}
}

func TestCanonicalizeInPlace(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	S := M.MustParseState("{ owner: Proc_2, mode: [idle, idle, crit], next: [Proc_1, Proc_2, Proc_0] }")
	want := M.Canonicalize(nil, S)
	got := M.Canonicalize(S, S)
	assert.Equal(t, want, got)
	assert.Equal(t, "{ owner: Proc_0, mode: [crit, idle, idle], next: [Proc_1, Proc_2, Proc_0], net: {||} }", M.StateString(got))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, modelDesc := range []string{mutexModel, mixedModel} {
		M := loadModel(t, modelDesc, gosym.HeuristicNormalize)
		for _, S := range randomStates(M, 3, 200) {
			canonic := M.Canonicalize(nil, S)
			require.Equal(t, canonic, M.Canonicalize(nil, canonic), M.StateString(S))
		}
	}
}

func TestNormalizeDiscreteIsInvariant(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicNormalize)
	perms := allPerms(M)

	// Distinct modes settle every process, so no ambiguity is left for the tie-break
	S := M.MustParseState(`{ owner: Proc_1, mode: [crit, idle, trying], next: [Proc_2, Proc_0, Proc_0],
		net: {| {src: Proc_0, m: idle}, {src: Proc_2, m: crit} |} }`)
	canonic := M.Canonicalize(nil, S)
	for _, P := range perms {
		assert.Equal(t, canonic, M.Canonicalize(nil, M.Permute(nil, S, P)), permString(P))
	}
	assert.Equal(t, M.Orbit(S).Min(), canonic)
}

func TestNormalizeIsNotExact(t *testing.T) {
	const model = `
		scalarset D : 4;
		var next : array [D] of D;
	`
	pairsA := "{ next: [D_1, D_0, D_3, D_2] }"
	pairsB := "{ next: [D_2, D_3, D_0, D_1] }"

	M := loadModel(t, model, gosym.HeuristicNormalize)
	A := M.MustParseState(pairsA)
	B := M.MustParseState(pairsB)
	assert.True(t, M.Match(B, A))
	assert.Equal(t, pairsA, M.StateString(M.Canonicalize(nil, A)))
	assert.Equal(t, pairsB, M.StateString(M.Canonicalize(nil, B)))

	for _, strategy := range exactStrategies {
		M := loadModel(t, model, strategy)
		assert.Equal(t, pairsA, M.StateString(M.Canonicalize(nil, M.MustParseState(pairsB))), strategy)
	}
}

func TestSymmetryDisabled(t *testing.T) {
	opts := gosym.DefaultOpts()
	opts.Symmetry = false
	M, err := LoadModel(mutexModel, opts)
	require.NoError(t, err)

	S := M.MustParseState("{ owner: Proc_2, net: {| {src: Proc_2, m: idle}, {src: Proc_0, m: crit} |} }")
	got := M.Canonicalize(nil, S)
	assert.Equal(t, "{ owner: Proc_2, mode: [undefined, undefined, undefined], next: [undefined, undefined, undefined], net: {|{src: Proc_0, m: crit}, {src: Proc_2, m: idle}|} }",
		M.StateString(got))

	image := M.MustParseState("{ owner: Proc_0, net: {| {src: Proc_0, m: idle}, {src: Proc_1, m: crit} |} }")
	assert.False(t, M.Match(image, S))
	assert.True(t, M.Match(S, got))
}

func TestMatch(t *testing.T) {
	for _, strategy := range allStrategies {
		M := loadModel(t, mixedModel, strategy)
		perms := allPerms(M)
		C := M.NewCanonicalizer()
		states := randomStates(M, 5, 40)
		for i, S := range states {
			canonic := C.Canonicalize(nil, S)
			for _, P := range perms {
				require.True(t, C.Match(M.Permute(nil, S, P), canonic), strategy)
			}
			if j := (i + 1) % len(states); M.Orbit(states[j]).Min().Compare(M.Orbit(S).Min()) != 0 {
				require.False(t, C.Match(states[j], S), strategy)
			}
		}
	}
}

func TestMatchWrongSize(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	S := M.MustParseState("{ owner: Proc_1 }")
	assert.False(t, M.Match(S, S[:len(S)-1]))
	assert.Panics(t, func() {
		M.Canonicalize(nil, S[:len(S)-1])
	})
}

func TestPermLimit(t *testing.T) {
	const model = `
		scalarset D : 4;
		var next : array [D] of D;
	`
	opts := gosym.DefaultOpts()
	opts.Strategy = gosym.HeuristicSmallMem
	opts.PermLimit = 1
	M, err := LoadModel(model, opts)
	require.NoError(t, err)

	// With a single candidate the streamed search degenerates to the refinement's tie-break
	S := M.MustParseState("{ next: [D_2, D_3, D_0, D_1] }")
	assert.Equal(t, "{ next: [D_2, D_3, D_0, D_1] }", M.StateString(M.Canonicalize(nil, S)))
}

func TestCanonicalizeAll(t *testing.T) {
	M := loadModel(t, mixedModel, gosym.HeuristicFast)
	states := randomStates(M, 13, 64)
	got, err := M.CanonicalizeAll(context.Background(), states, 4)
	require.NoError(t, err)
	require.Len(t, got, len(states))
	for i, S := range states {
		assert.Equal(t, M.Canonicalize(nil, S), got[i])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = M.CanonicalizeAll(ctx, states, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDropDupes(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	S := M.MustParseState("{ owner: Proc_1, mode: [idle, crit, idle], next: [Proc_2, Proc_0, Proc_1] }")

	src := gosym.NewStateStream()
	go func() {
		for _, P := range allPerms(M) {
			src.PushState(M.Permute(nil, S, P))
		}
		src.PushState(M.MustParseState("{ owner: Proc_1 }"))
		src.Close()
	}()

	assert.Equal(t, 2, M.DropDupes(src).PullAll())
}

// sortedArrayModel has one scalarset-indexed array of free values, whose canonical form is its values sorted.
func sortedArrayModel(n int) string {
	return fmt.Sprintf("scalarset D : %d; var a : array [D] of 0..%d;", n, n)
}

func randomArray(M *Model, seed int64) (S gosym.State, sorted []uint32) {
	rng := rand.New(rand.NewSource(seed))
	v := M.Var("a")
	S = M.NewState()
	for _, kid := range v.Root.Kids {
		code := uint32(rng.Intn(kid.Type.NumValues() + 1))
		setCode(S, kid, code)
		sorted = append(sorted, code)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return S, sorted
}

func TestLargeFreeArray(t *testing.T) {
	for _, strategy := range []gosym.Strategy{gosym.HeuristicFast, gosym.HeuristicSmallMem, gosym.HeuristicNormalize} {
		M := loadModel(t, sortedArrayModel(400), strategy)
		S, sorted := randomArray(M, 29)
		got := M.Canonicalize(nil, S)
		for i, kid := range M.Var("a").Root.Kids {
			require.Equal(t, sorted[i], getCode(got, kid), "%v at %d", strategy, i)
		}
	}
}

func BenchmarkFreeArray(b *testing.B) {
	for _, n := range []int{50, 100, 200, 400, 800} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			opts := gosym.DefaultOpts()
			M, err := LoadModel(sortedArrayModel(n), opts)
			require.NoError(b, err)
			S, _ := randomArray(M, 31)
			C := M.NewCanonicalizer()
			dst := M.NewState()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				dst = C.Canonicalize(dst, S)
			}
		})
	}
}
