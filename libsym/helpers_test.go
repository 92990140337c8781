package libsym

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/2x3systems/gosym/gosym"
	"github.com/stretchr/testify/require"
)

const mutexModel = `
-- a token ring with a message pool
scalarset Proc : 3;
enum Mode { idle, trying, crit };
type Msg : record { src : Proc; m : Mode; };

var owner : Proc;
var mode  : array [Proc] of Mode;
var next  : array [Proc] of Proc;
var net   : multiset [3] of Msg;
`

const mixedModel = `
scalarset A : 3;
scalarset B : 2;

var adj   : array [A] of array [A] of boolean;
var x     : array [A] of B;
var y     : array [B] of A;
var cnt   : 0..2;
var pairs : multiset [2] of record { a : A; b : B; };
var flag  : array [B] of boolean;
`

var exactStrategies = []gosym.Strategy{
	gosym.Exhaustive,
	gosym.HeuristicFast,
	gosym.HeuristicSmallMem,
}

var allStrategies = []gosym.Strategy{
	gosym.Exhaustive,
	gosym.HeuristicFast,
	gosym.HeuristicSmallMem,
	gosym.HeuristicNormalize,
}

func loadModel(t *testing.T, modelDesc string, strategy gosym.Strategy) *Model {
	t.Helper()
	opts := gosym.DefaultOpts()
	opts.Strategy = strategy
	M, err := LoadModel(modelDesc, opts)
	require.NoError(t, err)
	return M
}

// randomStates returns count states with every leaf drawn uniformly (undefined included) and multisets sorted.
func randomStates(M *Model, seed int64, count int) []gosym.State {
	rng := rand.New(rand.NewSource(seed))
	states := make([]gosym.State, count)
	for i := range states {
		S := make(gosym.State, M.StateSize)
		for _, v := range M.Vars {
			fillRandom(rng, v.Root, S)
		}
		M.SortMultisets(S)
		states[i] = S
	}
	return states
}

func fillRandom(rng *rand.Rand, n *Node, S []byte) {
	if n.Type.IsLeaf() {
		setCode(S, n, uint32(rng.Intn(n.Type.NumValues()+1)))
		return
	}
	for _, kid := range n.Kids {
		if n.Type.Kind == KindMultiset {
			if rng.Intn(3) == 0 {
				continue
			}
			S[kid.Offset-1] = 1
		}
		fillRandom(rng, kid, S)
	}
}

// allPerms lists every permutation of M's group.
func allPerms(M *Model) []Perm {
	var perms []Perm
	M.ForEachPermutation(func(P Perm) bool {
		Pi := make(Perm, len(P))
		for d := range P {
			Pi[d] = append([]int(nil), P[d]...)
		}
		perms = append(perms, Pi)
		return true
	})
	return perms
}

func permString(P Perm) string {
	parts := make([]string, len(P))
	for i, Pi := range P {
		parts[i] = fmt.Sprint(Pi)
	}
	return strings.Join(parts, " ")
}
