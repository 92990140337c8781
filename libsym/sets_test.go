package libsym

import (
	"testing"

	"github.com/2x3systems/gosym/gosym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedSet(t *testing.T) {
	set := NewOrderedSet()
	assert.Nil(t, set.Min())

	S := gosym.State{3, 1}
	assert.True(t, set.TryAdd(S))
	assert.True(t, set.TryAdd(gosym.State{0, 9}))
	assert.False(t, set.TryAdd(gosym.State{3, 1}))

	S[0] = 0 // the set keeps its own copy
	assert.Equal(t, gosym.State{0, 9}, set.Min())
	assert.Equal(t, []gosym.State{{0, 9}, {3, 1}}, set.States())
	assert.Equal(t, 2, set.Len())

	set.Close()
	assert.Equal(t, 0, set.Len())
}

func TestOrbitSize(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)

	// Every process differs, so all 3! images are distinct
	S := M.MustParseState("{ owner: Proc_0, mode: [crit, trying, idle] }")
	orbit := M.Orbit(S)
	assert.Equal(t, 6, orbit.Len())
	assert.Equal(t, "{ owner: Proc_0, mode: [crit, idle, trying], next: [undefined, undefined, undefined], net: {||} }",
		M.StateString(orbit.Min()))

	// Only the owner is distinguished
	orbit = M.Orbit(M.MustParseState("{ owner: Proc_2 }"))
	assert.Equal(t, 3, orbit.Len())

	orbit = M.Orbit(M.NewState())
	require.Equal(t, 1, orbit.Len())
	assert.Equal(t, M.NewState(), orbit.Min())
}

func TestCanonicSet(t *testing.T) {
	for _, strategy := range allStrategies {
		M := loadModel(t, mixedModel, strategy)
		set := NewCanonicSet(M)

		states := randomStates(M, 17, 30)
		orbits := NewOrderedSet()
		for _, S := range states {
			orbits.TryAdd(M.Orbit(S).Min())
			for _, P := range allPerms(M)[:4] {
				set.TryAdd(M.Permute(nil, S, P))
			}
		}
		if strategy.IsExact() {
			assert.Equal(t, orbits.Len(), set.Len(), strategy)
		} else {
			assert.GreaterOrEqual(t, set.Len(), orbits.Len(), strategy)
		}
		set.Close()
		assert.Equal(t, 0, set.Len())
	}
}

func TestKeySet(t *testing.T) {
	var set keySet
	for round := 0; round < 2; round++ {
		added, err := set.add([]byte{1, 2})
		require.NoError(t, err)
		assert.True(t, added)

		added, err = set.add([]byte{1, 2})
		require.NoError(t, err)
		assert.False(t, added)

		added, err = set.add([]byte{2})
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, 2, set.count)

		// A closed set reopens empty on the next add
		set.close()
		assert.Nil(t, set.db)
		assert.Equal(t, 0, set.count)
	}
}

func TestCanonicSetReuse(t *testing.T) {
	M := loadModel(t, mutexModel, gosym.HeuristicFast)
	set := NewCanonicSet(M)
	defer set.Close()

	assert.True(t, set.TryAdd(M.MustParseState("{ owner: Proc_2, mode: [idle, idle, crit] }")))
	assert.False(t, set.TryAdd(M.MustParseState("{ owner: Proc_1, mode: [idle, crit, idle] }")), "same orbit")
	assert.True(t, set.TryAdd(M.MustParseState("{ owner: Proc_1 }")))
	assert.Equal(t, 2, set.Len())

	set.Close()
	assert.True(t, set.TryAdd(M.MustParseState("{ owner: Proc_0, mode: [crit, idle, idle] }")))
	assert.Equal(t, 1, set.Len())
}
