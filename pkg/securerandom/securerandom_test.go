package securerandom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := Int(5, 10)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 10)
	}
}

func TestIntRejectsEmptyRange(t *testing.T) {
	_, err := Int(10, 10)
	assert.Error(t, err)
	_, err = Int(10, 5)
	assert.Error(t, err)
}

func TestPermIsAPermutation(t *testing.T) {
	perm, err := Perm(20)
	require.NoError(t, err)
	require.Len(t, perm, 20)

	seen := make(map[int]bool)
	for _, v := range perm {
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 20)
		assert.False(t, seen[v], "value %d repeated", v)
		seen[v] = true
	}
}

func TestPermRejectsNonPositive(t *testing.T) {
	_, err := Perm(0)
	assert.Error(t, err)
}

func TestShufflePreservesElements(t *testing.T) {
	s := []string{"a", "b", "c", "d", "e"}
	err := Shuffle(s, func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, s)
}

func TestShuffleHandlesShortSlices(t *testing.T) {
	s := []int{1}
	require.NoError(t, Shuffle(s, func(i, j int) {
		s[i], s[j] = s[j], s[i]
	}))
	assert.Equal(t, []int{1}, s)
}
