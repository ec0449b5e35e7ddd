package memcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedRingSelector_NoServers(t *testing.T) {
	s := NewWeightedRingSelector()

	_, ok := s.Select("anykey")
	assert.False(t, ok)

	_, ok = s.SelectIndex(42)
	assert.False(t, ok)
}

func TestWeightedRingSelector_Consistency(t *testing.T) {
	s := NewWeightedRingSelector()
	s.SetServers(Servers("a:11211", "b:11211", "c:11211"))

	first, ok := s.Select("hot-key")
	require.True(t, ok)

	for range 20 {
		addr, ok := s.Select("hot-key")
		require.True(t, ok)
		assert.Equal(t, first, addr)
	}
}

func TestWeightedRingSelector_Weighting(t *testing.T) {
	s := NewWeightedRingSelector()
	s.SetServers([]ServerEntry{
		{Addr: "heavy:11211", Weight: 9},
		{Addr: "light:11211", Weight: 1},
	})

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		addr, ok := s.Select(keyFor(i))
		require.True(t, ok)
		counts[addr]++
	}

	assert.Greater(t, counts["heavy:11211"], counts["light:11211"])
}

func TestWeightedRingSelector_ZeroOrNegativeWeightDefaultsToOne(t *testing.T) {
	s := NewWeightedRingSelector()
	s.SetServers([]ServerEntry{
		{Addr: "a:11211", Weight: 0},
		{Addr: "b:11211", Weight: -5},
	})

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		addr, ok := s.Select(keyFor(i))
		require.True(t, ok)
		seen[addr] = true
	}
	assert.True(t, seen["a:11211"])
	assert.True(t, seen["b:11211"])
}

func TestWeightedRingSelector_SelectIndexWrapsModRingLength(t *testing.T) {
	s := NewWeightedRingSelector()
	s.SetServers(Servers("a:11211", "b:11211"))

	addr0, ok := s.SelectIndex(0)
	require.True(t, ok)
	addr2, ok := s.SelectIndex(2)
	require.True(t, ok)
	assert.Equal(t, addr0, addr2)
}

func TestJumpSelector_NoServers(t *testing.T) {
	s := NewJumpSelector()

	_, ok := s.Select("anykey")
	assert.False(t, ok)
}

func TestJumpSelector_Consistency(t *testing.T) {
	s := NewJumpSelector()
	s.SetServers(Servers("a:11211", "b:11211", "c:11211"))

	first, ok := s.Select("stable-key")
	require.True(t, ok)

	for range 20 {
		addr, ok := s.Select("stable-key")
		require.True(t, ok)
		assert.Equal(t, first, addr)
	}
}

func TestJumpSelector_StableUnderServerOrderChange(t *testing.T) {
	s1 := NewJumpSelector()
	s1.SetServers(Servers("a:11211", "b:11211", "c:11211"))

	s2 := NewJumpSelector()
	s2.SetServers(Servers("c:11211", "a:11211", "b:11211"))

	for i := 0; i < 50; i++ {
		key := keyFor(i)
		addr1, ok1 := s1.Select(key)
		addr2, ok2 := s2.Select(key)
		require.True(t, ok1)
		require.True(t, ok2)
		assert.Equal(t, addr1, addr2, "selector result should not depend on Config.Servers order")
	}
}

func TestJumpSelector_MinimalMovementOnServerAdd(t *testing.T) {
	before := NewJumpSelector()
	before.SetServers(Servers("a:11211", "b:11211", "c:11211"))

	after := NewJumpSelector()
	after.SetServers(Servers("a:11211", "b:11211", "c:11211", "d:11211"))

	moved := 0
	const total = 2000
	for i := 0; i < total; i++ {
		key := keyFor(i)
		a, _ := before.Select(key)
		b, _ := after.Select(key)
		if a != b {
			moved++
		}
	}

	// Jump consistent hash moves roughly 1/(n+1) of keys when growing from
	// n to n+1 buckets; with n=3 that's ~25%. Assert it stays well clear of
	// a full reshuffle.
	assert.Less(t, moved, total/2)
}

func keyFor(i int) string {
	return "key-" + string(rune('a'+i%26)) + string(rune(i))
}
