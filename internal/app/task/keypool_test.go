package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tide-labs/tide/internal/domain"
)

func keys(ks ...string) []domain.PrivateKey {
	out := make([]domain.PrivateKey, len(ks))
	for i, k := range ks {
		out[i] = domain.PrivateKey(k)
	}
	return out
}

func TestKeyPoolTakeUntilExhausted(t *testing.T) {
	p := NewKeyPool(keys("a", "b"))

	k1, ok := p.Take()
	require.True(t, ok)
	k2, ok := p.Take()
	require.True(t, ok)
	assert.NotEqual(t, string(k1), string(k2))

	_, ok = p.Take()
	assert.False(t, ok, "third take must fail without blocking")
	assert.Equal(t, 2, p.Leased())

	p.Release(k1)
	k3, ok := p.Take()
	require.True(t, ok)
	assert.Equal(t, string(k1), string(k3))
}

func TestKeyPoolCollapsesDuplicates(t *testing.T) {
	p := NewKeyPool(keys("a", "a", "b"))
	assert.Equal(t, 2, p.Len())
}

func TestKeyPoolReleaseUnknownIsNoop(t *testing.T) {
	p := NewKeyPool(keys("a"))
	p.Release(domain.PrivateKey("zzz"))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 0, p.Leased())
}

func TestKeyPoolEmpty(t *testing.T) {
	p := NewKeyPool(nil)
	_, ok := p.Take()
	assert.False(t, ok)
}

func TestKeyPoolPicksAmongFree(t *testing.T) {
	p := NewKeyPool(keys("a", "b", "c"))
	p.intN = func(n int) int { return n - 1 }

	k, ok := p.Take()
	require.True(t, ok)
	assert.Equal(t, "c", string(k))

	k, ok = p.Take()
	require.True(t, ok)
	assert.Equal(t, "b", string(k))
}

func TestKeyPoolTakeReturnsCopy(t *testing.T) {
	p := NewKeyPool(keys("a"))
	k, ok := p.Take()
	require.True(t, ok)
	k[0] = 'x'
	p.Release(domain.PrivateKey("a"))
	assert.Equal(t, 0, p.Leased())
}
