package task

import (
	"math/rand/v2"
	"sort"

	"github.com/tide-labs/tide/internal/domain"
)

// ─── Key Pool ───────────────────────────────────────────────────────────────
// One entry per distinct key of the wallet group; true = leased.
// A key is held by at most one worker at a time.

// KeyPool tracks which wallet keys of a task are leased. It does no locking
// of its own; the owning Task serializes access under its mutex.
type KeyPool struct {
	inUse map[string]bool
	intN  func(n int) int
}

// NewKeyPool builds a pool with every key free. Duplicate keys collapse.
func NewKeyPool(keys []domain.PrivateKey) *KeyPool {
	p := &KeyPool{inUse: make(map[string]bool, len(keys)), intN: rand.IntN}
	for _, k := range keys {
		p.inUse[string(k)] = false
	}
	return p
}

// Take leases a free key chosen uniformly at random. It never blocks:
// ok is false when every key is busy.
func (p *KeyPool) Take() (domain.PrivateKey, bool) {
	free := make([]string, 0, len(p.inUse))
	for k, busy := range p.inUse {
		if !busy {
			free = append(free, k)
		}
	}
	if len(free) == 0 {
		return nil, false
	}
	sort.Strings(free)
	k := free[p.intN(len(free))]
	p.inUse[k] = true
	return domain.PrivateKey(k), true
}

// Release returns key to the pool. Unknown keys are ignored.
func (p *KeyPool) Release(key domain.PrivateKey) {
	if _, ok := p.inUse[string(key)]; ok {
		p.inUse[string(key)] = false
	}
}

// Len is the number of distinct keys.
func (p *KeyPool) Len() int { return len(p.inUse) }

// Leased is the number of keys currently held.
func (p *KeyPool) Leased() int {
	n := 0
	for _, busy := range p.inUse {
		if busy {
			n++
		}
	}
	return n
}
