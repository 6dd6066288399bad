package post

import (
	"context"
	"math/big"
	"sort"
	"sync"
)

// ProbeRange enumerates a fixed, inclusive id range. Posts outside the range
// are invisible; it exists for contracts that cannot be log-scanned.
type ProbeRange struct {
	From uint64
	To   uint64
}

func (r ProbeRange) PostIDs(ctx context.Context) ([]*big.Int, error) {
	if r.To < r.From {
		return nil, nil
	}
	ids := make([]*big.Int, 0, r.To-r.From+1)
	for i := r.From; i <= r.To; i++ {
		ids = append(ids, new(big.Int).SetUint64(i))
	}
	return ids, nil
}

// Registry is the in-memory index of known post ids, fed by PostCreated logs.
// It lives for one session and is cleared on reset.
type Registry struct {
	mu  sync.RWMutex
	ids map[string]*big.Int
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]*big.Int)}
}

// Add records ids; duplicates are ignored. It returns how many were new.
func (r *Registry) Add(ids ...*big.Int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, id := range ids {
		if id == nil {
			continue
		}
		key := id.String()
		if _, ok := r.ids[key]; ok {
			continue
		}
		r.ids[key] = new(big.Int).Set(id)
		added++
	}
	return added
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

func (r *Registry) Reset() {
	r.mu.Lock()
	r.ids = make(map[string]*big.Int)
	r.mu.Unlock()
}

// PostIDs returns the known ids in ascending order.
func (r *Registry) PostIDs(ctx context.Context) ([]*big.Int, error) {
	r.mu.RLock()
	ids := make([]*big.Int, 0, len(r.ids))
	for _, id := range r.ids {
		ids = append(ids, new(big.Int).Set(id))
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids, nil
}
