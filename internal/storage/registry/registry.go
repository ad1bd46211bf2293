package registry

import (
	"sort"
	"sync"

	"github.com/jgivc/modserver/internal/entity"
)

// Registry holds the published state of every known branch. A known branch may
// have no data yet, which is different from an unknown branch.
type Registry struct {
	mu       sync.RWMutex
	branches map[string]*entity.BranchData
}

func New() *Registry {
	return &Registry{
		branches: make(map[string]*entity.BranchData),
	}
}

// Names returns the known branch names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.branches))
	for name := range r.branches {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Get returns the branch data and whether the branch is known at all. Data may
// be nil for a known branch.
func (r *Registry) Get(name string) (*entity.BranchData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.branches[name]

	return data, exists
}

// Set publishes data for name. Published values are never modified afterwards,
// readers may keep them.
func (r *Registry) Set(name string, data *entity.BranchData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.branches[name] = data
}

// Register makes name known without data, unless it is known already.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.branches[name]; !exists {
		r.branches[name] = nil
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.branches)
}
