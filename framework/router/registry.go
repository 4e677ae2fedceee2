// Package router holds the route registry: a mapping from route key to the
// view and mount callback rendered for that key.
package router

import (
	"sort"
	"sync"

	"learnshell/framework"
)

// Definition is what the engine renders for a route key.
type Definition struct {
	View  framework.ViewFunc
	Mount framework.MountFunc
}

// Registry maps route keys to definitions. Registering a key that already
// exists replaces the earlier definition.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Definition)}
}

// Register stores view and mount under key. mount may be nil.
func (r *Registry) Register(key string, view framework.ViewFunc, mount framework.MountFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[key] = Definition{View: view, Mount: mount}
	return r
}

func (r *Registry) Lookup(key string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.routes[key]
	return def, ok
}

// Keys returns the registered keys in lexical order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.routes))
	for key := range r.routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
