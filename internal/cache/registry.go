package cache

import (
	"strings"
	"sync"
)

// Registry tracks which cache keys belong to which logical resource. It
// maintains a map from resource names to the set of live keys under that
// resource, and a reverse map from key back to resource. Prefix invalidation
// resolves affected keys through this index instead of scanning the whole
// entry map.
type Registry struct {
	resourceToKeys map[string]map[string]bool
	keyToResource  map[string]string

	mu sync.RWMutex // Protects access to both maps
}

// NewRegistry creates and initializes a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		resourceToKeys: make(map[string]map[string]bool),
		keyToResource:  make(map[string]string),
	}
}

// Register records a cache key as belonging to a resource. Called whenever a
// key is materialized in the cache. Safe for concurrent use.
func (r *Registry) Register(resource, key string) {
	if resource == "" || key == "" {
		return // Ignore invalid input
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resourceToKeys[resource]; !exists {
		r.resourceToKeys[resource] = make(map[string]bool)
	}
	r.resourceToKeys[resource][key] = true
	r.keyToResource[key] = resource
}

// Unregister removes a key from the index (e.g. after retention eviction).
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resource, ok := r.keyToResource[key]
	if !ok {
		return
	}
	delete(r.keyToResource, key)
	if keys, ok := r.resourceToKeys[resource]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.resourceToKeys, resource)
		}
	}
}

// KeysForResource returns every live key registered under an exact resource
// name.
func (r *Registry) KeysForResource(resource string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.resourceToKeys[resource]))
	for k := range r.resourceToKeys[resource] {
		keys = append(keys, k)
	}
	return keys
}

// KeysForPrefix returns every live key whose resource name starts with the
// given prefix (e.g. "discover-profiles" matches both the optimized and the
// fallback discovery resources).
func (r *Registry) KeysForPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for resource, set := range r.resourceToKeys {
		if !strings.HasPrefix(resource, prefix) {
			continue
		}
		for k := range set {
			keys = append(keys, k)
		}
	}
	return keys
}
