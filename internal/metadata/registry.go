package metadata

import (
	"sort"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	version   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
	}
}

// GetTemplate returns the template with the given id, or nil.
func (r *Registry) GetTemplate(id string) *Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[id]
}

// Lookup returns the template with the given id together with the registry
// version it belongs to, read under one lock.
func (r *Registry) Lookup(id string) (*Template, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[id], r.version
}

// AllTemplates returns all registered templates ordered by id.
func (r *Registry) AllTemplates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	templates := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// Version increases on every Load. Caches keyed on it go stale after a reload.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Load replaces all templates in the registry.
// Called during startup and after admin mutations.
func (r *Registry) Load(templates []*Template) {
	next := make(map[string]*Template, len(templates))
	for _, t := range templates {
		if t == nil || t.ID == "" {
			continue
		}
		next[t.ID] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = next
	r.version++
}
