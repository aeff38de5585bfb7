// Package registry holds every body the watcher knows about, grouped by where
// it came from. Static groups (sun, moon, planets, stars) are added once;
// catalog groups are replaced wholesale on every successful refresh.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/star/skywatch/internal/ephem"
)

// Registry is safe for concurrent use. Reads see a consistent snapshot of
// the groups as of the last replace.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	groups map[string][]ephem.Target
	index  map[string]located
	logger *slog.Logger
}

type located struct {
	target ephem.Target
	group  string
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		groups: make(map[string][]ephem.Target),
		index:  make(map[string]located),
		logger: logger.With("component", "registry"),
	}
}

// ReplaceGroup sets the members of group, discarding whatever it held. A
// name already provided by an earlier group keeps that group's body.
func (r *Registry) ReplaceGroup(group string, targets []ephem.Target) {
	members := make([]ephem.Target, len(targets))
	copy(members, targets)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[group]; !ok {
		r.order = append(r.order, group)
	}
	r.groups[group] = members
	r.reindex()

	r.logger.Debug("group replaced", "group", group, "bodies", len(members))
}

// reindex rebuilds the name index in group order. Caller holds mu.
func (r *Registry) reindex() {
	index := make(map[string]located, len(r.index))
	for _, g := range r.order {
		for _, t := range r.groups[g] {
			if prev, dup := index[t.Name()]; dup {
				if prev.group != g {
					r.logger.Debug("name shadowed by earlier group", "name", t.Name(), "group", g, "kept", prev.group)
				}
				continue
			}
			index[t.Name()] = located{target: t, group: g}
		}
	}
	r.index = index
}

// Get looks a body up by name.
func (r *Registry) Get(name string) (ephem.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.index[name]
	return l.target, ok
}

// GroupOf reports which group provides name.
func (r *Registry) GroupOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.index[name]
	return l.group, ok
}

// Group returns a copy of one group's members.
func (r *Registry) Group(group string) []ephem.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.groups[group]
	out := make([]ephem.Target, len(members))
	copy(out, members)
	return out
}

// Groups lists group names in the order they were first added.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns every known body name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.index))
	for n := range r.index {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len is the number of distinct names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// Select resolves the wanted names, in order. Names not currently in the
// registry are returned in missing.
func (r *Registry) Select(names []string) (found []ephem.Target, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if l, ok := r.index[n]; ok {
			found = append(found, l.target)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}
