/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package registry maps module ids to their transformed stylesheet text.
package registry

import (
	"sort"
	"sync"
)

// Registry is a last-write-wins map from module id to transformed text.
// Presence in the registry is what makes a module a stylesheet module for
// aggregation. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]string
}

func New() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Set records the transformed text for id, replacing any earlier entry.
func (r *Registry) Set(id, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = text
}

// Get returns the text registered for id.
func (r *Registry) Get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.entries[id]
	return text, ok
}

// Delete removes id and reports whether it was registered.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// Reset removes every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]string)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered module ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
