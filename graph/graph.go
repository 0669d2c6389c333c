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

// Package graph holds the module dependency graph sheaf consumes, and the
// aggregator that turns it into an artifact's stylesheet text.
package graph

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Adjacency lists the ids a module imports, in import order.
type Adjacency interface {
	Imports(id string) []string
}

// Graph is a mutable Adjacency. It may contain cycles.
type Graph struct {
	mu      sync.RWMutex
	imports map[string][]string
}

func New() *Graph {
	return &Graph{imports: make(map[string][]string)}
}

// AddModule records id with no imports, if it is not already present.
func (g *Graph) AddModule(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.imports[id]; !ok {
		g.imports[id] = nil
	}
}

// AddImport appends to to from's imports. Repeated imports are kept once,
// at their first position.
func (g *Graph) AddImport(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.imports[from], to) {
		g.imports[from] = append(g.imports[from], to)
	}
	if _, ok := g.imports[to]; !ok {
		g.imports[to] = nil
	}
}

// SetImports replaces id's imports.
func (g *Graph) SetImports(id string, imports []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.imports[id] = slices.Clone(imports)
}

// Imports implements Adjacency.
func (g *Graph) Imports(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.imports[id])
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.imports[id]
	return ok
}

// Modules returns every module id, sorted.
func (g *Graph) Modules() []string {
	g.mu.RLock()
	ids := make([]string, 0, len(g.imports))
	for id := range g.imports {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Source supplies registered stylesheet text. *registry.Registry
// implements it.
type Source interface {
	Get(id string) (string, bool)
}

// Aggregate walks g depth-first from root and concatenates the text of
// every registered module it reaches, each followed by a newline, in the
// order modules are first visited. Registered modules are leaves: their
// imports are not followed. Modules that are not reachable from root are
// ignored even if registered. Empty fragments add no line.
//
// It returns the text and the ids of the stylesheet modules included.
func Aggregate(root string, g Adjacency, src Source) (string, []string) {
	var b strings.Builder
	var included []string

	visited := make(map[string]bool)
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		if text, ok := src.Get(id); ok {
			included = append(included, id)
			if text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
			continue
		}

		// Push in reverse so the first import is visited first.
		imports := g.Imports(id)
		for i := len(imports) - 1; i >= 0; i-- {
			if !visited[imports[i]] {
				stack = append(stack, imports[i])
			}
		}
	}
	return b.String(), included
}
