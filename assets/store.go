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

// Package assets interns files referenced from stylesheets and rewrites
// those references to placeholder tokens until final addresses are known.
package assets

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"bennypowers.dev/sheaf/fs"
)

// Asset is a pending asset: a file referenced by at least one stylesheet
// whose final address is not yet known.
type Asset struct {
	Path  string // absolute, cleaned
	Data  []byte
	Token string // placeholder written into stylesheet text
}

const (
	tokenPrefix = "__SHEAF_ASSET__"
	tokenSuffix = "__"
)

// Placeholder returns the token that stands in for the asset at path.
func Placeholder(path string) string {
	return tokenPrefix + filepath.ToSlash(filepath.Clean(path)) + tokenSuffix
}

// storeEntry coordinates concurrent loads of one path.
type storeEntry struct {
	asset *Asset
	err   error
	once  sync.Once
}

// Store holds the pending assets of one build pass. Each path is read at
// most once, however many modules reference it concurrently.
type Store struct {
	fs fs.FileSystem

	mu      sync.RWMutex
	assets  map[string]*Asset
	loading sync.Map // map[string]*storeEntry for in-flight loads
}

// NewStore creates an empty store reading through fsys.
func NewStore(fsys fs.FileSystem) *Store {
	return &Store{
		fs:     fsys,
		assets: make(map[string]*Asset),
	}
}

// Intern returns the asset for path, reading the file on first use.
func (s *Store) Intern(path string) (*Asset, error) {
	path = filepath.Clean(path)

	s.mu.RLock()
	if a, ok := s.assets[path]; ok {
		s.mu.RUnlock()
		return a, nil
	}
	s.mu.RUnlock()

	actual, _ := s.loading.LoadOrStore(path, &storeEntry{})
	entry := actual.(*storeEntry)

	entry.once.Do(func() {
		data, err := s.fs.ReadFile(path)
		if err != nil {
			entry.err = err
			return
		}
		entry.asset = &Asset{Path: path, Data: data, Token: Placeholder(path)}
		s.mu.Lock()
		s.assets[path] = entry.asset
		s.mu.Unlock()
	})

	return entry.asset, entry.err
}

// Get returns an interned asset without loading it.
func (s *Store) Get(path string) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[filepath.Clean(path)]
	return a, ok
}

// Invalidate drops path so the next Intern re-reads it. It reports whether
// the path was interned.
func (s *Store) Invalidate(path string) bool {
	path = filepath.Clean(path)
	s.mu.Lock()
	_, ok := s.assets[path]
	delete(s.assets, path)
	s.mu.Unlock()
	s.loading.Delete(path)
	return ok
}

// Reset drops every asset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.assets = make(map[string]*Asset)
	s.mu.Unlock()
	s.loading.Clear()
}

// Assets returns every interned asset, sorted by path.
func (s *Store) Assets() []*Asset {
	s.mu.RLock()
	list := make([]*Asset, 0, len(s.assets))
	for _, a := range s.assets {
		list = append(list, a)
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	return list
}

// Referenced returns the interned assets whose placeholder occurs in text,
// sorted by path.
func (s *Store) Referenced(text string) []*Asset {
	var list []*Asset
	for _, a := range s.Assets() {
		if strings.Contains(text, a.Token) {
			list = append(list, a)
		}
	}
	return list
}

// Substitute replaces every occurrence of each asset's placeholder in text
// with its address. addresses is keyed by asset path.
func Substitute(text string, assets []*Asset, addresses map[string]string) string {
	list := make([]*Asset, 0, len(assets))
	for _, a := range assets {
		if _, ok := addresses[a.Path]; ok {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		return text
	}
	// Longest token first, so a path that prefixes another never matches
	// inside the longer token.
	sort.SliceStable(list, func(i, j int) bool { return len(list[i].Token) > len(list[j].Token) })

	pairs := make([]string, 0, 2*len(list))
	for _, a := range list {
		pairs = append(pairs, a.Token, addresses[a.Path])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
