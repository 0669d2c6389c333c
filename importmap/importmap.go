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

// Package importmap resolves bare specifiers through the import maps an
// HTML page declares.
// See https://developer.mozilla.org/en-US/docs/Web/HTML/Element/script/type/importmap
package importmap

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// ImportMap is the part of an import map that decides module addresses.
// Integrity metadata does not affect which file a specifier names and is
// not kept.
type ImportMap struct {
	// Imports maps specifiers, or prefixes ending in "/", to addresses.
	Imports map[string]string `json:"imports,omitempty"`

	// Scopes maps referrer URL prefixes to imports that apply to
	// modules under them.
	Scopes map[string]map[string]string `json:"scopes,omitempty"`
}

// Parse parses the JSON text of an importmap script.
func Parse(data []byte) (*ImportMap, error) {
	var im ImportMap
	if err := json.Unmarshal(data, &im); err != nil {
		return nil, err
	}
	return &im, nil
}

// Merge combines im with a later map on the same page. Entries of other
// win. Neither input is modified.
func (im *ImportMap) Merge(other *ImportMap) *ImportMap {
	result := &ImportMap{
		Imports: make(map[string]string),
		Scopes:  make(map[string]map[string]string),
	}
	for _, m := range []*ImportMap{im, other} {
		if m == nil {
			continue
		}
		maps.Copy(result.Imports, m.Imports)
		for scope, imports := range m.Scopes {
			if result.Scopes[scope] == nil {
				result.Scopes[scope] = make(map[string]string, len(imports))
			}
			maps.Copy(result.Scopes[scope], imports)
		}
	}
	return result
}

// Resolve maps specifier, imported by the module at the URL path referrer,
// to an address. Scopes whose prefix matches referrer are tried first,
// most specific first, then the top-level imports. ok is false when no
// entry matches.
func (im *ImportMap) Resolve(specifier, referrer string) (address string, ok bool) {
	if im == nil {
		return "", false
	}
	for _, scope := range longestFirst(im.Scopes, func(prefix string) bool {
		return prefix == referrer || (strings.HasSuffix(prefix, "/") && strings.HasPrefix(referrer, prefix))
	}) {
		if address, ok := match(im.Scopes[scope], specifier); ok {
			return address, true
		}
	}
	return match(im.Imports, specifier)
}

// match looks up specifier exactly, then by the longest key ending in "/"
// that prefixes it.
func match(imports map[string]string, specifier string) (string, bool) {
	if address, ok := imports[specifier]; ok {
		return address, true
	}
	keys := longestFirst(imports, func(key string) bool {
		return strings.HasSuffix(key, "/") && strings.HasPrefix(specifier, key)
	})
	if len(keys) == 0 {
		return "", false
	}
	target := imports[keys[0]]
	if !strings.HasSuffix(target, "/") {
		return "", false
	}
	return target + strings.TrimPrefix(specifier, keys[0]), true
}

// longestFirst returns the keys of m accepted by keep, longest first.
func longestFirst[V any](m map[string]V, keep func(string) bool) []string {
	var keys []string
	for key := range m {
		if keep(key) {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return keys
}
