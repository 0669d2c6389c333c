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

// Package packagejson reads the fields of package.json that decide which
// file a bare import specifier names.
package packagejson

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"bennypowers.dev/sheaf/fs"
)

// ErrNotExported is returned when a subpath is not exported by the package.
var ErrNotExported = errors.New("not exported by package.json")

// DefaultConditions is the export condition priority for browser modules.
var DefaultConditions = []string{"browser", "import", "default"}

// StyleConditions prefers stylesheet exports, for specifiers that name a
// stylesheet.
var StyleConditions = []string{"style", "browser", "import", "default"}

// PackageJSON is the subset of package.json used for resolution.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main,omitempty"`
	Module  string `json:"module,omitempty"`
	// Style is the stylesheet entry some CSS packages declare.
	Style   string `json:"style,omitempty"`
	Exports any    `json:"exports,omitempty"`
}

// Parse parses package.json data.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile parses a package.json file.
func ParseFile(fsys fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Resolve returns the file, relative to the package directory and without
// a leading "./", that subpath names. subpath is "." or "./name".
// conditions defaults to DefaultConditions when empty.
//
// With an exports field, only exported subpaths resolve. Without one, "."
// falls back to style (when "style" is a condition), module, main and then
// index.js, and other subpaths name files directly.
func (pkg *PackageJSON) Resolve(subpath string, conditions []string) (string, error) {
	if len(conditions) == 0 {
		conditions = DefaultConditions
	}
	if pkg.Exports == nil {
		return pkg.resolveLegacy(subpath, conditions), nil
	}

	switch exports := pkg.Exports.(type) {
	case string, []any:
		if subpath != "." {
			return "", ErrNotExported
		}
		return resolveTarget(exports, conditions)
	case map[string]any:
		if !hasSubpathKeys(exports) {
			if subpath != "." {
				return "", ErrNotExported
			}
			return resolveTarget(exports, conditions)
		}
		if target, ok := exports[subpath]; ok {
			return resolveTarget(target, conditions)
		}
		return resolvePattern(exports, subpath, conditions)
	}
	return "", ErrNotExported
}

func (pkg *PackageJSON) resolveLegacy(subpath string, conditions []string) string {
	if subpath != "." {
		return strings.TrimPrefix(subpath, "./")
	}
	for _, cond := range conditions {
		if cond == "style" && pkg.Style != "" {
			return trimDotSlash(pkg.Style)
		}
	}
	switch {
	case pkg.Module != "":
		return trimDotSlash(pkg.Module)
	case pkg.Main != "":
		return trimDotSlash(pkg.Main)
	}
	return "index.js"
}

func hasSubpathKeys(m map[string]any) bool {
	for key := range m {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

// resolvePattern matches subpath against "./prefix/*suffix" keys. The key
// with the longest prefix wins.
func resolvePattern(exports map[string]any, subpath string, conditions []string) (string, error) {
	type candidate struct {
		key, match string
	}
	var candidates []candidate
	for key := range exports {
		star := strings.IndexByte(key, '*')
		if star < 0 || strings.Count(key, "*") != 1 {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if len(subpath) < len(prefix)+len(suffix) ||
			!strings.HasPrefix(subpath, prefix) ||
			!strings.HasSuffix(subpath, suffix) {
			continue
		}
		candidates = append(candidates, candidate{key, subpath[len(prefix) : len(subpath)-len(suffix)]})
	}
	if len(candidates) == 0 {
		return "", ErrNotExported
	}
	sort.Slice(candidates, func(i, j int) bool {
		return strings.IndexByte(candidates[i].key, '*') > strings.IndexByte(candidates[j].key, '*')
	})
	best := candidates[0]
	target, err := resolveTarget(exports[best.key], conditions)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(target, "*", best.match), nil
}

// resolveTarget resolves a string, condition map or fallback array.
func resolveTarget(value any, conditions []string) (string, error) {
	switch v := value.(type) {
	case string:
		return trimDotSlash(v), nil
	case map[string]any:
		for _, cond := range conditions {
			if nested, ok := v[cond]; ok {
				if target, err := resolveTarget(nested, conditions); err == nil {
					return target, nil
				}
			}
		}
	case []any:
		for _, item := range v {
			if target, err := resolveTarget(item, conditions); err == nil {
				return target, nil
			}
		}
	}
	return "", ErrNotExported
}

func trimDotSlash(path string) string {
	return strings.TrimPrefix(path, "./")
}
