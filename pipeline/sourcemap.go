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
package pipeline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// RelativizeSourceMap rewrites a source map so every source is relative to
// dir, the module's directory, and returns the rewritten map with the
// absolute path of each source. Compilers report sources as file:// URLs
// or absolute paths; stages call this before returning their map.
// Fields other than sources and sourceRoot are preserved.
func RelativizeSourceMap(raw []byte, dir string) ([]byte, []string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("parsing source map: %w", err)
	}

	var sources []string
	if rs, ok := m["sources"]; ok {
		if err := json.Unmarshal(rs, &sources); err != nil {
			return nil, nil, fmt.Errorf("parsing source map sources: %w", err)
		}
	}
	var root string
	if rr, ok := m["sourceRoot"]; ok {
		_ = json.Unmarshal(rr, &root)
	}

	abs := make([]string, 0, len(sources))
	rel := make([]string, len(sources))
	for i, src := range sources {
		p := sourcePath(root, src)
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		abs = append(abs, filepath.Clean(p))
		r, err := filepath.Rel(dir, p)
		if err != nil {
			r = p
		}
		rel[i] = filepath.ToSlash(r)
	}

	var err error
	if m["sources"], err = json.Marshal(rel); err != nil {
		return nil, nil, err
	}
	delete(m, "sourceRoot")
	out, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return out, abs, nil
}

// sourcePath turns a map source into a filesystem path.
func sourcePath(root, src string) string {
	if root != "" && !strings.Contains(src, "://") && !path.IsAbs(src) {
		src = strings.TrimSuffix(root, "/") + "/" + src
	}
	if strings.HasPrefix(src, "file://") {
		if u, err := url.Parse(src); err == nil {
			return filepath.FromSlash(u.Path)
		}
		return filepath.FromSlash(strings.TrimPrefix(src, "file://"))
	}
	return filepath.FromSlash(src)
}
