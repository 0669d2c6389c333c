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
package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"bennypowers.dev/sheaf/fs"
)

// ManifestFileName is written to the output directory by sheaf build.
const ManifestFileName = "manifest.json"

// ManifestEntry records the artifact built for one entry point.
type ManifestEntry struct {
	Stylesheet string         `json:"stylesheet"`
	URL        string         `json:"url"`
	Assets     []EmittedAsset `json:"assets,omitempty"`
	Modules    []string       `json:"modules,omitempty"`
}

// Manifest maps entry points (relative to the package root) to artifacts.
type Manifest struct {
	Entries map[string]ManifestEntry `json:"entries"`
}

func NewManifest() *Manifest {
	return &Manifest{Entries: make(map[string]ManifestEntry)}
}

// Add records res for entry.
func (m *Manifest) Add(entry string, res Result, modules []string) {
	m.Entries[filepath.ToSlash(entry)] = ManifestEntry{
		Stylesheet: res.Address,
		URL:        res.URL,
		Assets:     res.Assets,
		Modules:    modules,
	}
}

// URLs returns every stylesheet URL in the manifest, sorted and without
// duplicates.
func (m *Manifest) URLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, e := range m.Entries {
		if !seen[e.URL] {
			seen[e.URL] = true
			urls = append(urls, e.URL)
		}
	}
	sort.Strings(urls)
	return urls
}

// Write stores the manifest as outDir/manifest.json.
func (m *Manifest) Write(fsys fs.FileSystem, outDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	return fsys.WriteFile(filepath.Join(outDir, ManifestFileName), append(data, '\n'), 0644)
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(fsys fs.FileSystem, path string) (*Manifest, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}
