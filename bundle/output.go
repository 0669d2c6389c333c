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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"bennypowers.dev/sheaf/fs"
)

// Output turns emitted files into addressable outputs.
type Output interface {
	// Emit stores source under a name derived from name and returns its
	// address: a slash-separated path relative to the output root.
	Emit(ctx context.Context, name string, source []byte) (string, error)
}

// Placer is implemented by outputs that know, before emission, which
// directory a name will be placed in. The emitter uses it to write asset
// URLs relative to the stylesheet.
type Placer interface {
	Dir(name string) string
}

// Naming selects how emitted file names are derived.
type Naming int

const (
	// HashAll appends a content hash to every emitted name.
	HashAll Naming = iota
	// HashAssets keeps stylesheet names stable so a live page can keep
	// matching its link elements across rebuilds. Other files are hashed.
	HashAssets
)

// ContentHash is the first 8 hex digits of the sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// FileName derives the emitted file name for name.
func FileName(name string, source []byte, naming Naming) string {
	base := path.Base(filepath.ToSlash(name))
	ext := path.Ext(base)
	if naming == HashAssets && strings.EqualFold(ext, ".css") {
		return base
	}
	return strings.TrimSuffix(base, ext) + "-" + ContentHash(source) + ext
}

// FileOutput writes emitted files to <outDir>/<assetsDir>/.
type FileOutput struct {
	fs        fs.FileSystem
	outDir    string
	assetsDir string
	naming    Naming
}

func NewFileOutput(fsys fs.FileSystem, outDir, assetsDir string, naming Naming) *FileOutput {
	return &FileOutput{
		fs:        fsys,
		outDir:    outDir,
		assetsDir: filepath.ToSlash(assetsDir),
		naming:    naming,
	}
}

// Dir implements Placer.
func (o *FileOutput) Dir(name string) string {
	return path.Clean(o.assetsDir)
}

// Emit implements Output. A hashed file that already exists is not
// rewritten.
func (o *FileOutput) Emit(ctx context.Context, name string, source []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := path.Join(o.assetsDir, FileName(name, source, o.naming))
	full := filepath.Join(o.outDir, filepath.FromSlash(addr))

	if existing, err := o.fs.ReadFile(full); err == nil && bytes.Equal(existing, source) {
		return addr, nil
	}
	if err := o.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	if err := o.fs.WriteFile(full, source, 0644); err != nil {
		return "", err
	}
	return addr, nil
}

// EmittedFile is a file recorded by MemoryOutput.
type EmittedFile struct {
	Name    string
	Address string
	Source  []byte
}

// MemoryOutput keeps emitted files in memory, in emission order.
type MemoryOutput struct {
	AssetsDir string
	Naming    Naming

	mu    sync.Mutex
	files []EmittedFile
}

// Dir implements Placer.
func (o *MemoryOutput) Dir(name string) string {
	if o.AssetsDir == "" {
		return "."
	}
	return path.Clean(o.AssetsDir)
}

// Emit implements Output.
func (o *MemoryOutput) Emit(ctx context.Context, name string, source []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := path.Join(o.AssetsDir, FileName(name, source, o.Naming))
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, EmittedFile{
		Name:    name,
		Address: addr,
		Source:  bytes.Clone(source),
	})
	return addr, nil
}

// Files returns the emitted files in emission order.
func (o *MemoryOutput) Files() []EmittedFile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]EmittedFile(nil), o.files...)
}

// Lookup returns the most recent file emitted at address.
func (o *MemoryOutput) Lookup(address string) (EmittedFile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.files) - 1; i >= 0; i-- {
		if o.files[i].Address == address {
			return o.files[i], true
		}
	}
	return EmittedFile{}, false
}
