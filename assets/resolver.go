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
package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-sourcemap/sourcemap"
	"go.uber.org/zap"

	"bennypowers.dev/sheaf/css"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/pipeline"
)

// Resolver is the pipeline stage that externalizes url("...") references.
// It always runs last: its output is normalized and carries no source map.
type Resolver struct {
	fs    fs.FileSystem
	store *Store
	log   *zap.Logger
}

// NewResolver creates the stage. Resolved files are interned into store.
func NewResolver(fsys fs.FileSystem, store *Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{fs: fsys, store: store, log: log.Named("assets")}
}

func (r *Resolver) Name() string { return "url" }

type edit struct {
	start, end int
	text       string
}

// Transform rewrites every quoted url() that names an existing file to the
// file's placeholder, then normalizes the stylesheet. References are
// resolved against the directory of the source that wrote them, found
// through in.Map when present, else against the module's directory.
func (r *Resolver) Transform(ctx context.Context, in pipeline.Input, id string) (pipeline.Input, error) {
	refs, err := css.References(in.Code)
	if err != nil {
		return pipeline.Input{}, err
	}

	moduleDir := filepath.Dir(id)
	var consumer *sourcemap.Consumer
	if len(in.Map) > 0 && len(refs) > 0 {
		consumer, err = sourcemap.Parse("", in.Map)
		if err != nil {
			r.log.Warn("ignoring unreadable source map",
				zap.String("module", id),
				zap.Error(err))
			consumer = nil
		}
	}

	var edits []edit
	var watch []string
	for _, ref := range refs {
		target, suffix, ok := splitReference(ref.Value)
		if !ok {
			continue
		}
		dir := originDir(consumer, moduleDir, ref)
		path := target
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, filepath.FromSlash(target))
		}
		path = filepath.Clean(path)

		if !fs.IsRegularFile(r.fs, path) {
			r.log.Warn("asset not found",
				zap.String("path", path),
				zap.String("module", id))
			continue
		}
		asset, err := r.store.Intern(path)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("reading asset %s: %w", path, err)
		}
		edits = append(edits, edit{start: ref.Start, end: ref.End, text: asset.Token + suffix})
		watch = append(watch, path)
	}

	code, err := css.Normalize(splice(in.Code, edits))
	if err != nil {
		return pipeline.Input{}, err
	}
	return pipeline.Input{Code: code, WatchFiles: watch}, nil
}

// splitReference separates the file part of a url() value from any query
// or fragment suffix. It reports false for values that never name a local
// file: data URIs, URLs with a scheme or host, fragment-only and empty
// values.
func splitReference(value string) (target, suffix string, ok bool) {
	v := strings.TrimSpace(value)
	if v == "" || v[0] == '#' || css.IsDataURI(v) || strings.HasPrefix(v, "//") || hasScheme(v) {
		return "", "", false
	}
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v, suffix = v[:i], v[i:]
	}
	if v == "" {
		return "", "", false
	}
	return v, suffix, true
}

// hasScheme reports whether v starts with an RFC 3986 scheme followed by
// ':'. Single letters are treated as Windows drive letters.
func hasScheme(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		case c == ':' && i > 1:
			return true
		default:
			return false
		}
	}
	return false
}

// originDir finds the directory a reference was written in. Sources that
// are absolute or missing fall back to the module's own directory.
func originDir(c *sourcemap.Consumer, moduleDir string, ref css.Reference) string {
	if c == nil {
		return moduleDir
	}
	source, _, _, _, ok := c.Source(ref.Line, ref.Column)
	if !ok || source == "" {
		return moduleDir
	}
	if strings.Contains(source, "://") || filepath.IsAbs(filepath.FromSlash(source)) {
		return moduleDir
	}
	return filepath.Join(moduleDir, filepath.Dir(filepath.FromSlash(source)))
}

func splice(code string, edits []edit) string {
	if len(edits) == 0 {
		return code
	}
	var b strings.Builder
	b.Grow(len(code))
	last := 0
	for _, e := range edits {
		b.WriteString(code[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(code[last:])
	return b.String()
}
