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

// Package build ties the stylesheet pipeline, module registry, asset store
// and emitter together into the two calls a host bundler makes: transform
// each module as it is loaded, then render one artifact per entry.
package build

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bennypowers.dev/sheaf/assets"
	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/graph"
	"bennypowers.dev/sheaf/hot"
	"bennypowers.dev/sheaf/pipeline"
	"bennypowers.dev/sheaf/registry"
)

// Options configure a Session.
type Options struct {
	// FileName is the name the artifact is emitted under.
	FileName string
	// Extensions of module ids the session handles, dot included.
	// Matching is case-sensitive.
	Extensions []string
	// Stages run before asset resolution, in order.
	Stages []pipeline.Spec
	// Hot makes Transform return update-acceptance code and RenderArtifact
	// return runtime code.
	Hot    bool
	HotAPI hot.API
	// ResolveURLs enables the asset reference resolver as the final stage.
	ResolveURLs bool
	// PublicPath prefixes emitted addresses.
	PublicPath string
	// Exclude lists doublestar patterns of module ids never handled.
	Exclude []string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		FileName:    "styles.css",
		Extensions:  []string{".css", ".scss", ".less"},
		HotAPI:      hot.APIModule,
		ResolveURLs: true,
	}
}

// TransformResult is what the host receives for a handled module.
type TransformResult struct {
	// Code replaces the module's source in the host's output: empty, or
	// hot-acceptance code.
	Code       string
	WatchFiles []string
}

// Artifact is a rendered stylesheet artifact.
type Artifact struct {
	Address string
	URL     string
	Text    string
	Assets  []bundle.EmittedAsset
	// Modules are the stylesheet modules aggregated, in output order.
	Modules []string
	// RuntimeCode is set when hot replacement is enabled; the host adds it
	// to the entry's script output.
	RuntimeCode string
}

// Session holds the state of one build: the registry of transformed
// modules and the store of pending assets. It is safe for concurrent use.
type Session struct {
	opts     Options
	fs       fs.FileSystem
	log      *zap.Logger
	pipeline *pipeline.Pipeline
	store    *assets.Store
	registry *registry.Registry

	mu          sync.RWMutex
	watchFiles  map[string][]string // module id -> watch files
	hashWarning sync.Once
}

// NewSession resolves opts.Stages against builtins once. A nil logger
// discards output.
func NewSession(opts Options, fsys fs.FileSystem, log *zap.Logger, builtins pipeline.Builtins) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if opts.FileName == "" {
		opts.FileName = DefaultOptions().FileName
	}

	p, err := pipeline.Build(opts.Stages, builtins)
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:       opts,
		fs:         fsys,
		log:        log.Named("build"),
		store:      assets.NewStore(fsys),
		registry:   registry.New(),
		watchFiles: make(map[string][]string),
	}
	if opts.ResolveURLs {
		p = p.Append(assets.NewResolver(fsys, s.store, log))
	}
	s.pipeline = p
	return s, nil
}

// Options returns the session's options.
func (s *Session) Options() Options {
	return s.opts
}

// Stages returns the names of the resolved stages in run order.
func (s *Session) Stages() []string {
	return s.pipeline.Stages()
}

// Handles reports whether id is a stylesheet module this session
// transforms.
func (s *Session) Handles(id string) bool {
	if !slices.Contains(s.opts.Extensions, filepath.Ext(id)) {
		return false
	}
	slashed := filepath.ToSlash(id)
	for _, pattern := range s.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return false
		}
	}
	return true
}

// Transform runs the pipeline over one module and registers the result.
// It returns nil for modules the session does not handle. On failure the
// module's previous registration, if any, is kept.
func (s *Session) Transform(ctx context.Context, code, id string) (*TransformResult, error) {
	if !s.Handles(id) {
		return nil, nil
	}

	out, err := s.pipeline.Run(ctx, code, id)
	if err != nil {
		return nil, err
	}

	s.registry.Set(id, out.Code)
	s.mu.Lock()
	s.watchFiles[id] = slices.Clone(out.WatchFiles)
	s.mu.Unlock()

	s.log.Debug("transformed",
		zap.String("module", id),
		zap.Int("watchFiles", len(out.WatchFiles)))

	res := &TransformResult{WatchFiles: out.WatchFiles}
	if s.opts.Hot {
		res.Code = hot.ModuleCode(s.opts.HotAPI)
	}
	return res, nil
}

// TransformAll reads and transforms ids with at most jobs running at once
// (unlimited when jobs < 1). Every module is attempted; the failures are
// returned joined, in id order.
func (s *Session) TransformAll(ctx context.Context, ids []string, jobs int) (map[string]*TransformResult, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]*TransformResult, len(ids))
		failed  = make(map[string]error)
	)

	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, id := range ids {
		g.Go(func() error {
			res, err := s.transformFile(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
			} else if res != nil {
				results[id] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return results, nil
	}
	keys := make([]string, 0, len(failed))
	for id := range failed {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	errs := make([]error, 0, len(keys))
	for _, id := range keys {
		errs = append(errs, failed[id])
	}
	return results, errors.Join(errs...)
}

func (s *Session) transformFile(ctx context.Context, id string) (*TransformResult, error) {
	if !s.Handles(id) {
		return nil, nil
	}
	data, err := s.fs.ReadFile(id)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	return s.Transform(ctx, string(data), id)
}

// RenderArtifact aggregates the registered modules reachable from root in
// g, emits the assets they reference and then the stylesheet to out.
func (s *Session) RenderArtifact(ctx context.Context, root string, g graph.Adjacency, out bundle.Output) (*Artifact, error) {
	return s.RenderArtifactAs(ctx, root, g, out, s.opts.FileName)
}

// RenderArtifactAs is RenderArtifact with the artifact emitted under
// fileName instead of the configured name, for hosts with several entries.
func (s *Session) RenderArtifactAs(ctx context.Context, root string, g graph.Adjacency, out bundle.Output, fileName string) (*Artifact, error) {
	text, modules := graph.Aggregate(root, g, s.registry)
	pending := s.store.Referenced(text)

	res, err := bundle.Emit(ctx, out, text, pending, fileName, s.opts.PublicPath)
	if err != nil {
		return nil, err
	}

	s.log.Debug("rendered",
		zap.String("root", root),
		zap.String("address", res.Address),
		zap.Int("modules", len(modules)),
		zap.Int("assets", len(res.Assets)))

	if s.opts.Hot && path.Base(res.Address) != path.Base(filepath.ToSlash(fileName)) {
		s.hashWarning.Do(func() {
			s.log.Warn("hot reload needs a stable stylesheet name; the page keeps fetching the old content-hashed file",
				zap.String("address", res.Address))
		})
	}

	artifact := &Artifact{
		Address: res.Address,
		URL:     res.URL,
		Text:    res.Text,
		Assets:  res.Assets,
		Modules: modules,
	}
	if s.opts.Hot {
		artifact.RuntimeCode = hot.RuntimeCode(res.URL)
	}
	return artifact, nil
}

// Registered returns the transformed text of a module.
func (s *Session) Registered(id string) (string, bool) {
	return s.registry.Get(id)
}

// WatchFiles returns every module id and watch file the session knows
// about, sorted.
func (s *Session) WatchFiles() []string {
	seen := make(map[string]bool)
	for _, id := range s.registry.IDs() {
		seen[id] = true
	}
	s.mu.RLock()
	for _, files := range s.watchFiles {
		for _, f := range files {
			seen[f] = true
		}
	}
	s.mu.RUnlock()

	list := make([]string, 0, len(seen))
	for f := range seen {
		list = append(list, f)
	}
	sort.Strings(list)
	return list
}

// Invalidate reacts to a change of path on disk. A changed asset is
// re-read, and a deleted module is dropped from the registry. It returns
// the modules that must be transformed again: the module itself when path
// is one that still exists, and every module that lists path among its
// watch files.
func (s *Session) Invalidate(path string) []string {
	path = filepath.Clean(path)
	affected := make(map[string]bool)

	if _, ok := s.registry.Get(path); ok {
		if fs.IsRegularFile(s.fs, path) {
			affected[path] = true
		} else {
			s.log.Debug("module gone", zap.String("id", path))
			s.Forget(path)
		}
	}
	s.mu.RLock()
	for id, files := range s.watchFiles {
		if slices.Contains(files, path) {
			affected[id] = true
		}
	}
	s.mu.RUnlock()

	if s.store.Invalidate(path) {
		// Keep the placeholder resolvable for modules that fail to
		// re-transform.
		if _, err := s.store.Intern(path); err != nil {
			s.log.Debug("asset gone", zap.String("path", path), zap.Error(err))
		}
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops a module that is no longer part of the build.
func (s *Session) Forget(id string) {
	s.registry.Delete(id)
	s.mu.Lock()
	delete(s.watchFiles, id)
	s.mu.Unlock()
}

// Reset clears every registration and pending asset, as before a full
// rebuild.
func (s *Session) Reset() {
	s.registry.Reset()
	s.store.Reset()
	s.mu.Lock()
	s.watchFiles = make(map[string][]string)
	s.mu.Unlock()
}
