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
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/trace"
)

// EntryResult is the outcome of rendering one entry.
type EntryResult struct {
	// Entry is the entry path relative to the project root, slash-separated.
	Entry    string
	Artifact *Artifact
	// TraceErrors are the non-fatal errors met while tracing the entry.
	TraceErrors []error
}

// Project drives a Session from entry points on disk: it traces each entry
// into a host graph, transforms every stylesheet the graphs reach, and
// renders one artifact per entry. It is what the build and serve commands
// run.
type Project struct {
	session *Session
	tracer  *trace.Tracer
	root    string
	entries []string
	out     bundle.Output
	jobs    int
	log     *zap.Logger

	mu     sync.Mutex
	graphs map[string]*trace.ModuleGraph
}

// NewProject creates a Project for entries (absolute paths) under root.
func NewProject(session *Session, tracer *trace.Tracer, root string, entries []string, out bundle.Output, jobs int, log *zap.Logger) *Project {
	if log == nil {
		log = zap.NewNop()
	}
	return &Project{
		session: session,
		tracer:  tracer,
		root:    root,
		entries: slices.Clone(entries),
		out:     out,
		jobs:    jobs,
		log:     log.Named("project"),
		graphs:  make(map[string]*trace.ModuleGraph),
	}
}

// Session returns the project's session.
func (p *Project) Session() *Session {
	return p.session
}

// Build runs a full build: the session is reset, every entry is traced
// again and every stylesheet reached is transformed. Entries are rendered
// even when some modules fail; the failures are returned joined.
func (p *Project) Build(ctx context.Context) ([]EntryResult, error) {
	p.session.Reset()

	var errs []error
	graphs := make(map[string]*trace.ModuleGraph, len(p.entries))
	for _, entry := range p.entries {
		g, err := p.trace(entry)
		if err != nil {
			return nil, fmt.Errorf("tracing %s: %w", entry, err)
		}
		graphs[entry] = g
	}
	p.mu.Lock()
	p.graphs = graphs
	p.mu.Unlock()

	if _, err := p.session.TransformAll(ctx, p.stylesheets(), p.jobs); err != nil {
		errs = append(errs, err)
	}

	results, err := p.render(ctx)
	if err != nil {
		return nil, err
	}
	return results, errors.Join(errs...)
}

// Rebuild reacts to changed paths. A change to a traced script, an HTML
// entry or a package.json alters the host graph and triggers a full Build.
// Otherwise only the affected stylesheet modules are transformed again
// before every entry is rendered.
func (p *Project) Rebuild(ctx context.Context, changed []string) ([]EntryResult, error) {
	for _, path := range changed {
		p.tracer.Invalidate(path)
	}
	for _, path := range changed {
		if p.affectsGraph(path) {
			p.log.Debug("graph changed", zap.String("path", path))
			return p.Build(ctx)
		}
	}

	known := make(map[string]bool)
	for _, id := range p.stylesheets() {
		known[id] = true
	}
	affected := make(map[string]bool)
	for _, path := range changed {
		for _, id := range p.session.Invalidate(path) {
			affected[id] = true
		}
		// A deleted stylesheet drops out of the artifact instead.
		if id := filepath.Clean(path); known[id] && fs.IsRegularFile(p.session.fs, id) {
			affected[id] = true
		}
	}
	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var transformErr error
	if len(ids) > 0 {
		p.log.Debug("retransforming", zap.Strings("modules", ids))
		_, transformErr = p.session.TransformAll(ctx, ids, p.jobs)
	}

	results, err := p.render(ctx)
	if err != nil {
		return nil, err
	}
	return results, transformErr
}

// WatchFiles returns every file a change to which affects the build:
// entries, traced scripts, stylesheets and their watch files.
func (p *Project) WatchFiles() []string {
	seen := make(map[string]bool)
	for _, f := range p.session.WatchFiles() {
		seen[f] = true
	}
	p.mu.Lock()
	for entry, g := range p.graphs {
		seen[entry] = true
		for _, m := range g.Modules() {
			seen[m] = true
		}
		for _, s := range g.Stylesheets() {
			seen[s] = true
		}
	}
	p.mu.Unlock()

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Manifest records results.
func Manifest(results []EntryResult) *bundle.Manifest {
	m := bundle.NewManifest()
	for _, r := range results {
		a := r.Artifact
		m.Add(r.Entry, bundle.Result{
			Address: a.Address,
			URL:     a.URL,
			Text:    a.Text,
			Assets:  a.Assets,
		}, a.Modules)
	}
	return m
}

func (p *Project) trace(entry string) (*trace.ModuleGraph, error) {
	var (
		g   *trace.ModuleGraph
		err error
	)
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".html", ".htm":
		g, err = p.tracer.TraceHTML(entry)
	default:
		g, err = p.tracer.TraceModule(entry)
	}
	if err != nil {
		return nil, err
	}
	for _, e := range g.Errors {
		p.log.Warn("trace", zap.String("entry", entry), zap.Error(e))
	}
	return g, nil
}

// stylesheets returns the handled stylesheet modules of every graph, in
// discovery order.
func (p *Project) stylesheets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, entry := range p.entries {
		g, ok := p.graphs[entry]
		if !ok {
			continue
		}
		for _, id := range g.Stylesheets() {
			if p.session.Handles(id) && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (p *Project) affectsGraph(path string) bool {
	path = filepath.Clean(path)
	if filepath.Base(path) == "package.json" || slices.Contains(p.entries, path) {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.graphs {
		if slices.Contains(g.Modules(), path) {
			return true
		}
	}
	return false
}

func (p *Project) render(ctx context.Context) ([]EntryResult, error) {
	p.mu.Lock()
	graphs := p.graphs
	p.mu.Unlock()

	results := make([]EntryResult, 0, len(p.entries))
	for _, entry := range p.entries {
		g := graphs[entry]
		artifact, err := p.session.RenderArtifactAs(ctx, g.Root, g.Graph, p.out, p.fileName(entry))
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", entry, err)
		}
		rel, err := filepath.Rel(p.root, entry)
		if err != nil {
			rel = entry
		}
		results = append(results, EntryResult{
			Entry:       filepath.ToSlash(rel),
			Artifact:    artifact,
			TraceErrors: g.Errors,
		})
	}
	return results, nil
}

// fileName is the configured name for a single entry. With several
// entries each artifact is named after its entry.
func (p *Project) fileName(entry string) string {
	name := p.session.Options().FileName
	if len(p.entries) < 2 {
		return name
	}
	base := filepath.Base(entry)
	return strings.TrimSuffix(base, filepath.Ext(base)) + filepath.Ext(name)
}
