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

// Package trace builds the host module graph sheaf aggregates: it follows
// the imports of HTML module scripts and JavaScript modules, recording
// stylesheet imports as leaves.
package trace

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/graph"
	"bennypowers.dev/sheaf/importmap"
	"bennypowers.dev/sheaf/packagejson"
)

// ModuleGraph is the result of one trace.
type ModuleGraph struct {
	// Root is the id to aggregate from: the HTML page or the entry module.
	Root string

	// Entrypoints are the modules the root loads directly.
	Entrypoints []string

	// Graph holds every traced module and its imports in source order.
	Graph *graph.Graph

	// Errors collects non-fatal errors encountered during tracing.
	Errors []error

	stylesheets    []string
	bareSpecifiers map[string]bool
	traced         map[string]bool
	importMap      *importmap.ImportMap
}

func newModuleGraph(root string) *ModuleGraph {
	g := &ModuleGraph{
		Root:           root,
		Graph:          graph.New(),
		bareSpecifiers: make(map[string]bool),
		traced:         make(map[string]bool),
	}
	g.Graph.AddModule(root)
	return g
}

// Stylesheets returns the stylesheet modules found, in discovery order.
func (g *ModuleGraph) Stylesheets() []string {
	return slices.Clone(g.stylesheets)
}

// Modules returns every traced script module, sorted.
func (g *ModuleGraph) Modules() []string {
	var ids []string
	for id := range g.traced {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tracer builds module graphs from HTML and JavaScript entrypoints.
type Tracer struct {
	fs              fs.FileSystem
	rootDir         string
	extensions      []string
	nodeModulesPath string
	followBare      bool
	selfPkg         *packagejson.PackageJSON
	selfPkgPath     string
	log             *zap.Logger

	pkgCache *packagejson.Cache
	// moduleCache holds parsed imports by path, shared across traces.
	moduleCache *sync.Map // map[string][]ModuleImport
}

// NewTracer creates a Tracer for rootDir. Imports whose extension is in
// extensions are stylesheets: they become graph leaves and are not read.
func NewTracer(fsys fs.FileSystem, rootDir string, extensions []string) *Tracer {
	return &Tracer{
		fs:          fsys,
		rootDir:     rootDir,
		extensions:  slices.Clone(extensions),
		log:         zap.NewNop(),
		pkgCache:    packagejson.NewCache(),
		moduleCache: &sync.Map{},
	}
}

func (t *Tracer) clone() *Tracer {
	c := *t
	return &c
}

// WithNodeModules returns a Tracer that follows bare specifiers into
// nodeModulesPath.
func (t *Tracer) WithNodeModules(nodeModulesPath string) *Tracer {
	c := t.clone()
	c.nodeModulesPath = nodeModulesPath
	c.followBare = true
	return c
}

// WithSelfPackage returns a Tracer that resolves imports of pkg's own name
// inside pkgPath.
func (t *Tracer) WithSelfPackage(pkg *packagejson.PackageJSON, pkgPath string) *Tracer {
	c := t.clone()
	c.selfPkg = pkg
	c.selfPkgPath = pkgPath
	return c
}

// WithLogger returns a Tracer that logs through log.
func (t *Tracer) WithLogger(log *zap.Logger) *Tracer {
	c := t.clone()
	if log == nil {
		log = zap.NewNop()
	}
	c.log = log.Named("trace")
	return c
}

// Invalidate drops anything cached for path, so the next trace reads it
// again.
func (t *Tracer) Invalidate(path string) {
	t.moduleCache.Delete(path)
	if filepath.Base(path) == "package.json" {
		t.pkgCache.Invalidate(path)
	}
}

// IsStylesheet reports whether p has one of the tracer's stylesheet
// extensions.
func (t *Tracer) IsStylesheet(p string) bool {
	return slices.Contains(t.extensions, path.Ext(p))
}

// TraceHTML traces the module scripts of an HTML page. The page is the
// graph's root; each module script is one of its imports, in document
// order.
func (t *Tracer) TraceHTML(htmlPath string) (*ModuleGraph, error) {
	content, err := t.fs.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}

	scripts, err := ExtractScripts(content)
	if err != nil {
		return nil, err
	}

	g := newModuleGraph(htmlPath)
	htmlDir := filepath.Dir(htmlPath)

	// Import maps apply to every module the page loads, so they are read
	// before any script is followed.
	for _, script := range scripts {
		if script.Type != "importmap" || !script.Inline {
			continue
		}
		im, err := importmap.Parse([]byte(script.Content))
		if err != nil {
			g.Errors = append(g.Errors, fmt.Errorf("parsing import map in %s: %w", htmlPath, err))
			continue
		}
		g.importMap = g.importMap.Merge(im)
	}

	for _, script := range scripts {
		switch {
		case script.Type == "module" && script.Src != "":
			modulePath := t.resolvePath(htmlDir, script.Src)
			g.Entrypoints = append(g.Entrypoints, modulePath)
			t.follow(g, htmlPath, modulePath)
		case script.Inline:
			for _, spec := range script.Imports {
				t.traceImport(g, htmlPath, htmlDir, spec)
			}
		}
	}

	return g, nil
}

// TraceModule traces a module and all its dependencies.
func (t *Tracer) TraceModule(modulePath string) (*ModuleGraph, error) {
	g := newModuleGraph(modulePath)
	g.Entrypoints = []string{modulePath}
	if t.IsStylesheet(modulePath) {
		g.stylesheets = append(g.stylesheets, modulePath)
		return g, nil
	}
	if err := t.traceModule(g, modulePath); err != nil {
		return nil, err
	}
	return g, nil
}

// follow adds the edge from -> to and traces to, recording failures.
func (t *Tracer) follow(g *ModuleGraph, from, to string) {
	g.Graph.AddImport(from, to)
	if t.IsStylesheet(to) {
		if !slices.Contains(g.stylesheets, to) {
			g.stylesheets = append(g.stylesheets, to)
		}
		return
	}
	if err := t.traceModule(g, to); err != nil {
		g.Errors = append(g.Errors, fmt.Errorf("tracing %s: %w", to, err))
	}
}

func (t *Tracer) traceImport(g *ModuleGraph, from, dir, spec string) {
	if !isBareSpecifier(spec) {
		if strings.Contains(spec, "://") {
			return
		}
		t.follow(g, from, t.resolvePath(dir, spec))
		return
	}

	g.bareSpecifiers[spec] = true
	if address, ok := g.importMap.Resolve(spec, t.urlPath(from)); ok {
		if !strings.Contains(address, "://") {
			t.follow(g, from, t.resolvePath(filepath.Dir(g.Root), address))
		}
		return
	}
	if !t.followBare && (t.selfPkg == nil || getPackageName(spec) != t.selfPkg.Name) {
		return
	}
	depPath, err := t.resolveBareSpecifier(spec)
	if err != nil {
		g.Errors = append(g.Errors, fmt.Errorf("resolving %s: %w", spec, err))
		return
	}
	if depPath != "" {
		t.follow(g, from, depPath)
	}
}

// traceModule recursively traces a script module.
func (t *Tracer) traceModule(g *ModuleGraph, modulePath string) error {
	if g.traced[modulePath] {
		return nil
	}

	imports, err := t.parse(modulePath)
	if err != nil {
		return err
	}
	g.traced[modulePath] = true
	g.Graph.AddModule(modulePath)

	moduleDir := filepath.Dir(modulePath)
	for _, imp := range imports {
		t.traceImport(g, modulePath, moduleDir, imp.Specifier)
	}
	return nil
}

func (t *Tracer) parse(modulePath string) ([]ModuleImport, error) {
	if cached, ok := t.moduleCache.Load(modulePath); ok {
		return cached.([]ModuleImport), nil
	}
	content, err := t.fs.ReadFile(modulePath)
	if err != nil {
		return nil, err
	}
	imports, err := ExtractImports(content)
	if err != nil {
		return nil, err
	}
	t.moduleCache.Store(modulePath, imports)
	return imports, nil
}

// resolveBareSpecifier resolves a bare specifier to a file path, first as
// a self-reference and then through node_modules. It returns "" when the
// package is not installed.
func (t *Tracer) resolveBareSpecifier(specifier string) (string, error) {
	pkgName := getPackageName(specifier)
	subpath := "." + strings.TrimPrefix(specifier, pkgName)

	conditions := packagejson.DefaultConditions
	if t.IsStylesheet(specifier) {
		conditions = packagejson.StyleConditions
	}

	if t.selfPkg != nil && pkgName == t.selfPkg.Name {
		return resolvePackageSubpath(t.selfPkg, t.selfPkgPath, subpath, conditions)
	}

	if t.nodeModulesPath == "" {
		return "", nil
	}

	pkgPath := filepath.Join(t.nodeModulesPath, pkgName)
	pkg, err := t.pkgCache.Load(t.fs, filepath.Join(pkgPath, "package.json"))
	if err != nil {
		if !errors.Is(err, iofs.ErrNotExist) {
			t.log.Warn("ignoring unreadable package.json",
				zap.String("package", pkgName), zap.Error(err))
		}
		return "", nil
	}
	return resolvePackageSubpath(pkg, pkgPath, subpath, conditions)
}

func resolvePackageSubpath(pkg *packagejson.PackageJSON, pkgPath, subpath string, conditions []string) (string, error) {
	resolved, err := pkg.Resolve(subpath, conditions)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", pkg.Name, subpath, err)
	}
	return filepath.Join(pkgPath, resolved), nil
}

// resolvePath resolves a specifier against baseDir. Web-absolute paths
// ("/foo") are relative to the root directory. Query and fragment are
// dropped.
func (t *Tracer) resolvePath(baseDir, specifier string) string {
	if i := strings.IndexAny(specifier, "?#"); i >= 0 {
		specifier = specifier[:i]
	}
	if strings.HasPrefix(specifier, "/") {
		return filepath.Join(t.rootDir, specifier)
	}
	return filepath.Join(baseDir, specifier)
}

// urlPath is the path the page would request p by, for matching import
// map scopes.
func (t *Tracer) urlPath(p string) string {
	rel, err := filepath.Rel(t.rootDir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return "/" + filepath.ToSlash(rel)
}

// isBareSpecifier reports whether specifier must be resolved as a package
// name rather than a path or URL.
func isBareSpecifier(specifier string) bool {
	if specifier == "" {
		return false
	}
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return false
	}
	if strings.HasPrefix(specifier, "/") {
		return false
	}
	if strings.Contains(specifier, "://") {
		return false
	}
	return true
}

// BareSpecifiers returns the bare specifiers found, sorted.
func (g *ModuleGraph) BareSpecifiers() []string {
	specifiers := make([]string, 0, len(g.bareSpecifiers))
	for spec := range g.bareSpecifiers {
		specifiers = append(specifiers, spec)
	}
	sort.Strings(specifiers)
	return specifiers
}

// PackageNames returns the package names of the bare specifiers found,
// sorted. "lit/decorators.js" contributes "lit".
func (g *ModuleGraph) PackageNames() []string {
	packages := make(map[string]bool)
	for spec := range g.bareSpecifiers {
		packages[getPackageName(spec)] = true
	}
	result := make([]string, 0, len(packages))
	for pkg := range packages {
		result = append(result, pkg)
	}
	sort.Strings(result)
	return result
}

func getPackageName(specifier string) string {
	if strings.HasPrefix(specifier, "@") {
		parts := strings.SplitN(specifier, "/", 3)
		if len(parts) >= 2 {
			return path.Join(parts[0], parts[1])
		}
		return specifier
	}
	return strings.SplitN(specifier, "/", 2)[0]
}
