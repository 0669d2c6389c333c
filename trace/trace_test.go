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
package trace

import (
	"slices"
	"testing"

	"bennypowers.dev/sheaf/internal/mapfs"
	"bennypowers.dev/sheaf/packagejson"
)

func TestExtractScripts(t *testing.T) {
	html := []byte(`<!doctype html>
<html>
<head>
  <script type="importmap">{"imports": {"lit": "/vendor/lit.js"}}</script>
  <script type="module" src="/src/app.js"></script>
  <script src="/legacy.js"></script>
</head>
<body>
  <script type="module">
    import './inline.js';
    import 'lit';
  </script>
  <script>
    import('./lazy.js');
  </script>
</body>
</html>`)

	scripts, err := ExtractScripts(html)
	if err != nil {
		t.Fatalf("ExtractScripts failed: %v", err)
	}

	expected := []ScriptTag{
		{Type: "importmap", Inline: true},
		{Type: "module", Src: "/src/app.js"},
		{Src: "/legacy.js"},
		{Type: "module", Inline: true, Imports: []string{"./inline.js", "lit"}},
		{Inline: true, Imports: []string{"./lazy.js"}},
	}
	if len(scripts) != len(expected) {
		t.Fatalf("Expected %d scripts, got %d: %+v", len(expected), len(scripts), scripts)
	}
	for i, exp := range expected {
		got := scripts[i]
		if got.Type != exp.Type || got.Src != exp.Src || got.Inline != exp.Inline {
			t.Errorf("Script %d: expected %+v, got %+v", i, exp, got)
		}
		if !slices.Equal(got.Imports, exp.Imports) {
			t.Errorf("Script %d: expected imports %v, got %v", i, exp.Imports, got.Imports)
		}
	}
}

func TestExtractImports(t *testing.T) {
	js := []byte(`import { LitElement } from 'lit';
import './styles.css';
export * from './reexported.js';
export { a } from "./named.js";

const lazy = () => import('./lazy.js');
const notLiteral = (x) => import(x);
`)

	imports, err := ExtractImports(js)
	if err != nil {
		t.Fatalf("ExtractImports failed: %v", err)
	}

	expected := []ModuleImport{
		{Specifier: "lit", Line: 1},
		{Specifier: "./styles.css", Line: 2},
		{Specifier: "./reexported.js", Line: 3},
		{Specifier: "./named.js", Line: 4},
		{Specifier: "./lazy.js", IsDynamic: true, Line: 6},
	}
	if !slices.Equal(imports, expected) {
		t.Errorf("Expected %+v, got %+v", expected, imports)
	}
}

func TestExtractImports_TypeScript(t *testing.T) {
	ts := []byte(`import type { Config } from './types.js';
import { html } from 'lit';

export class El {
  count: number = 0;
  private config?: Config;
}
`)

	imports, err := ExtractImports(ts)
	if err != nil {
		t.Fatalf("ExtractImports failed: %v", err)
	}
	var specs []string
	for _, imp := range imports {
		specs = append(specs, imp.Specifier)
	}
	if !slices.Equal(specs, []string{"./types.js", "lit"}) {
		t.Errorf("Unexpected specifiers %v", specs)
	}
}

func newProject(t *testing.T) *mapfs.MapFileSystem {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddFile("/site/index.html", `<script type="module" src="/src/app.js"></script>
<script type="module">import './src/extra.js';</script>`, 0644)
	mfs.AddFile("/site/src/app.js", `import './app.css';
import { Button } from './button.js';
import 'ui-kit/theme.css';
`, 0644)
	mfs.AddFile("/site/src/button.js", `import '../styles/button.scss';
import './app.js';
`, 0644)
	mfs.AddFile("/site/src/extra.js", `import './app.css';
import './extra.less';
`, 0644)
	mfs.AddFile("/site/node_modules/ui-kit/package.json", `{
  "name": "ui-kit",
  "exports": {
    ".": "./index.js",
    "./theme.css": { "style": "./dist/theme.css", "default": "./theme.js" }
  }
}`, 0644)
	return mfs
}

var styleExts = []string{".css", ".scss", ".less"}

func TestTraceHTML(t *testing.T) {
	mfs := newProject(t)
	tracer := NewTracer(mfs, "/site", styleExts).WithNodeModules("/site/node_modules")

	g, err := tracer.TraceHTML("/site/index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}
	if len(g.Errors) > 0 {
		t.Fatalf("Unexpected trace errors: %v", g.Errors)
	}

	if g.Root != "/site/index.html" {
		t.Errorf("Expected the page as root, got %q", g.Root)
	}
	if !slices.Equal(g.Entrypoints, []string{"/site/src/app.js"}) {
		t.Errorf("Unexpected entrypoints %v", g.Entrypoints)
	}
	if got := g.Graph.Imports("/site/index.html"); !slices.Equal(got, []string{"/site/src/app.js", "/site/src/extra.js"}) {
		t.Errorf("Expected scripts in document order, got %v", got)
	}
	if got := g.Graph.Imports("/site/src/app.js"); !slices.Equal(got, []string{
		"/site/src/app.css",
		"/site/src/button.js",
		"/site/node_modules/ui-kit/dist/theme.css",
	}) {
		t.Errorf("Unexpected app.js imports %v", got)
	}

	expected := []string{
		"/site/src/app.css",
		"/site/styles/button.scss",
		"/site/node_modules/ui-kit/dist/theme.css",
		"/site/src/extra.less",
	}
	if got := g.Stylesheets(); !slices.Equal(got, expected) {
		t.Errorf("Expected stylesheets %v, got %v", expected, got)
	}
	if got := g.Modules(); !slices.Equal(got, []string{"/site/src/app.js", "/site/src/button.js", "/site/src/extra.js"}) {
		t.Errorf("Unexpected traced modules %v", got)
	}
	if got := g.PackageNames(); !slices.Equal(got, []string{"ui-kit"}) {
		t.Errorf("Unexpected package names %v", got)
	}
}

func TestTraceHTML_BareNotFollowed(t *testing.T) {
	mfs := newProject(t)
	g, err := NewTracer(mfs, "/site", styleExts).TraceHTML("/site/index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}
	if slices.Contains(g.Stylesheets(), "/site/node_modules/ui-kit/dist/theme.css") {
		t.Error("Bare specifiers should not be followed without node_modules")
	}
	if got := g.BareSpecifiers(); !slices.Equal(got, []string{"ui-kit/theme.css"}) {
		t.Errorf("Expected the bare specifier to be recorded, got %v", got)
	}
}

func TestTraceHTML_ImportMap(t *testing.T) {
	mfs := newProject(t)
	mfs.AddFile("/site/map.html", `<script type="importmap">
{"imports": {"ui-kit/": "/vendor/ui-kit/", "remote": "https://cdn.example.com/remote.js"}}
</script>
<script type="importmap">{"scopes": {"/legacy/": {"ui-kit/": "./vendor/ui-kit-1/"}}}</script>
<script type="module">
import 'ui-kit/theme.css';
import 'remote';
import './legacy/old.js';
</script>`, 0644)
	mfs.AddFile("/site/legacy/old.js", "import 'ui-kit/theme.css';\n", 0644)

	g, err := NewTracer(mfs, "/site", styleExts).WithNodeModules("/site/node_modules").TraceHTML("/site/map.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}
	if len(g.Errors) > 0 {
		t.Fatalf("Unexpected trace errors: %v", g.Errors)
	}
	expected := []string{"/site/vendor/ui-kit/theme.css", "/site/vendor/ui-kit-1/theme.css"}
	if got := g.Stylesheets(); !slices.Equal(got, expected) {
		t.Errorf("Expected import map targets %v, got %v", expected, got)
	}
	if got := g.BareSpecifiers(); !slices.Equal(got, []string{"remote", "ui-kit/theme.css"}) {
		t.Errorf("Unexpected bare specifiers %v", got)
	}
}

func TestTraceHTML_BadImportMap(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/site/index.html", `<script type="importmap">{not json</script>
<script type="module">import './a.css';</script>`, 0644)
	g, err := NewTracer(mfs, "/site", styleExts).TraceHTML("/site/index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}
	if len(g.Errors) != 1 {
		t.Errorf("Expected the import map error to be collected, got %v", g.Errors)
	}
	if got := g.Stylesheets(); !slices.Equal(got, []string{"/site/a.css"}) {
		t.Errorf("Unexpected stylesheets %v", got)
	}
}

func TestTraceModule(t *testing.T) {
	mfs := newProject(t)
	g, err := NewTracer(mfs, "/site", styleExts).TraceModule("/site/src/button.js")
	if err != nil {
		t.Fatalf("TraceModule failed: %v", err)
	}
	// button.js -> app.js -> button.js is a cycle; each module is traced once.
	if got := g.Modules(); !slices.Equal(got, []string{"/site/src/app.js", "/site/src/button.js"}) {
		t.Errorf("Unexpected modules %v", got)
	}
	if got := g.Stylesheets(); !slices.Equal(got, []string{"/site/styles/button.scss", "/site/src/app.css"}) {
		t.Errorf("Unexpected stylesheets %v", got)
	}
}

func TestTraceModule_Stylesheet(t *testing.T) {
	g, err := NewTracer(mapfs.New(), "/site", styleExts).TraceModule("/site/main.scss")
	if err != nil {
		t.Fatalf("TraceModule failed: %v", err)
	}
	if !slices.Equal(g.Stylesheets(), []string{"/site/main.scss"}) {
		t.Errorf("Expected the entry itself, got %v", g.Stylesheets())
	}
}

func TestTraceModule_Missing(t *testing.T) {
	if _, err := NewTracer(mapfs.New(), "/site", styleExts).TraceModule("/site/nope.js"); err == nil {
		t.Error("Expected an error for a missing entry")
	}

	mfs := mapfs.New()
	mfs.AddFile("/site/a.js", "import './gone.js';", 0644)
	g, err := NewTracer(mfs, "/site", styleExts).TraceModule("/site/a.js")
	if err != nil {
		t.Fatalf("TraceModule failed: %v", err)
	}
	if len(g.Errors) != 1 {
		t.Errorf("Expected one non-fatal error, got %v", g.Errors)
	}
}

func TestTraceModule_SelfPackage(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/pkg/elements/button.js", "import '@acme/elements/tokens.css';", 0644)
	mfs.AddFile("/pkg/package.json", `{"name":"@acme/elements","style":"./tokens.css"}`, 0644)

	pkg, err := packagejson.ParseFile(mfs, "/pkg/package.json")
	if err != nil {
		t.Fatal(err)
	}
	tracer := NewTracer(mfs, "/pkg", styleExts).WithSelfPackage(pkg, "/pkg")
	g, err := tracer.TraceModule("/pkg/elements/button.js")
	if err != nil {
		t.Fatalf("TraceModule failed: %v", err)
	}
	if !slices.Equal(g.Stylesheets(), []string{"/pkg/tokens.css"}) {
		t.Errorf("Expected self-reference to resolve locally, got %v", g.Stylesheets())
	}
}

func TestTracer_CachesAndInvalidates(t *testing.T) {
	mfs := newProject(t)
	tracer := NewTracer(mfs, "/site", styleExts)

	for range 2 {
		if _, err := tracer.TraceModule("/site/src/extra.js"); err != nil {
			t.Fatal(err)
		}
	}
	if n := mfs.ReadCount("/site/src/extra.js"); n != 1 {
		t.Errorf("Expected a cached parse, got %d reads", n)
	}

	mfs.AddFile("/site/src/extra.js", "import './other.css';", 0644)
	tracer.Invalidate("/site/src/extra.js")
	g, err := tracer.TraceModule("/site/src/extra.js")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(g.Stylesheets(), []string{"/site/src/other.css"}) {
		t.Errorf("Expected the re-read imports, got %v", g.Stylesheets())
	}
}

func TestPackageNames(t *testing.T) {
	tests := map[string]string{
		"lit":                      "lit",
		"lit/decorators.js":        "lit",
		"@scope/pkg":               "@scope/pkg",
		"@scope/pkg/sub/theme.css": "@scope/pkg",
		"@scope":                   "@scope",
	}
	for spec, expected := range tests {
		if got := getPackageName(spec); got != expected {
			t.Errorf("getPackageName(%q) = %q, want %q", spec, got, expected)
		}
	}
}

func TestIsBareSpecifier(t *testing.T) {
	tests := map[string]bool{
		"lit":                      true,
		"@scope/pkg":               true,
		"./local.js":               false,
		"../up.css":                false,
		"/abs.js":                  false,
		"https://cdn.example/x.js": false,
		"":                         false,
	}
	for spec, expected := range tests {
		if got := isBareSpecifier(spec); got != expected {
			t.Errorf("isBareSpecifier(%q) = %v, want %v", spec, got, expected)
		}
	}
}

func TestResolvePath(t *testing.T) {
	tracer := NewTracer(mapfs.New(), "/site", styleExts)
	tests := []struct {
		base, spec, expected string
	}{
		{"/site/src", "./a.js", "/site/src/a.js"},
		{"/site/src", "../b.css", "/site/b.css"},
		{"/site/src", "/c.js", "/site/c.js"},
		{"/site/src", "./d.css?inline#x", "/site/src/d.css"},
	}
	for _, tt := range tests {
		if got := tracer.resolvePath(tt.base, tt.spec); got != tt.expected {
			t.Errorf("resolvePath(%q, %q) = %q, want %q", tt.base, tt.spec, got, tt.expected)
		}
	}
}
