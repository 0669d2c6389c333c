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

// Package sass is the Sass/SCSS pipeline stage. It compiles through the
// Dart Sass embedded protocol using github.com/bep/godartsass.
package sass

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	"go.uber.org/zap"

	"bennypowers.dev/sheaf/pipeline"
)

// Options configures the compiler.
type Options struct {
	// Binary is the dart-sass executable; "sass" on $PATH when empty.
	Binary string
	// Timeout bounds a single compilation.
	Timeout time.Duration
	// IncludePaths are searched after the module's own directory.
	IncludePaths []string
	Logger       *zap.Logger
}

// Compiler is a pipeline.Stage backed by one shared Dart Sass process,
// started on first use.
type Compiler struct {
	opts Options
	log  *zap.Logger

	mu sync.Mutex
	t  *godartsass.Transpiler
}

// New creates a compiler. The Dart Sass process is not started until the
// first Transform.
func New(opts Options) *Compiler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{opts: opts, log: log.Named("sass")}
}

func (c *Compiler) Name() string { return "sass" }

func (c *Compiler) transpiler() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.t != nil && !c.t.IsShutDown() {
		return c.t, nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: c.opts.Binary,
		Timeout:                  c.opts.Timeout,
		LogEventHandler:          c.logEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("starting dart sass: %w", err)
	}
	c.t = t
	return t, nil
}

func (c *Compiler) logEvent(e godartsass.LogEvent) {
	switch e.Type {
	case godartsass.LogEventTypeDebug:
		c.log.Debug(e.Message)
	case godartsass.LogEventTypeDeprecated:
		c.log.Warn(e.Message, zap.String("deprecation", e.DeprecationType))
	default:
		c.log.Warn(e.Message)
	}
}

// Transform compiles in.Code as the module id. The returned map's sources
// are relative to the module's directory, and every other file the
// compilation read is returned as a watch file.
func (c *Compiler) Transform(ctx context.Context, in pipeline.Input, id string) (pipeline.Input, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Input{}, err
	}
	t, err := c.transpiler()
	if err != nil {
		return pipeline.Input{}, err
	}

	dir := filepath.Dir(id)
	res, err := t.Execute(godartsass.Args{
		Source:          in.Code,
		URL:             fileURL(id),
		SourceSyntax:    Syntax(id),
		OutputStyle:     godartsass.OutputStyleExpanded,
		EnableSourceMap: true,
		IncludePaths:    append([]string{dir}, c.opts.IncludePaths...),
	})
	if err != nil {
		return pipeline.Input{}, err
	}

	out := pipeline.Input{Code: res.CSS}
	if res.SourceMap == "" {
		return out, nil
	}
	m, sources, err := pipeline.RelativizeSourceMap([]byte(res.SourceMap), dir)
	if err != nil {
		return pipeline.Input{}, err
	}
	out.Map = m
	self := filepath.Clean(id)
	for _, src := range sources {
		if src != self {
			out.WatchFiles = append(out.WatchFiles, src)
		}
	}
	return out, nil
}

// Close stops the Dart Sass process, if one was started.
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t == nil || c.t.IsShutDown() {
		return nil
	}
	err := c.t.Close()
	c.t = nil
	return err
}

// Syntax picks the source syntax from the module's extension.
func Syntax(id string) godartsass.SourceSyntax {
	switch strings.ToLower(filepath.Ext(id)) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	}
	return godartsass.SourceSyntaxSCSS
}

func fileURL(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}
