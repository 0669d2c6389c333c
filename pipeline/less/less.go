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

// Package less is the LESS pipeline stage. It runs the lessc executable.
package less

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"bennypowers.dev/sheaf/pipeline"
)

// Options configures the compiler.
type Options struct {
	// Binary is the lessc executable; "lessc" on $PATH when empty.
	Binary string
	// IncludePaths are searched after the module's own directory.
	IncludePaths []string
	Logger       *zap.Logger
}

// Compiler is a pipeline.Stage that runs one lessc process per module.
type Compiler struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Compiler {
	if opts.Binary == "" {
		opts.Binary = "lessc"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{opts: opts, log: log.Named("less")}
}

func (c *Compiler) Name() string { return "less" }

// Transform feeds in.Code to lessc on stdin, from the module's directory,
// and reads the compiled CSS and source map back from a scratch directory.
func (c *Compiler) Transform(ctx context.Context, in pipeline.Input, id string) (pipeline.Input, error) {
	dir := filepath.Dir(id)

	tmp, err := os.MkdirTemp("", "sheaf-less-*")
	if err != nil {
		return pipeline.Input{}, err
	}
	defer os.RemoveAll(tmp)

	cssPath := filepath.Join(tmp, "out.css")
	mapPath := cssPath + ".map"

	includes := append([]string{dir}, c.opts.IncludePaths...)
	args := []string{
		"--include-path=" + strings.Join(includes, string(os.PathListSeparator)),
		"--source-map=" + mapPath,
		"--source-map-basepath=" + dir,
		"-",
		cssPath,
	}

	cmd := exec.CommandContext(ctx, c.opts.Binary, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(in.Code)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.log.Debug("compiling", zap.String("module", id), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return pipeline.Input{}, fmt.Errorf("%w: %s", err, msg)
		}
		return pipeline.Input{}, err
	}

	code, err := os.ReadFile(cssPath)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("reading lessc output: %w", err)
	}
	out := pipeline.Input{Code: stripMapComment(string(code))}

	raw, err := os.ReadFile(mapPath)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	} else if err != nil {
		return pipeline.Input{}, fmt.Errorf("reading lessc source map: %w", err)
	}

	m, sources, err := pipeline.RelativizeSourceMap(raw, dir)
	if err != nil {
		return pipeline.Input{}, err
	}
	out.Map = m
	self := filepath.Clean(id)
	for _, src := range sources {
		// stdin shows up under a synthetic name; only real files are watched.
		if src == self {
			continue
		}
		if info, err := os.Stat(src); err == nil && info.Mode().IsRegular() {
			out.WatchFiles = append(out.WatchFiles, src)
		}
	}
	return out, nil
}

// stripMapComment drops the trailing sourceMappingURL comment; the map
// travels with the pipeline input instead.
func stripMapComment(code string) string {
	i := strings.LastIndex(code, "/*# sourceMappingURL=")
	if i < 0 {
		return code
	}
	return strings.TrimRight(code[:i], " \t\r\n") + "\n"
}
