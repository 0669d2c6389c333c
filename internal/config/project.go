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
package config

import (
	"path/filepath"

	"go.uber.org/zap"

	"bennypowers.dev/sheaf/build"
	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/packagejson"
	"bennypowers.dev/sheaf/trace"
)

// Abs resolves p against the package directory root.
func Abs(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// EntryPaths returns the configured entries as absolute paths.
func (c *Config) EntryPaths(root string) []string {
	paths := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		paths = append(paths, Abs(root, e))
	}
	return paths
}

// Project wires a build.Project for the package at root: a session with
// the configured stages, and a tracer that follows bare specifiers into
// root's node_modules and resolves the package's own name locally. The
// returned function releases the preprocessors.
func (c *Config) Project(fsys fs.FileSystem, root string, out bundle.Output, log *zap.Logger) (*build.Project, func() error, error) {
	opts, err := c.SessionOptions()
	if err != nil {
		return nil, nil, err
	}
	builtins, closeAll := c.Builtins(log)
	session, err := build.NewSession(opts, fsys, log, builtins)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}

	tracer := trace.NewTracer(fsys, root, opts.Extensions).WithLogger(log)
	nodeModules := filepath.Join(root, "node_modules")
	if fsys.Exists(nodeModules) {
		tracer = tracer.WithNodeModules(nodeModules)
	}
	if pkg, err := packagejson.ParseFile(fsys, filepath.Join(root, "package.json")); err == nil && pkg.Name != "" {
		tracer = tracer.WithSelfPackage(pkg, root)
	}

	return build.NewProject(session, tracer, root, c.EntryPaths(root), out, c.Jobs, log), closeAll, nil
}
