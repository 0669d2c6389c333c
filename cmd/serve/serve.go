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

// Package serve provides the serve command for sheaf.
package serve

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	sheafbuild "bennypowers.dev/sheaf/build"
	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/devserver"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/internal/config"
	"bennypowers.dev/sheaf/internal/logging"
	"bennypowers.dev/sheaf/watch"
)

// Cmd is the serve command.
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the package with live stylesheet replacement",
	Long: `Build the stylesheets of each entry, serve the package directory, and rebuild
when a source, asset or traced script changes. Open pages link the current
stylesheets and swap them in place on every rebuild, without a reload.`,
	Example: `  # Serve on the default port
  sheaf serve --entry index.html

  # Another port, with a longer debounce for slow editors
  sheaf serve --entry index.html --port 3000 --delay 200ms`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringSlice("entry", nil, "Entry file, relative to the package directory (repeatable)")
	Cmd.Flags().IntP("port", "P", 8080, "Port to listen on")
	Cmd.Flags().String("host", "localhost", "Host to listen on")
	Cmd.Flags().Duration("delay", watch.DefaultDelay, "Quiet period before a batch of changes is rebuilt")
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()

	// serve shares keys with build; bind here so flags of the command
	// that runs win.
	_ = viper.BindPFlag("entries", cmd.Flags().Lookup("entry"))

	root, err := filepath.Abs(viper.GetString("package"))
	if err != nil {
		return fmt.Errorf("invalid package directory: %w", err)
	}
	c, err := config.Load(viper.GetViper(), root)
	if err != nil {
		return err
	}
	if len(c.Entries) == 0 {
		return fmt.Errorf("no entries: pass --entry or set entries in sheaf.yaml")
	}
	c.Hot = true

	log, err := logging.New(c.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	outDir := config.Abs(root, c.OutDir)
	if c.PublicPath == "" {
		c.PublicPath = publicPath(root, outDir)
	}

	out := bundle.NewFileOutput(osfs, outDir, c.AssetsDir, bundle.HashAssets)
	project, closeAll, err := c.Project(osfs, root, out, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeAll() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(devserver.Options{FS: osfs, Root: root, Logger: log})

	results, err := project.Build(ctx)
	if err != nil {
		log.Error("build failed", zap.Error(err))
	}
	if results == nil {
		return fmt.Errorf("initial build failed")
	}
	publish(srv, results)

	delay, _ := cmd.Flags().GetDuration("delay")
	w, err := watch.New(delay, log)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()
	if err := w.Set(project.WatchFiles()); err != nil {
		log.Warn("some files are not watched", zap.Error(err))
	}

	go func() {
		_ = w.Run(ctx, func(paths []string) {
			rebuild(ctx, project, srv, w, log, paths)
		})
	}()

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	log.Info("serving", zap.String("url", "http://"+addr+"/"), zap.String("root", root))
	return srv.ListenAndServe(ctx, addr)
}

func rebuild(ctx context.Context, project *sheafbuild.Project, srv *devserver.Server, w *watch.Watcher, log *zap.Logger, paths []string) {
	start := time.Now()
	results, err := project.Rebuild(ctx, paths)
	if err != nil {
		log.Error("rebuild failed", zap.Strings("changed", paths), zap.Error(err))
	}
	if results == nil {
		return
	}
	publish(srv, results)
	for _, r := range results {
		if err := srv.Broadcast(devserver.Update{
			Entry:   r.Entry,
			URL:     r.Artifact.URL,
			Modules: r.Artifact.Modules,
		}); err != nil {
			log.Warn("broadcast failed", zap.Error(err))
		}
	}
	if err := w.Set(project.WatchFiles()); err != nil {
		log.Warn("some files are not watched", zap.Error(err))
	}
	log.Info("rebuilt",
		zap.Strings("changed", paths),
		zap.Int("entries", len(results)),
		zap.Duration("took", time.Since(start)))
}

func publish(srv *devserver.Server, results []sheafbuild.EntryResult) {
	var (
		urls    []string
		runtime strings.Builder
	)
	for _, r := range results {
		urls = append(urls, r.Artifact.URL)
		runtime.WriteString(r.Artifact.RuntimeCode)
	}
	srv.Update(urls, runtime.String())
}

// publicPath is the URL path outDir is served at, or "/" when it lies
// outside the package directory.
func publicPath(root, outDir string) string {
	rel, err := filepath.Rel(root, outDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "/"
	}
	return "/" + filepath.ToSlash(rel) + "/"
}
