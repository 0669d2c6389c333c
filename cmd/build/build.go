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

// Package build provides the build command for sheaf.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	sheafbuild "bennypowers.dev/sheaf/build"
	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/internal/config"
	"bennypowers.dev/sheaf/internal/logging"
	"bennypowers.dev/sheaf/internal/output"
	"bennypowers.dev/sheaf/internal/version"
)

// Cmd is the build command.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the stylesheets reached from each entry",
	Long: `Trace each entry (an HTML page or a JavaScript module) for the stylesheets
it imports, run them through the configured stages, and write one stylesheet
artifact per entry, with the assets it references, to the output directory.

A manifest.json mapping entries to their artifacts is written alongside.`,
	Example: `  # Build the stylesheets imported by a page
  sheaf build --entry index.html

  # Several entries, custom output directory and public path
  sheaf build --entry src/app.js --entry src/admin.js --out public/css --public-path /css/

  # Machine-readable report
  sheaf build --entry index.html --format json`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringSlice("entry", nil, "Entry file, relative to the package directory (repeatable)")
	Cmd.Flags().String("out", "", "Output directory (default: dist)")
	Cmd.Flags().String("public-path", "", "Prefix for emitted URLs")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of parallel transforms (default: unlimited)")
	Cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")

	_ = viper.BindPFlag("entries", Cmd.Flags().Lookup("entry"))
	_ = viper.BindPFlag("outDir", Cmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("publicPath", Cmd.Flags().Lookup("public-path"))
	_ = viper.BindPFlag("jobs", Cmd.Flags().Lookup("jobs"))
}

// Report summarizes a build.
type Report struct {
	Version  string        `json:"version"`
	OutDir   string        `json:"outDir"`
	Entries  []ReportEntry `json:"entries"`
	Duration int64         `json:"duration_ms"`
}

// ReportEntry summarizes one entry's artifact.
type ReportEntry struct {
	Entry      string   `json:"entry"`
	Stylesheet string   `json:"stylesheet"`
	URL        string   `json:"url"`
	Modules    int      `json:"modules"`
	Assets     int      `json:"assets"`
	Warnings   []string `json:"warnings,omitempty"`
}

func run(cmd *cobra.Command, args []string) error {
	start := time.Now()
	osfs := fs.NewOSFileSystem()

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}

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

	log, err := logging.New(c.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	outDir := config.Abs(root, c.OutDir)
	// A hot runtime matches its link by address, so the stylesheet name
	// must survive rebuilds.
	naming := bundle.HashAll
	if c.Hot {
		naming = bundle.HashAssets
	}
	out := bundle.NewFileOutput(osfs, outDir, c.AssetsDir, naming)
	project, closeAll, err := c.Project(osfs, root, out, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeAll() }()

	results, err := project.Build(cmd.Context())
	if err != nil {
		log.Error("build failed", zap.Error(err))
		return fmt.Errorf("build failed")
	}

	if err := sheafbuild.Manifest(results).Write(osfs, outDir); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	report := Report{
		Version:  version.GetVersion(),
		OutDir:   outDir,
		Duration: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		entry := ReportEntry{
			Entry:      r.Entry,
			Stylesheet: r.Artifact.Address,
			URL:        r.Artifact.URL,
			Modules:    len(r.Artifact.Modules),
			Assets:     len(r.Artifact.Assets),
		}
		for _, e := range r.TraceErrors {
			entry.Warnings = append(entry.Warnings, e.Error())
		}
		report.Entries = append(report.Entries, entry)
	}

	if format == "json" {
		return output.JSON(osfs, report)
	}
	return output.Print(osfs, formatText(report))
}

func formatText(r Report) string {
	var b strings.Builder
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%s -> %s (%d modules, %d assets)\n", e.Entry, e.Stylesheet, e.Modules, e.Assets)
		for _, w := range e.Warnings {
			fmt.Fprintf(&b, "  warning: %s\n", w)
		}
	}
	fmt.Fprintf(&b, "Built %d entries into %s in %dms", len(r.Entries), r.OutDir, r.Duration)
	return b.String()
}
