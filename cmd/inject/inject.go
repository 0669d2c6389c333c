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

// Package inject provides the inject command for sheaf.
package inject

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/inject"
	"bennypowers.dev/sheaf/internal/config"
)

// Cmd is the inject command.
var Cmd = &cobra.Command{
	Use:   "inject",
	Short: "Link built stylesheets from HTML files in-place",
	Long: `Insert or update the stylesheet links of HTML files from a build manifest.

Links written by inject carry a data-sheaf attribute. They are replaced on
every run; other links are left alone. A page that was itself a build entry
links only its own stylesheet, any other page links every stylesheet in the
manifest.`,
	Example: `  # Link the stylesheets of the last build into every page
  sheaf inject --glob "_site/**/*.html"

  # Use another manifest
  sheaf inject --glob "_site/**/*.html" --manifest public/css/manifest.json

  # Dry run to see what would change
  sheaf inject --glob "_site/**/*.html" --dry-run`,
	RunE: run,
}

func init() {
	Cmd.Flags().String("glob", "", "Glob pattern to match HTML files (required)")
	Cmd.Flags().String("manifest", "", "Build manifest (default: <outDir>/manifest.json)")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of parallel workers (default: number of CPUs)")
	Cmd.Flags().Bool("dry-run", false, "Show what would change without modifying files")
	Cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
}

func run(cmd *cobra.Command, args []string) error {
	start := time.Now()
	osfs := fs.NewOSFileSystem()

	absRoot, err := filepath.Abs(viper.GetString("package"))
	if err != nil {
		return fmt.Errorf("invalid package directory: %w", err)
	}

	globPattern, _ := cmd.Flags().GetString("glob")
	if globPattern == "" {
		return fmt.Errorf("--glob is required")
	}

	manifestPath, _ := cmd.Flags().GetString("manifest")
	if manifestPath == "" {
		c, err := config.Load(viper.GetViper(), absRoot)
		if err != nil {
			return err
		}
		manifestPath = filepath.Join(config.Abs(absRoot, c.OutDir), bundle.ManifestFileName)
	}
	manifest, err := bundle.ReadManifest(osfs, manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	matches, err := doublestar.FilepathGlob(globPattern)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}

	if len(matches) == 0 {
		fmt.Fprintln(os.Stderr, "Warning: no files matched the glob pattern")
		return nil
	}

	// Deduplicate by absolute path
	seen := make(map[string]struct{})
	var files []string
	for _, match := range matches {
		absPath, err := filepath.Abs(match)
		if err != nil {
			return fmt.Errorf("invalid file path %q: %w", match, err)
		}
		if _, exists := seen[absPath]; !exists {
			seen[absPath] = struct{}{}
			files = append(files, absPath)
		}
	}

	parallel, _ := cmd.Flags().GetInt("jobs")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	format, _ := cmd.Flags().GetString("format")

	results := inject.InjectBatch(osfs, files, inject.Options{
		Manifest: manifest,
		Root:     absRoot,
		Parallel: parallel,
		DryRun:   dryRun,
	})

	var stats inject.Stats
	stats.Total = len(files)

	encoder := json.NewEncoder(os.Stdout)
	for result := range results {
		stats.Add(result)
		switch {
		case result.Error != "":
			if format == "json" {
				_ = encoder.Encode(result)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s: %s\n", result.File, result.Error)
			}
		case result.Modified:
			if format == "json" {
				_ = encoder.Encode(result)
			} else if dryRun {
				action := "would update"
				if result.Inserted {
					action = "would insert into"
				}
				fmt.Printf("%s %s\n", action, result.File)
			}
		}
	}
	stats.Duration = time.Since(start).Milliseconds()

	if format == "text" {
		if dryRun {
			fmt.Printf("\nDry run: %d files would be modified (%d updated, %d new), %d unchanged, %d errors\n",
				stats.Updated+stats.Inserted, stats.Updated, stats.Inserted, stats.Skipped, stats.Errors)
		} else {
			fmt.Printf("Injected: %d files modified (%d updated, %d new), %d unchanged, %d errors\n",
				stats.Updated+stats.Inserted, stats.Updated, stats.Inserted, stats.Skipped, stats.Errors)
		}
	} else {
		statsJSON, _ := json.Marshal(stats)
		fmt.Println(string(statsJSON))
	}

	if stats.Errors == stats.Total {
		return fmt.Errorf("all %d files failed", stats.Errors)
	}

	return nil
}
