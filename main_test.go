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
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/cmd/build"
)

func TestMain(m *testing.M) {
	// Build the binary before running tests
	wd := mustGetwd()
	cmd := exec.Command("go", "build", "-o", "sheaf_test", ".")
	cmd.Dir = wd
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build test binary: " + err.Error() + "\n" + string(out))
	}
	code := m.Run()
	_ = os.Remove(filepath.Join(wd, "sheaf_test"))
	os.Exit(code)
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	binary := filepath.Join(mustGetwd(), "sheaf_test")
	cmd := exec.Command(binary, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("Failed to run CLI: %v", err)
		}
	}

	return stdout, stderr, exitCode
}

// siteCopy copies the CLI fixture site to a temporary directory, so builds
// do not write into testdata.
func siteCopy(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "site")
	if err := os.CopyFS(dir, os.DirFS(filepath.Join("testdata", "cli", "site"))); err != nil {
		t.Fatalf("Failed to copy fixture: %v", err)
	}
	return dir
}

func buildSite(t *testing.T, dir string, args ...string) build.Report {
	t.Helper()
	args = append([]string{"build", "--package", dir, "--entry", "index.html", "--format", "json"}, args...)
	stdout, stderr, code := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	var report build.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\nstdout: %s", err, stdout)
	}
	return report
}

func TestBuild(t *testing.T) {
	dir := siteCopy(t)
	report := buildSite(t, dir)

	if len(report.Entries) != 1 {
		t.Fatalf("Expected one entry, got %+v", report.Entries)
	}
	entry := report.Entries[0]
	if entry.Entry != "index.html" || entry.Modules != 2 || entry.Assets != 1 {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if !strings.HasPrefix(entry.URL, "/dist/assets/styles-") {
		t.Errorf("Expected a hashed URL under the public path, got %q", entry.URL)
	}

	css, err := os.ReadFile(filepath.Join(dir, "dist", filepath.FromSlash(entry.Stylesheet)))
	if err != nil {
		t.Fatalf("Expected the stylesheet on disk: %v", err)
	}
	if !strings.Contains(string(css), `url("/dist/assets/logo-`) || !strings.HasSuffix(string(css), "article{padding:1rem}\n") {
		t.Errorf("Unexpected stylesheet:\n%s", css)
	}
}

func TestBuildManifest(t *testing.T) {
	dir := siteCopy(t)
	report := buildSite(t, dir)

	data, err := os.ReadFile(filepath.Join(dir, "dist", bundle.ManifestFileName))
	if err != nil {
		t.Fatalf("Expected a manifest: %v", err)
	}
	var manifest bundle.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("Failed to parse manifest: %v", err)
	}
	if manifest.Entries["index.html"].URL != report.Entries[0].URL {
		t.Errorf("Expected the manifest to agree with the report, got %+v", manifest.Entries)
	}
}

func TestBuildHotKeepsStylesheetName(t *testing.T) {
	dir := siteCopy(t)
	if err := os.WriteFile(filepath.Join(dir, "sheaf.yaml"), []byte("publicPath: /dist/\nhot: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	report := buildSite(t, dir)
	if got := report.Entries[0].Stylesheet; got != "assets/styles.css" {
		t.Errorf("Expected an unhashed stylesheet for hot builds, got %q", got)
	}
}

func TestBuildTextOutputFile(t *testing.T) {
	dir := siteCopy(t)
	reportFile := filepath.Join(t.TempDir(), "report.txt")

	stdout, stderr, code := runCLI(t, "build", "-p", dir, "--entry", "index.html", "--output", reportFile)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("Expected no stdout when writing to file, got: %s", stdout)
	}
	data, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("Expected the report file: %v", err)
	}
	if !strings.HasPrefix(string(data), "index.html -> assets/styles-") {
		t.Errorf("Unexpected report:\n%s", data)
	}
}

func TestBuildNoEntries(t *testing.T) {
	_, stderr, code := runCLI(t, "build", "--package", siteCopy(t))
	if code == 0 {
		t.Error("Expected non-zero exit code without entries")
	}
	if !strings.Contains(stderr, "no entries") {
		t.Errorf("Expected 'no entries' error, got: %s", stderr)
	}
}

func TestBuildInvalidConfig(t *testing.T) {
	dir := siteCopy(t)
	if err := os.WriteFile(filepath.Join(dir, "sheaf.yaml"), []byte("stages: [stylus]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, stderr, code := runCLI(t, "build", "--package", dir, "--entry", "index.html")
	if code == 0 {
		t.Error("Expected non-zero exit code for an invalid config")
	}
	if !strings.Contains(stderr, "stages:") {
		t.Errorf("Expected the invalid key in the error, got: %s", stderr)
	}
}

func TestInject(t *testing.T) {
	dir := siteCopy(t)
	report := buildSite(t, dir)

	stdout, stderr, code := runCLI(t, "inject", "--package", dir, "--glob", filepath.Join(dir, "**", "*.html"))
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Injected: 2 files modified (0 updated, 2 new)") {
		t.Errorf("Unexpected summary: %s", stdout)
	}

	page, err := os.ReadFile(filepath.Join(dir, "pages", "about.html"))
	if err != nil {
		t.Fatal(err)
	}
	link := `<link rel="stylesheet" data-sheaf href="` + report.Entries[0].URL + `">`
	if !strings.Contains(string(page), link) {
		t.Errorf("Expected %s in:\n%s", link, page)
	}

	stdout, _, _ = runCLI(t, "inject", "--package", dir, "--glob", filepath.Join(dir, "**", "*.html"))
	if !strings.Contains(stdout, "0 files modified") {
		t.Errorf("Expected a second run to change nothing: %s", stdout)
	}
}

func TestInjectDryRun(t *testing.T) {
	dir := siteCopy(t)
	buildSite(t, dir)
	before, _ := os.ReadFile(filepath.Join(dir, "index.html"))

	stdout, stderr, code := runCLI(t, "inject", "-p", dir, "--glob", filepath.Join(dir, "*.html"), "--dry-run")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "would insert into") {
		t.Errorf("Expected a dry-run line, got: %s", stdout)
	}
	after, _ := os.ReadFile(filepath.Join(dir, "index.html"))
	if !bytes.Equal(before, after) {
		t.Error("Expected dry run to leave the file alone")
	}
}

func TestInjectMissingManifest(t *testing.T) {
	dir := siteCopy(t)
	_, stderr, code := runCLI(t, "inject", "-p", dir, "--glob", filepath.Join(dir, "*.html"))
	if code == 0 {
		t.Error("Expected non-zero exit code without a manifest")
	}
	if !strings.Contains(stderr, "reading manifest") {
		t.Errorf("Expected a manifest error, got: %s", stderr)
	}
}

func TestInjectMissingGlob(t *testing.T) {
	_, stderr, code := runCLI(t, "inject")
	if code == 0 {
		t.Error("Expected non-zero exit code without --glob")
	}
	if !strings.Contains(stderr, "--glob is required") {
		t.Errorf("Expected glob error, got: %s", stderr)
	}
}

func TestVersionJSON(t *testing.T) {
	stdout, stderr, code := runCLI(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if info["version"] == "" || info["goVersion"] == "" {
		t.Errorf("Unexpected version info %v", info)
	}
}

func TestHelp(t *testing.T) {
	stdout, _, code := runCLI(t, "--help")
	if code != 0 {
		t.Fatalf("Expected exit code 0 for help, got %d", code)
	}

	expectedStrings := []string{
		"sheaf",
		"build",
		"serve",
		"inject",
		"--package",
		"--output",
		"--log-level",
	}

	for _, s := range expectedStrings {
		if !strings.Contains(stdout, s) {
			t.Errorf("Expected %q in help output", s)
		}
	}
}

func TestServeHelp(t *testing.T) {
	stdout, _, code := runCLI(t, "serve", "--help")
	if code != 0 {
		t.Fatalf("Expected exit code 0 for help, got %d", code)
	}
	for _, s := range []string{"--entry", "--port", "--delay"} {
		if !strings.Contains(stdout, s) {
			t.Errorf("Expected %q in serve help output", s)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, code := runCLI(t, "unknown")
	if code == 0 {
		t.Error("Expected non-zero exit code for unknown command")
	}

	if !strings.Contains(stderr, "unknown command") {
		t.Errorf("Expected 'unknown command' error, got: %s", stderr)
	}
}
