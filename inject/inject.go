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

// Package inject writes the stylesheet links recorded in a build manifest
// into HTML files. Links it owns carry a data-sheaf attribute; they are
// updated in place, or inserted before </head> when absent.
package inject

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	xhtml "golang.org/x/net/html"

	"bennypowers.dev/sheaf/bundle"
	"bennypowers.dev/sheaf/fs"
)

// Attr marks the link tags inject manages.
const Attr = "data-sheaf"

// Options configures the inject command.
type Options struct {
	// Manifest supplies the stylesheet URLs.
	Manifest *bundle.Manifest
	// Root is the directory manifest entries are relative to. A page that
	// is itself an entry gets only that entry's stylesheet; other pages
	// get every stylesheet in the manifest.
	Root string
	// Parallel is the number of parallel workers for batch mode.
	Parallel int
	// DryRun prevents writing files when true.
	DryRun bool
}

// Result holds the result of injecting into a single file.
type Result struct {
	File     string `json:"file"`
	Modified bool   `json:"modified"`
	Inserted bool   `json:"inserted,omitempty"` // true if links were added, false if replaced
	Error    string `json:"error,omitempty"`
}

// Stats holds aggregate statistics from an inject operation.
type Stats struct {
	Total    int   `json:"total"`
	Updated  int   `json:"updated"`
	Inserted int   `json:"inserted"`
	Skipped  int   `json:"skipped"`
	Errors   int   `json:"errors"`
	Duration int64 `json:"duration_ms"`
}

// Add counts r.
func (s *Stats) Add(r Result) {
	switch {
	case r.Error != "":
		s.Errors++
	case r.Modified && r.Inserted:
		s.Inserted++
	case r.Modified:
		s.Updated++
	default:
		s.Skipped++
	}
}

// InjectBatch injects links into multiple HTML files in parallel.
func InjectBatch(fsys fs.FileSystem, files []string, opts Options) <-chan Result {
	results := make(chan Result, len(files))

	go func() {
		defer close(results)

		if opts.Manifest == nil {
			for _, file := range files {
				results <- Result{File: file, Error: "no manifest"}
			}
			return
		}

		parallel := opts.Parallel
		if parallel <= 0 {
			parallel = runtime.NumCPU()
		}

		jobs := make(chan string, len(files))
		var wg sync.WaitGroup
		for range parallel {
			wg.Go(func() {
				for htmlFile := range jobs {
					results <- injectFile(fsys, htmlFile, opts)
				}
			})
		}
		for _, file := range files {
			jobs <- file
		}
		close(jobs)
		wg.Wait()
	}()

	return results
}

func injectFile(fsys fs.FileSystem, htmlFile string, opts Options) Result {
	result := Result{File: htmlFile}

	content, err := fsys.ReadFile(htmlFile)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	newContent, inserted, err := Links(content, urlsFor(opts, htmlFile))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if bytes.Equal(newContent, content) {
		return result
	}

	result.Modified = true
	result.Inserted = inserted
	if !opts.DryRun {
		if err := fsys.WriteFile(htmlFile, newContent, 0644); err != nil {
			result.Error = err.Error()
		}
	}
	return result
}

func urlsFor(opts Options, htmlFile string) []string {
	if opts.Root != "" {
		if rel, err := filepath.Rel(opts.Root, htmlFile); err == nil {
			if e, ok := opts.Manifest.Entries[filepath.ToSlash(rel)]; ok {
				return []string{e.URL}
			}
		}
	}
	return opts.Manifest.URLs()
}

// Tag renders the link for url.
func Tag(url string) string {
	return `<link rel="stylesheet" ` + Attr + ` href="` + xhtml.EscapeString(url) + `">`
}

type span struct{ start, end int }

type scan struct {
	links   []span
	headEnd int // offset of </head>, or -1
}

func scanHTML(content []byte) (scan, error) {
	s := scan{headEnd: -1}
	z := xhtml.NewTokenizer(bytes.NewReader(content))
	offset := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return s, nil
			}
			return s, z.Err()
		}
		start := offset
		offset += len(z.Raw())

		switch tt {
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "link" {
				continue
			}
			for hasAttr {
				var key []byte
				key, _, hasAttr = z.TagAttr()
				if string(key) == Attr {
					s.links = append(s.links, span{start, offset})
					break
				}
			}
		case xhtml.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" && s.headEnd < 0 {
				s.headEnd = start
			}
		}
	}
}

// lineIndent returns the offset of the line containing pos and its
// indentation, and whether only whitespace precedes pos on that line.
func lineIndent(content []byte, pos int) (lineStart int, indent string, alone bool) {
	lineStart = bytes.LastIndexByte(content[:pos], '\n') + 1
	prefix := content[lineStart:pos]
	trimmed := bytes.TrimLeft(prefix, " \t")
	return lineStart, string(prefix[:len(prefix)-len(trimmed)]), len(trimmed) == 0
}

// Links returns content with its managed links set to urls, and whether
// the links were newly inserted. Existing managed links are replaced at
// the position of the first one; the rest are removed.
func Links(content []byte, urls []string) ([]byte, bool, error) {
	s, err := scanHTML(content)
	if err != nil {
		return nil, false, err
	}

	if len(s.links) > 0 {
		first := s.links[0]
		_, indent, alone := lineIndent(content, first.start)
		sep := "\n" + indent
		if !alone {
			sep = ""
		}
		tags := make([]string, len(urls))
		for i, u := range urls {
			tags[i] = Tag(u)
		}

		var out bytes.Buffer
		out.Write(content[:first.start])
		out.WriteString(strings.Join(tags, sep))
		prev := first.end
		for _, l := range s.links[1:] {
			start, end := l.start, l.end
			if ls, _, alone := lineIndent(content, start); alone {
				start = ls
				if end < len(content) && content[end] == '\n' {
					end++
				}
			}
			// The previous newline already ends the kept line.
			if start < prev {
				start = prev
			}
			out.Write(content[prev:start])
			prev = end
		}
		out.Write(content[prev:])
		return out.Bytes(), false, nil
	}

	if len(urls) == 0 {
		return content, false, nil
	}
	if s.headEnd < 0 {
		return nil, false, fmt.Errorf("could not find insertion point (no </head> tag)")
	}

	var tags strings.Builder
	insertAt := s.headEnd
	lineStart, indent, alone := lineIndent(content, s.headEnd)
	if alone {
		insertAt = lineStart
		for _, u := range urls {
			tags.WriteString(indent + "  " + Tag(u) + "\n")
		}
	} else {
		for _, u := range urls {
			tags.WriteString(Tag(u))
		}
	}

	var out bytes.Buffer
	out.Write(content[:insertAt])
	out.WriteString(tags.String())
	out.Write(content[insertAt:])
	return out.Bytes(), true, nil
}
