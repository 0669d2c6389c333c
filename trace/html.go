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
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractScripts parses HTML content and returns its script tags in
// document order. Imports of inline scripts are extracted best-effort;
// classic scripts contribute only their dynamic imports, and data scripts
// such as import maps none.
func ExtractScripts(content []byte) ([]ScriptTag, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var scripts []ScriptTag
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Script {
			continue
		}
		script := ScriptTag{
			Type: attr(n, "type"),
			Src:  attr(n, "src"),
		}
		if script.Src == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			if text := strings.TrimSpace(n.FirstChild.Data); text != "" {
				script.Content = text
				script.Inline = true
			}
		}
		if script.Inline && isJavaScript(script.Type) {
			imports, _ := ExtractImports([]byte(script.Content))
			for _, imp := range imports {
				if script.Type == "module" || imp.IsDynamic {
					script.Imports = append(script.Imports, imp.Specifier)
				}
			}
		}
		scripts = append(scripts, script)
	}
	return scripts, nil
}

// isJavaScript reports whether a script type attribute names a script
// whose imports run, rather than data such as an import map.
func isJavaScript(typ string) bool {
	switch strings.ToLower(typ) {
	case "", "module", "text/javascript", "application/javascript":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
