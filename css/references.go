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
package css

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Reference is a quoted url("...") occurrence in a stylesheet.
type Reference struct {
	// Value is the unescaped text between the quotes.
	Value string
	// Start and End delimit the raw quoted content (quotes excluded) as
	// byte offsets into the scanned source.
	Start, End int
	// Line (1-based) and Column (0-based) locate the url( token, in the
	// coordinates a source map's generated positions use.
	Line   int
	Column int
}

// References lexes src and returns every quoted url() reference in
// document order. Unquoted url(...) tokens are not returned.
//
// A stylesheet with an unterminated string, a bad url() token or
// unbalanced braces is malformed and yields a *SyntaxError.
func References(src string) ([]Reference, error) {
	l := css.NewLexer(parse.NewInputString(src))

	var refs []Reference
	offset, line, col := 0, 1, 0
	depth := 0

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}

		switch tt {
		case css.BadStringToken:
			return nil, &SyntaxError{Line: line, Column: col, Msg: "unterminated string"}
		case css.BadURLToken:
			return nil, &SyntaxError{Line: line, Column: col, Msg: "bad url() token"}
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
			if depth < 0 {
				return nil, &SyntaxError{Line: line, Column: col, Msg: "unexpected '}'"}
			}
		case css.URLToken:
			if ref, ok := quotedURL(data); ok {
				ref.Start += offset
				ref.End += offset
				ref.Line = line
				ref.Column = col
				refs = append(refs, ref)
			}
		}

		offset += len(data)
		if n := bytes.Count(data, []byte{'\n'}); n > 0 {
			line += n
			col = len(data) - bytes.LastIndexByte(data, '\n') - 1
		} else {
			col += len(data)
		}
	}

	if depth > 0 {
		return nil, &SyntaxError{Line: line, Column: col, Msg: "unexpected end of stylesheet, missing '}'"}
	}
	return refs, nil
}

// quotedURL extracts the quoted argument of a url(...) token.
// Offsets in the returned Reference are relative to data.
func quotedURL(data []byte) (Reference, bool) {
	open := bytes.IndexByte(data, '(')
	if open < 0 {
		return Reference{}, false
	}
	i := open + 1
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	if i >= len(data) || (data[i] != '"' && data[i] != '\'') {
		return Reference{}, false
	}
	quote := data[i]
	start := i + 1
	end := start
	for end < len(data) && data[end] != quote {
		if data[end] == '\\' {
			end++
		}
		end++
	}
	if end > len(data) {
		end = len(data)
	}
	return Reference{
		Value: unescape(string(data[start:end])),
		Start: start,
		End:   end,
	}, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// unescape resolves CSS string escapes: \X for a literal character, \hex
// for a code point, and an escaped newline for a line continuation.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		if s[i] == '\n' {
			continue
		}
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j == i {
			b.WriteByte(s[i])
			continue
		}
		r, err := strconv.ParseUint(s[i:j], 16, 32)
		if err != nil || r == 0 || r > 0x10FFFF {
			r = 0xFFFD
		}
		b.WriteRune(rune(r))
		if j < len(s) && isSpace(s[j]) {
			j++
		}
		i = j - 1
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
