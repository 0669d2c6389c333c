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
	"errors"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Normalize reprints src in compact form: insignificant whitespace and
// comments are dropped (except /*! ... */ comments at the top level),
// declarations are joined with ';' and the last one in a block loses its
// trailing semicolon. String, url() and custom property values are kept
// verbatim.
//
// Errors inside a block, such as nested rules the parser does not
// understand, are printed as written. A parse error at the top level
// returns a *SyntaxError.
func Normalize(src string) (string, error) {
	p := css.NewParser(parse.NewInputString(src), false)

	var out strings.Builder
	out.Grow(len(src))

	depth := 0
	needSemi := false
	sep := func() {
		if needSemi {
			out.WriteByte(';')
			needSemi = false
		}
	}

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if !p.HasParseError() {
				if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
					return "", err
				}
				return out.String(), nil
			}
			if depth == 0 {
				return "", syntaxError(src, p)
			}
			sep()
			raw := tokensText(p.Values())
			out.WriteString(raw)
			needSemi = !strings.HasSuffix(raw, ";")

		case css.CommentGrammar:
			if bytes.HasPrefix(data, []byte("/*!")) {
				out.Write(data)
			}

		case css.AtRuleGrammar:
			sep()
			out.Write(data)
			writeValues(&out, p.Values())
			out.WriteByte(';')

		case css.BeginAtRuleGrammar:
			sep()
			out.Write(data)
			writeValues(&out, p.Values())
			out.WriteByte('{')
			depth++

		case css.BeginRulesetGrammar:
			sep()
			writeValues(&out, p.Values())
			out.WriteByte('{')
			depth++

		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			needSemi = false
			out.WriteByte('}')
			depth--

		case css.DeclarationGrammar:
			sep()
			out.Write(data)
			out.WriteByte(':')
			writeValues(&out, p.Values())
			needSemi = true

		case css.CustomPropertyGrammar:
			sep()
			out.Write(data)
			out.WriteByte(':')
			for _, v := range p.Values() {
				out.Write(bytes.TrimSpace(v.Data))
			}
			needSemi = true

		case css.TokenGrammar:
			out.Write(data)
		}
	}
}

// writeValues prints grammar values, which the parser has already
// reduced to significant whitespace.
func writeValues(out *strings.Builder, values []css.Token) {
	for _, v := range values {
		out.Write(v.Data)
	}
}

func tokensText(values []css.Token) string {
	var b strings.Builder
	writeValues(&b, values)
	return strings.TrimSpace(b.String())
}

func syntaxError(src string, p *css.Parser) error {
	msg := "parse error"
	var perr *parse.Error
	if errors.As(p.Err(), &perr) {
		msg = perr.Message
		return &SyntaxError{Line: perr.Line, Column: perr.Column - 1, Msg: msg}
	}
	off := min(p.Offset(), len(src))
	line := strings.Count(src[:off], "\n") + 1
	col := off - (strings.LastIndexByte(src[:off], '\n') + 1)
	return &SyntaxError{Line: line, Column: col, Msg: msg}
}
