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

// Package css scans stylesheets for url() references and prints them in
// compact form. It is built on the tdewolff/parse CSS lexer and grammar
// parser; it does not validate property names or values.
package css

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every SyntaxError.
var ErrMalformed = errors.New("malformed stylesheet")

// SyntaxError reports where a stylesheet could not be parsed.
type SyntaxError struct {
	Line   int // 1-based
	Column int // 0-based, in bytes
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformed
}

// IsDataURI reports whether a url() value is an inline data URI.
func IsDataURI(value string) bool {
	v := strings.TrimSpace(value)
	return len(v) >= 5 && strings.EqualFold(v[:5], "data:")
}
