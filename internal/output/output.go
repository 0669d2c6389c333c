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

// Package output provides shared output utilities for sheaf CLI commands.
package output

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"bennypowers.dev/sheaf/fs"
)

// Print writes text to the file named by viper's "output" key, or to
// stdout when it is unset.
func Print(fsys fs.FileSystem, text string) error {
	if outputPath := viper.GetString("output"); outputPath != "" {
		return fsys.WriteFile(outputPath, []byte(text+"\n"), 0644)
	}
	fmt.Println(text)
	return nil
}

// JSON prints v as indented JSON.
func JSON(fsys fs.FileSystem, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return Print(fsys, string(data))
}
