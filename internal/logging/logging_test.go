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
package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("quiet")
	log.Warn("asset not found", zap.String("path", "/src/gone.png"))
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("Expected info to be filtered at warn level")
	}
	for _, want := range []string{"WARN", "sheaf", "asset not found", "/src/gone.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no color codes for a non-terminal writer")
	}
}

func TestNew_Levels(t *testing.T) {
	for _, level := range Levels {
		if _, err := New(level, &bytes.Buffer{}); err != nil {
			t.Errorf("New(%q) failed: %v", level, err)
		}
	}
	if _, err := New("loud", &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown level")
	}

	var buf bytes.Buffer
	log, _ := New("none", &buf)
	log.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected no output at level none, got %q", buf.String())
	}
}
