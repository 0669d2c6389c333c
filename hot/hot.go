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

// Package hot generates the browser code that swaps an emitted stylesheet
// in place when its sources change.
//
// A page has one session, installed as window.__sheafHot by the first
// runtime snippet that runs. Each artifact registers its address with it.
// Stylesheet modules carry acceptance code that calls reload() when the
// host reports an update.
package hot

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("hot").Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

// API names the host's update-acceptance convention.
type API string

const (
	// APIModule is the module.hot convention.
	APIModule API = "module"
	// APIESM is the import.meta.hot convention.
	APIESM API = "esm"
)

// ParseAPI validates an API name. The empty string means APIModule.
func ParseAPI(name string) (API, error) {
	switch API(name) {
	case "", APIModule:
		return APIModule, nil
	case APIESM:
		return APIESM, nil
	}
	return "", fmt.Errorf("unknown hot api %q (want %q or %q)", name, APIModule, APIESM)
}

// EventType is the server-sent event name the client listens for.
const EventType = "dev.sheaf.artifact.updated"

// RuntimeCode returns code that installs the page session, if needed, and
// registers address with it.
func RuntimeCode(address string) string {
	return render("runtime.js.tmpl", struct{ Address string }{address})
}

// ModuleCode returns the code that replaces a stylesheet module's output
// when hot replacement is enabled.
func ModuleCode(api API) string {
	return render("module.js.tmpl", struct{ API API }{api})
}

// ClientCode returns an EventSource client for eventsURL that reloads the
// session's stylesheets on every update event. Pages without a session
// are reloaded in full.
func ClientCode(eventsURL string) string {
	return render("client.js.tmpl", struct{ EventsURL, EventType string }{eventsURL, EventType})
}

func render(name string, data any) string {
	var buf bytes.Buffer
	// Embedded templates over string data; an error is a bug.
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		panic(fmt.Sprintf("hot: %s: %v", name, err))
	}
	return buf.String()
}
