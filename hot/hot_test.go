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
package hot

import (
	"regexp"
	"strings"
	"testing"

	"github.com/dop251/goja"
)

// fakeDOM is just enough of a browser for the runtime: a head element
// holding links, animation frames that only run when flushed, and an
// EventSource that records its listeners.
const fakeDOM = `
var frames = [];
var nextFrame = 1;
function requestAnimationFrame(cb) {
    var id = nextFrame++;
    frames.push({ id: id, cb: cb });
    return id;
}
function cancelAnimationFrame(id) {
    frames = frames.filter(function (f) { return f.id !== id; });
}
function flushFrames() {
    var due = frames;
    frames = [];
    due.forEach(function (f) { f.cb(); });
}

function Element(tag) {
    this.tagName = tag;
    this.attrs = {};
    this.parentNode = null;
}
Element.prototype.getAttribute = function (name) {
    return Object.prototype.hasOwnProperty.call(this.attrs, name) ? this.attrs[name] : null;
};
Element.prototype.setAttribute = function (name, value) {
    this.attrs[name] = String(value);
};
Object.defineProperty(Element.prototype, 'nextSibling', {
    get: function () {
        if (!this.parentNode) {
            return null;
        }
        var siblings = this.parentNode.children;
        var i = siblings.indexOf(this);
        return i + 1 < siblings.length ? siblings[i + 1] : null;
    }
});

var head = {
    children: [],
    insertBefore: function (node, ref) {
        var i = ref ? this.children.indexOf(ref) : -1;
        if (i === -1) {
            this.children.push(node);
        } else {
            this.children.splice(i, 0, node);
        }
        node.parentNode = this;
    },
    appendChild: function (node) {
        this.insertBefore(node, null);
    },
    removeChild: function (node) {
        var i = this.children.indexOf(node);
        if (i !== -1) {
            this.children.splice(i, 1);
        }
        node.parentNode = null;
    }
};

var document = {
    head: head,
    createElement: function (tag) { return new Element(tag); },
    querySelectorAll: function (tag) {
        return head.children.filter(function (el) { return el.tagName === tag; });
    }
};

function addLink(href, rel) {
    var link = document.createElement('link');
    link.setAttribute('rel', rel || 'stylesheet');
    link.setAttribute('href', href);
    head.appendChild(link);
    return link;
}

function hrefs() {
    return head.children.map(function (el) { return el.getAttribute('href'); });
}

var reloads = 0;
var location = { reload: function () { reloads++; } };

var sources = [];
function EventSource(url) {
    this.url = url;
    this.listeners = {};
    sources.push(this);
}
EventSource.prototype.addEventListener = function (type, fn) {
    this.listeners[type] = fn;
};
`

func newVM(t *testing.T) *goja.Runtime {
	t.Helper()
	vm := goja.New()
	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		t.Fatalf("Failed to set window: %v", err)
	}
	run(t, vm, fakeDOM)
	return vm
}

func run(t *testing.T, vm *goja.Runtime, code string) goja.Value {
	t.Helper()
	v, err := vm.RunString(code)
	if err != nil {
		t.Fatalf("Script failed: %v\n%s", err, code)
	}
	return v
}

func exportStrings(t *testing.T, vm *goja.Runtime, code string) []string {
	t.Helper()
	var out []string
	if err := vm.ExportTo(run(t, vm, code), &out); err != nil {
		t.Fatalf("Failed to export %s: %v", code, err)
	}
	return out
}

var cacheBusted = regexp.MustCompile(`^/assets/styles\.css\?\d+$`)

func TestRuntime_InstallsOnceAndRegistersIdempotently(t *testing.T) {
	vm := newVM(t)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "var first = window.__sheafHot;")
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, RuntimeCode("assets/other.css"))

	if !run(t, vm, "first === window.__sheafHot").ToBoolean() {
		t.Error("Expected the session to be installed once")
	}
	got := exportStrings(t, vm, "window.__sheafHot.addresses()")
	if len(got) != 2 || got[0] != "assets/styles.css" || got[1] != "assets/other.css" {
		t.Errorf("Expected each address registered once, got %v", got)
	}
}

func TestRuntime_ReloadSwapsAfterLoad(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `var old = addLink('/assets/styles.css');`)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); __sheafHot.reload(); __sheafHot.reload();")

	if n := run(t, vm, "frames.length").ToInteger(); n != 1 {
		t.Fatalf("Expected repeated reloads to coalesce into 1 frame, got %d", n)
	}
	run(t, vm, "flushFrames();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 2 {
		t.Fatalf("Expected old and new link during load, got %v", got)
	}
	if got[0] != "/assets/styles.css" || !cacheBusted.MatchString(got[1]) {
		t.Errorf("Expected new link right after the old one with a cache-busting query, got %v", got)
	}

	run(t, vm, "head.children[1].onload();")
	got = exportStrings(t, vm, "hrefs()")
	if len(got) != 1 || !cacheBusted.MatchString(got[0]) {
		t.Errorf("Expected only the new link after load, got %v", got)
	}
	if run(t, vm, "old.parentNode").Export() != nil {
		t.Error("Expected old link to be detached")
	}
}

func TestRuntime_ErrorKeepsOldLink(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `addLink('/assets/styles.css');`)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); flushFrames(); head.children[1].onerror();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 1 || got[0] != "/assets/styles.css" {
		t.Errorf("Expected the old link alone after a failed load, got %v", got)
	}
}

func TestRuntime_NoMatchingLink(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `addLink('/assets/mystyles.css'); addLink('/assets/styles.css', 'preload');`)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); flushFrames();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 2 || got[0] != "/assets/mystyles.css" || got[1] != "/assets/styles.css" {
		t.Errorf("Expected the document unchanged, got %v", got)
	}
}

func TestRuntime_NewestMatchingLinkSwapped(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `
		addLink('/assets/styles.css?v=1');
		addLink('/base.css');
		addLink('/assets/styles.css?v=2');
	`)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); flushFrames();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 4 {
		t.Fatalf("Expected one new link, got %v", got)
	}
	if got[0] != "/assets/styles.css?v=1" || got[2] != "/assets/styles.css?v=2" {
		t.Errorf("Expected older links untouched, got %v", got)
	}
	if !cacheBusted.MatchString(got[3]) {
		t.Errorf("Expected the replacement after the newest match, got %v", got)
	}
}

func TestRuntime_RootRelativeLinkMatchesAddress(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `addLink('/assets/styles.css'); addLink('/xassets/styles.css');`)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); flushFrames();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 3 {
		t.Fatalf("Expected one replacement link, got %v", got)
	}
	if got[0] != "/assets/styles.css" || !cacheBusted.MatchString(got[1]) || got[2] != "/xassets/styles.css" {
		t.Errorf("Expected the root-relative link swapped and the other left alone, got %v", got)
	}
}

func TestRuntime_ExactAddressMatch(t *testing.T) {
	vm := newVM(t)
	run(t, vm, `addLink('/static/assets/styles.css');`)
	run(t, vm, RuntimeCode("/static/assets/styles.css"))
	run(t, vm, "__sheafHot.reload(); flushFrames();")

	got := exportStrings(t, vm, "hrefs()")
	if len(got) != 2 || !strings.HasPrefix(got[1], "/static/assets/styles.css?") {
		t.Errorf("Expected public-path address to match, got %v", got)
	}
}

func TestRuntimeCode_EscapesAddress(t *testing.T) {
	addr := `a"b</script>.css`
	code := RuntimeCode(addr)
	if strings.Contains(code, "</script>") {
		t.Error("Expected the address to be escaped for inline scripts")
	}

	vm := newVM(t)
	run(t, vm, code)
	got := exportStrings(t, vm, "window.__sheafHot.addresses()")
	if len(got) != 1 || got[0] != addr {
		t.Errorf("Expected %q registered, got %v", addr, got)
	}
}

func TestModuleCode(t *testing.T) {
	vm := newVM(t)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, `
		var accepted = null, disposed = null;
		var module = { hot: {
			accept: function (fn) { accepted = fn; },
			dispose: function (fn) { disposed = fn; }
		} };
	`)
	run(t, vm, ModuleCode(APIModule))
	run(t, vm, "accepted();")
	if n := run(t, vm, "frames.length").ToInteger(); n != 1 {
		t.Errorf("Expected accept to schedule a reload, got %d frames", n)
	}
	if run(t, vm, "typeof disposed").String() != "function" {
		t.Error("Expected a dispose handler")
	}

	// Hosts without module.hot ignore the code.
	plain := newVM(t)
	run(t, plain, ModuleCode(APIModule))

	esm := ModuleCode(APIESM)
	if !strings.Contains(esm, "import.meta.hot.accept(") {
		t.Errorf("Expected import.meta.hot acceptance, got %q", esm)
	}
	if strings.Contains(esm, "module.hot") {
		t.Error("Expected esm code not to use module.hot")
	}
}

func TestClientCode(t *testing.T) {
	vm := newVM(t)
	run(t, vm, RuntimeCode("assets/styles.css"))
	run(t, vm, ClientCode("/__sheaf/events"))
	run(t, vm, ClientCode("/__sheaf/events"))

	if n := run(t, vm, "sources.length").ToInteger(); n != 1 {
		t.Fatalf("Expected a single EventSource, got %d", n)
	}
	if url := run(t, vm, "sources[0].url").String(); url != "/__sheaf/events" {
		t.Errorf("Unexpected events url %q", url)
	}

	run(t, vm, `sources[0].listeners['`+EventType+`']({
		data: JSON.stringify({ type: '`+EventType+`', data: { url: '/assets/new.css' } })
	});`)
	got := exportStrings(t, vm, "window.__sheafHot.addresses()")
	if len(got) != 2 || got[1] != "/assets/new.css" {
		t.Errorf("Expected event url registered, got %v", got)
	}
	if n := run(t, vm, "frames.length").ToInteger(); n != 1 {
		t.Errorf("Expected a scheduled reload, got %d frames", n)
	}
}

func TestClientCode_WithoutSessionReloadsPage(t *testing.T) {
	vm := newVM(t)
	run(t, vm, ClientCode("/__sheaf/events"))
	run(t, vm, `sources[0].listeners['`+EventType+`']({ data: '{}' });`)
	if n := run(t, vm, "reloads").ToInteger(); n != 1 {
		t.Errorf("Expected a full page reload, got %d", n)
	}
}

func TestParseAPI(t *testing.T) {
	tests := []struct {
		in      string
		want    API
		wantErr bool
	}{
		{"", APIModule, false},
		{"module", APIModule, false},
		{"esm", APIESM, false},
		{"webpack", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAPI(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAPI(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseAPI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
