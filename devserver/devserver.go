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

// Package devserver serves a site during development. HTML pages get the
// current stylesheet links and the hot client; artifact updates are pushed
// to open pages as CloudEvents over server-sent events.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	xhtml "golang.org/x/net/html"

	"bennypowers.dev/sheaf/fs"
	"bennypowers.dev/sheaf/hot"
	"bennypowers.dev/sheaf/inject"
	"bennypowers.dev/sheaf/internal/version"
)

const (
	// EventsPath streams update events.
	EventsPath = "/__sheaf/events"
	// ClientPath serves the hot runtime and client.
	ClientPath = "/__sheaf/client.js"
)

// ClientTag is the script element added to served pages.
var ClientTag = `<script src="` + ClientPath + `"></script>`

// Options configures a Server.
type Options struct {
	FS     fs.FileSystem
	Root   string
	Logger *zap.Logger
}

// Server is an http.Handler for the dev site.
type Server struct {
	fs     fs.FileSystem
	root   string
	log    *zap.Logger
	router chi.Router

	mu          sync.RWMutex
	stylesheets []string
	runtime     string

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Server for the files under opts.Root.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		fs:      opts.FS,
		root:    opts.Root,
		log:     log.Named("devserver"),
		clients: make(map[chan []byte]struct{}),
		closed:  make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.SetHeader("Server", version.UserAgent()))
	r.Get(EventsPath, s.events)
	r.Get(ClientPath, s.client)
	r.Get("/*", s.file)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Update sets the stylesheet URLs linked from served pages and the hot
// runtime code served with the client.
func (s *Server) Update(stylesheets []string, runtime string) {
	s.mu.Lock()
	s.stylesheets = slices.Clone(stylesheets)
	s.runtime = runtime
	s.mu.Unlock()
}

// Broadcast sends an update event to every connected page. Pages that are
// not keeping up miss the event.
func (s *Server) Broadcast(u Update) error {
	event, err := NewEvent(u)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", event.ID(), hot.EventType, data))

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			s.log.Warn("dropping event for slow client", zap.String("url", u.URL))
		}
	}
	return nil
}

// Clients reports how many pages are connected.
func (s *Server) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// Close ends every event stream.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.Close)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.clientsMu.Lock()
	delete(s.clients, ch)
	s.clientsMu.Unlock()
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		case msg := <-ch:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) client(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	runtime := s.runtime
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = io.WriteString(w, runtime)
	_, _ = io.WriteString(w, "\n")
	_, _ = io.WriteString(w, hot.ClientCode(EventsPath))
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.root, filepath.FromSlash(name))

	info, err := s.fs.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = s.fs.Stat(full)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	data, err := s.fs.ReadFile(full)
	if err != nil {
		s.log.Warn("reading file", zap.String("path", full), zap.Error(err))
		http.Error(w, "cannot read file", http.StatusInternalServerError)
		return
	}

	ext := strings.ToLower(filepath.Ext(full))
	if ext == ".html" || ext == ".htm" {
		data = s.decorate(data)
	}
	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	http.ServeContent(w, r, full, info.ModTime(), bytes.NewReader(data))
}

// decorate links the current stylesheets and adds the client script.
func (s *Server) decorate(page []byte) []byte {
	s.mu.RLock()
	stylesheets := s.stylesheets
	s.mu.RUnlock()

	if linked, _, err := inject.Links(page, stylesheets); err == nil {
		page = linked
	}
	return insertBefore(page, ClientTag, "head", "body")
}

// insertBefore inserts snippet before the first closing tag among names,
// tried in order, or appends it.
func insertBefore(page []byte, snippet string, names ...string) []byte {
	offsets := make(map[string]int)
	z := xhtml.NewTokenizer(bytes.NewReader(page))
	offset := 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		start := offset
		offset += len(z.Raw())
		if tt != xhtml.EndTagToken {
			continue
		}
		name, _ := z.TagName()
		if _, seen := offsets[string(name)]; !seen {
			offsets[string(name)] = start
		}
	}

	for _, name := range names {
		if at, ok := offsets[name]; ok {
			out := make([]byte, 0, len(page)+len(snippet))
			out = append(out, page[:at]...)
			out = append(out, snippet...)
			return append(out, page[at:]...)
		}
	}
	return append(page, snippet...)
}
