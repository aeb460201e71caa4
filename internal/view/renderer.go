// Package view renders the server-side HTML pages.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/session"
)

const layoutFile = "layout.html"

// Page is the data every page template receives
type Page struct {
	Title         string
	Authenticated bool
	Email         string
	Token         string
}

// Renderer holds one parsed template set per page
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page under dir in fsys together with the layout
func NewRenderer(fsys fs.FS, dir string) (*Renderer, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	layout := path.Join(dir, layoutFile)
	pages := make(map[string]*template.Template)

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == layoutFile || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".html")
		tmpl, err := template.ParseFS(fsys, layout, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Render writes the named page with status 200.
// Authentication state is taken from the request's principal.
func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, name string, page Page) {
	logger := logging.GetLoggerFromContext(r.Context())

	tmpl, ok := v.pages[name]
	if !ok {
		logger.Error("unknown page", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal := session.PrincipalFromContext(r.Context())
	page.Authenticated = session.IsAuthenticated(principal)
	if page.Email == "" && page.Authenticated {
		page.Email = principal.Email
	}

	// Render to a buffer so a template error never leaves a half-written page
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		logger.Error("failed to render page", "page", name, "error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
