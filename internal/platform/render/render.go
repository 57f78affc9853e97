// Package render turns page data into HTML through the echo Renderer hook.
// Templates and static assets are embedded at compile time; each page is
// parsed together with the shared layout so pages can override blocks.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/ins/ins/internal/platform/notification"
	"github.com/ins/ins/internal/platform/session"
)

//go:embed templates
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

// Page is the data every template receives.
type Page struct {
	Title   string
	Session *session.Session
	Notices []notification.Notice
	// Nav names the active navigation entry.
	Nav  string
	Data any
}

// Renderer implements echo.Renderer over the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses the layout and every page template.
func New() (*Renderer, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFiles, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse layout: %w", err)
	}

	entries, err := fs.ReadDir(templateFiles, "templates/pages")
	if err != nil {
		return nil, fmt.Errorf("render: list pages: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".html" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".html")
		t, err := template.Must(base.Clone()).ParseFS(templateFiles, "templates/pages/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("render: parse page %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Has reports whether a page template exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render executes the named page inside the layout.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("render: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}

// StaticFS returns the embedded static assets rooted at their directory.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

var funcs = template.FuncMap{
	"lower": strings.ToLower,
	"initials": func(name string) string {
		var out []rune
		for _, f := range strings.Fields(name) {
			r, _ := utf8.DecodeRuneInString(f)
			out = append(out, unicode.ToUpper(r))
			if len(out) == 2 {
				break
			}
		}
		return string(out)
	},
	// safeURL admits data URLs for images the server produced itself.
	"safeURL": func(s string) template.URL {
		if strings.HasPrefix(s, "data:image/") || strings.HasPrefix(s, "/") {
			return template.URL(s)
		}
		return template.URL("about:blank")
	},
	"statusClass": func(s any) string {
		return "badge badge-" + strings.ToLower(fmt.Sprint(s))
	},
}
