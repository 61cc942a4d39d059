package page

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html static/css/*.css
var content embed.FS

// Renderer renders the upload page from embedded templates.
type Renderer struct {
	tmpl     *template.Template
	staticFS http.Handler
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(content, "templates/layout.html", "templates/index.html")
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(content, "static")
	if err != nil {
		return nil, err
	}

	return &Renderer{
		tmpl:     tmpl,
		staticFS: http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))),
	}, nil
}

// RenderPage writes the full page for v.
// Output is buffered so a template error never produces a partial page.
func (r *Renderer) RenderPage(w io.Writer, v View) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Render implements echo.Renderer. Only the "page" template is known.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	v, ok := data.(View)
	if !ok || name != "page" {
		return echo.NewHTTPError(http.StatusInternalServerError, "unknown template "+name)
	}
	return r.RenderPage(w, v)
}

// Static serves GET /static/* from the embedded assets.
func (r *Renderer) Static(c echo.Context) error {
	r.staticFS.ServeHTTP(c.Response().Writer, c.Request())
	return nil
}
