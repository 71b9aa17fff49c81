// Package render wraps plain-text bodies into one of the fixed HTML layouts.
package render

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
)

// Layout names accepted by Render.
const (
	Notification  = "notification"
	Transactional = "transactional"
)

//go:embed templates/*.html
var layoutFS embed.FS

// layouts is parsed once at package init. text/template is used on purpose:
// content is embedded without HTML escaping.
var layouts = template.Must(template.ParseFS(layoutFS, "templates/*.html"))

type layoutData struct {
	Content string
	Domain  string
}

// Renderer renders layouts whose footer names the sending domain.
type Renderer struct {
	domain string
}

// NewRenderer returns a Renderer for the given sending domain.
func NewRenderer(domain string) *Renderer {
	return &Renderer{domain: domain}
}

// Render converts newlines in content to <br> and embeds it in the layout
// named by templateType. Unknown or empty types use the notification layout.
func (r *Renderer) Render(content, templateType string) string {
	name := layoutName(templateType)

	var buf bytes.Buffer
	data := layoutData{
		Content: strings.ReplaceAll(content, "\n", "<br>"),
		Domain:  r.domain,
	}
	// Execution can only fail on a writer error, which bytes.Buffer never returns.
	_ = layouts.ExecuteTemplate(&buf, name, data)
	return buf.String()
}

func layoutName(templateType string) string {
	switch templateType {
	case Transactional:
		return Transactional + ".html"
	default:
		return Notification + ".html"
	}
}
