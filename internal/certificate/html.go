package certificate

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"tally/internal/render"
)

//go:embed templates/certificate.html
var templateFS embed.FS

var certificateTemplate = template.Must(template.New("certificate.html").Funcs(template.FuncMap{
	"mm":         func(v float64) string { return fmt.Sprintf("%.2fmm", v) },
	"shortID":    render.ShortID,
	"confidence": render.ConfidenceLabel,
	"date":       func(d Document) string { return d.Meta.IssuedAt.UTC().Format("2 January 2006, 15:04 MST") },
}).ParseFS(templateFS, "templates/certificate.html"))

// RenderHTML renders doc as a print-ready page per layout page.
func RenderHTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
