package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"tally/internal/audit"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"shortID":    ShortID,
	"itemLabel":  ItemLabel,
	"confidence": ConfidenceLabel,
	"chartRows":  ChartRows,
	"riskClass":  riskClass,
	"pct":        func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"lower":      strings.ToLower,
}).ParseFS(templateFS, "templates/dashboard.html"))

// HTMLOptions controls the dashboard page.
type HTMLOptions struct {
	// Interactive adds the upload forms, the start control and status polling.
	Interactive bool
}

type dashboardData struct {
	View
	HTMLOptions
}

// HTML writes the dashboard page for view.
func HTML(w io.Writer, view View, opts HTMLOptions) error {
	return dashboardTemplate.Execute(w, dashboardData{View: view, HTMLOptions: opts})
}

func riskClass(level audit.RiskLevel) string {
	if level == "" {
		return "risk-none"
	}
	return "risk-" + strings.ToLower(string(level))
}
