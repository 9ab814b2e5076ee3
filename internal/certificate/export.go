package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"tally/internal/audit"
	"tally/internal/config"
	"tally/internal/logging"
	"tally/internal/services"
)

const stageExport = "certificate"

// Format selects the certificate file type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat accepts "pdf" and "html" in any case; empty means PDF.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "pdf":
		return FormatPDF, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", services.Wrap(services.ErrInput, stageExport, "format", fmt.Sprintf("unsupported certificate format %q", value), nil)
	}
}

// FormatForPath infers the format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatPDF
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "application/pdf"
}

// DefaultFileName names the certificate for auditID.
func DefaultFileName(auditID string, format Format) string {
	id := auditID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "unsaved"
	}
	return fmt.Sprintf("tally-certificate-%s.%s", id, format)
}

// Printer converts certificate HTML to PDF bytes.
type Printer func(ctx context.Context, html []byte, geom Geometry) ([]byte, error)

// Exporter renders certificates to disk or memory.
type Exporter struct {
	chromiumPath string
	timeout      time.Duration
	geometry     Geometry
	organization string
	signatory    string
	printer      Printer
	logger       *slog.Logger
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithPrinter replaces headless Chromium as the PDF backend.
func WithPrinter(p Printer) Option {
	return func(e *Exporter) {
		if p != nil {
			e.printer = p
		}
	}
}

// WithGeometry overrides the page geometry.
func WithGeometry(g Geometry) Option {
	return func(e *Exporter) { e.geometry = g }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter builds an exporter from certificate config.
func NewExporter(cfg *config.Config, opts ...Option) *Exporter {
	e := &Exporter{
		timeout:  30 * time.Second,
		geometry: A4(),
		logger:   logging.NewNop(),
	}
	if cfg != nil {
		e.chromiumPath = cfg.Certificate.ChromiumPath
		if cfg.Certificate.TimeoutSeconds > 0 {
			e.timeout = time.Duration(cfg.Certificate.TimeoutSeconds) * time.Second
		}
		e.organization = cfg.Certificate.Organization
		e.signatory = cfg.Certificate.Signatory
	}
	e.printer = e.chromiumPrint
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "certificate")
	return e
}

// Render produces certificate bytes in the requested format.
func (e *Exporter) Render(ctx context.Context, result *audit.Result, meta Meta, format Format) ([]byte, error) {
	if result == nil {
		return nil, services.Wrap(services.ErrInput, stageExport, "render", "no audit result to certify", nil)
	}
	if meta.Organization == "" {
		meta.Organization = e.organization
	}
	if meta.Signatory == "" {
		meta.Signatory = e.signatory
	}
	if meta.IssuedAt.IsZero() {
		meta.IssuedAt = time.Now()
	}
	doc := Layout(result, meta, e.geometry)
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, stageExport, "render", "build certificate html", err)
	}
	e.logger.Debug("certificate laid out",
		logging.String(logging.FieldAuditID, meta.AuditID),
		logging.Int("pages", len(doc.Pages)),
		logging.Int("rows", doc.RowCount()),
	)
	if format == FormatHTML {
		return html, nil
	}
	pdf, err := e.printer(ctx, html, doc.Geometry)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageExport, "print pdf", "headless chromium failed", err)
	}
	return pdf, nil
}

// Export writes the certificate to path, choosing the format from its
// extension. The file is written to a temporary sibling and renamed.
func (e *Exporter) Export(ctx context.Context, result *audit.Result, meta Meta, path string) error {
	format := FormatForPath(path)
	data, err := e.Render(ctx, result, meta, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageExport, "export", "create certificate directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tally-certificate-*")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageExport, "export", "create temporary file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return services.Wrap(services.ErrConfiguration, stageExport, "export", "write certificate", err)
	}
	if err := tmp.Close(); err != nil {
		return services.Wrap(services.ErrConfiguration, stageExport, "export", "close certificate", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return services.Wrap(services.ErrConfiguration, stageExport, "export", "move certificate into place", err)
	}
	e.logger.Info("certificate exported",
		logging.String(logging.FieldAuditID, meta.AuditID),
		logging.String("path", path),
		logging.String("format", string(format)),
		logging.Int("bytes", len(data)),
	)
	return nil
}

const mmPerInch = 25.4

func (e *Exporter) chromiumPrint(ctx context.Context, html []byte, geom Geometry) ([]byte, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if e.chromiumPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.chromiumPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, e.timeout)
	defer cancelTimeout()

	var pdf []byte
	dataURL := "data:text/html," + url.PathEscape(string(html))
	err := chromedp.Run(runCtx,
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(geom.PageWidth / mmPerInch).
				WithPaperHeight(geom.PageHeight / mmPerInch).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			if err == nil {
				pdf = buf
			}
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return pdf, nil
}
