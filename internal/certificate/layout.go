package certificate

import (
	"strings"
	"time"
	"unicode/utf8"

	"tally/internal/audit"
	"tally/internal/render"
)

// Meta labels a certificate.
type Meta struct {
	AuditID      string
	IssuedAt     time.Time
	Organization string
	Signatory    string
	LedgerName   string
	VideoName    string
}

// Geometry describes the printable page in millimetres. Every findings row
// occupies RowHeight regardless of content. Narrative text is wrapped at
// LineChars characters and every wrapped line occupies LineHeight.
type Geometry struct {
	PageWidth         float64
	PageHeight        float64
	Margin            float64
	HeaderHeight      float64
	TableHeadHeight   float64
	RowHeight         float64
	SectionHeadHeight float64
	LineHeight        float64
	LineChars         int
	FooterHeight      float64
}

// A4 is the default page geometry.
func A4() Geometry {
	return Geometry{
		PageWidth:         210,
		PageHeight:        297,
		Margin:            15,
		HeaderHeight:      82,
		TableHeadHeight:   10,
		RowHeight:         9,
		SectionHeadHeight: 9,
		LineHeight:        5,
		LineChars:         96,
		FooterHeight:      36,
	}
}

// Usable is the printable height inside the margins.
func (g Geometry) Usable() float64 {
	return g.PageHeight - 2*g.Margin
}

// valid reports whether the header plus a table head and one row, a
// section heading with one line, and the footer alone each fit on a page.
func (g Geometry) valid() bool {
	if g.PageHeight <= 0 || g.PageWidth <= 0 || g.RowHeight <= 0 || g.LineHeight <= 0 || g.LineChars <= 0 || g.Margin < 0 {
		return false
	}
	usable := g.Usable()
	return g.HeaderHeight+g.TableHeadHeight+g.RowHeight <= usable &&
		g.SectionHeadHeight+g.LineHeight <= usable &&
		g.FooterHeight <= usable
}

// withNarrativeDefaults fills unset narrative metrics from A4 so callers
// that only size the table keep working.
func (g Geometry) withNarrativeDefaults() Geometry {
	a4 := A4()
	if g.SectionHeadHeight <= 0 {
		g.SectionHeadHeight = a4.SectionHeadHeight
	}
	if g.LineHeight <= 0 {
		g.LineHeight = a4.LineHeight
	}
	if g.LineChars <= 0 {
		g.LineChars = a4.LineChars
	}
	return g
}

// Row is one findings line as printed.
type Row struct {
	Number      int
	Name        string
	Claimed     string
	Actual      string
	Unit        string
	Status      string
	Mismatch    bool
	Placeholder bool
}

// Section is the part of one narrative block (summary, details or notes)
// that falls on a page. Continued sections carry on from the previous page
// and print no heading.
type Section struct {
	Title     string
	Lines     []string
	Continued bool
}

// Page is one printed page.
type Page struct {
	Number int
	Header bool
	// Table is set when the page carries findings rows and a table head.
	Table    bool
	Rows     []Row
	Sections []Section
	Footer   bool
	// Used is the height consumed on the page, excluding margins.
	Used float64
}

// Document is a laid-out certificate.
type Document struct {
	Meta     Meta
	Result   *audit.Result
	Geometry Geometry
	Pages    []Page
}

// RowCount returns the number of findings rows across all pages.
func (d Document) RowCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Rows)
	}
	return n
}

const noFindingsLabel = "No itemised findings were returned for this audit."

// Layout paginates result. The first page carries the header; a page break
// happens only when the next row or narrative line would cross the bottom
// margin. The summary, details and notes follow the findings, and the
// signature footer follows them, on a fresh page when it does not fit.
// Invalid geometry falls back to A4.
func Layout(result *audit.Result, meta Meta, geom Geometry) Document {
	geom = geom.withNarrativeDefaults()
	if !geom.valid() {
		geom = A4()
	}
	doc := Document{Meta: meta, Result: result, Geometry: geom}
	usable := geom.Usable()

	rows := findingRows(result)
	page := Page{Number: 1, Header: true, Table: true, Used: geom.HeaderHeight + geom.TableHeadHeight}
	for _, row := range rows {
		if page.Used+geom.RowHeight > usable {
			doc.Pages = append(doc.Pages, page)
			page = Page{Number: page.Number + 1, Table: true, Used: geom.TableHeadHeight}
		}
		page.Rows = append(page.Rows, row)
		page.Used += geom.RowHeight
	}
	for _, block := range narrativeBlocks(result, geom.LineChars) {
		// a heading never ends a page on its own
		if page.Used+geom.SectionHeadHeight+geom.LineHeight > usable {
			doc.Pages = append(doc.Pages, page)
			page = Page{Number: page.Number + 1}
		}
		page.Sections = append(page.Sections, Section{Title: block.title})
		page.Used += geom.SectionHeadHeight
		for _, line := range block.lines {
			if page.Used+geom.LineHeight > usable {
				doc.Pages = append(doc.Pages, page)
				page = Page{Number: page.Number + 1, Sections: []Section{{Title: block.title, Continued: true}}}
			}
			section := &page.Sections[len(page.Sections)-1]
			section.Lines = append(section.Lines, line)
			page.Used += geom.LineHeight
		}
	}
	if page.Used+geom.FooterHeight > usable {
		doc.Pages = append(doc.Pages, page)
		page = Page{Number: page.Number + 1}
	}
	page.Footer = true
	page.Used += geom.FooterHeight
	doc.Pages = append(doc.Pages, page)
	return doc
}

func findingRows(result *audit.Result) []Row {
	if result == nil || len(result.Items) == 0 {
		return []Row{{Name: noFindingsLabel, Placeholder: true}}
	}
	rows := make([]Row, 0, len(result.Items))
	for i, item := range result.Items {
		rows = append(rows, Row{
			Number:   i + 1,
			Name:     render.ItemLabel(item.Name),
			Claimed:  item.Claimed.String(),
			Actual:   item.Actual.String(),
			Unit:     item.Unit,
			Status:   string(item.Status),
			Mismatch: item.Mismatch(),
		})
	}
	return rows
}

type narrativeBlock struct {
	title string
	lines []string
}

func narrativeBlocks(result *audit.Result, width int) []narrativeBlock {
	if result == nil {
		return nil
	}
	var blocks []narrativeBlock
	for _, field := range []struct{ title, text string }{
		{"Summary", result.Summary},
		{"Details", result.Details},
		{"Notes", result.Notes},
	} {
		if lines := wrapText(field.text, width); len(lines) > 0 {
			blocks = append(blocks, narrativeBlock{title: field.title, lines: lines})
		}
	}
	return blocks
}

// wrapText breaks text into lines of at most width runes at word
// boundaries. Line breaks in text are kept; blank lines are dropped and
// words longer than width are split.
func wrapText(text string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var line strings.Builder
		n := 0
		for _, word := range strings.Fields(paragraph) {
			for utf8.RuneCountInString(word) > width {
				if n > 0 {
					lines = append(lines, line.String())
					line.Reset()
					n = 0
				}
				runes := []rune(word)
				lines = append(lines, string(runes[:width]))
				word = string(runes[width:])
			}
			size := utf8.RuneCountInString(word)
			if size == 0 {
				continue
			}
			if n > 0 && n+1+size > width {
				lines = append(lines, line.String())
				line.Reset()
				n = 0
			}
			if n > 0 {
				line.WriteByte(' ')
				n++
			}
			line.WriteString(word)
			n += size
		}
		if n > 0 {
			lines = append(lines, line.String())
		}
	}
	return lines
}
