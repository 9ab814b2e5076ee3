package certificate

import (
	"fmt"
	"strings"
	"testing"

	"tally/internal/audit"
)

func resultWithItems(n int) *audit.Result {
	result := &audit.Result{RiskLevel: audit.RiskMedium, FinancialImpact: "$300"}
	for i := range n {
		status := audit.StatusMatch
		actual := audit.Q(float64(i))
		if i%3 == 0 {
			status = audit.StatusDiscrepancy
			actual = audit.Q(float64(i + 1))
		}
		result.Items = append(result.Items, audit.Item{
			Name:    fmt.Sprintf("item %d", i+1),
			Claimed: audit.Q(float64(i)),
			Actual:  actual,
			Status:  status,
		})
	}
	result.DiscrepancyFound = result.Mismatches() > 0
	return result
}

func TestLayoutPagination(t *testing.T) {
	// A4 fits 19 rows under the header, 28 on continuation pages, and the
	// footer on the last page only while that page has room for it.
	tests := []struct {
		name     string
		items    int
		pageRows []int
		// footerAlone is set when the footer had to move to its own page.
		footerAlone bool
	}{
		{name: "zero findings", items: 0, pageRows: []int{1}},
		{name: "one finding", items: 1, pageRows: []int{1}},
		{name: "footer still fits", items: 15, pageRows: []int{15}},
		{name: "footer pushed over", items: 16, pageRows: []int{16, 0}, footerAlone: true},
		{name: "first page full", items: 19, pageRows: []int{19, 0}, footerAlone: true},
		{name: "one row overflows", items: 20, pageRows: []int{19, 1}},
		{name: "two full pages", items: 47, pageRows: []int{19, 28, 0}, footerAlone: true},
		{name: "many", items: 60, pageRows: []int{19, 28, 13}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := Layout(resultWithItems(tc.items), Meta{AuditID: "abc"}, A4())
			if len(doc.Pages) != len(tc.pageRows) {
				t.Fatalf("pages = %d, want %d", len(doc.Pages), len(tc.pageRows))
			}
			for i, want := range tc.pageRows {
				if got := len(doc.Pages[i].Rows); got != want {
					t.Errorf("page %d rows = %d, want %d", i+1, got, want)
				}
			}
			last := doc.Pages[len(doc.Pages)-1]
			if !last.Footer {
				t.Fatal("last page has no footer")
			}
			if tc.footerAlone && (last.Table || len(last.Rows) != 0) {
				t.Fatalf("expected footer-only last page, got %+v", last)
			}
			wantRows := max(tc.items, 1)
			if doc.RowCount() != wantRows {
				t.Fatalf("row count = %d, want %d", doc.RowCount(), wantRows)
			}
			usable := doc.Geometry.Usable()
			for i, p := range doc.Pages {
				if p.Number != i+1 {
					t.Errorf("page %d numbered %d", i+1, p.Number)
				}
				if p.Header != (i == 0) {
					t.Errorf("page %d header = %v", i+1, p.Header)
				}
				if p.Footer != (i == len(doc.Pages)-1) {
					t.Errorf("page %d footer = %v", i+1, p.Footer)
				}
				if p.Used > usable {
					t.Errorf("page %d overflows: %.1f > %.1f", i+1, p.Used, usable)
				}
			}
		})
	}
}

func TestLayoutPreservesItemOrder(t *testing.T) {
	doc := Layout(resultWithItems(25), Meta{}, A4())
	n := 0
	for _, p := range doc.Pages {
		for _, row := range p.Rows {
			n++
			if row.Number != n {
				t.Fatalf("row %d numbered %d", n, row.Number)
			}
			if want := fmt.Sprintf("Item %d", n); row.Name != want {
				t.Fatalf("row %d name = %q, want %q", n, row.Name, want)
			}
			if row.Mismatch != ((n-1)%3 == 0) {
				t.Fatalf("row %d mismatch = %v", n, row.Mismatch)
			}
		}
	}
}

func TestLayoutZeroFindingsPlaceholder(t *testing.T) {
	for _, result := range []*audit.Result{nil, {RiskLevel: audit.RiskLow}} {
		doc := Layout(result, Meta{}, A4())
		rows := doc.Pages[0].Rows
		if len(rows) != 1 || !rows[0].Placeholder || rows[0].Name != noFindingsLabel {
			t.Fatalf("unexpected rows %+v", rows)
		}
	}
}

func TestLayoutCustomGeometry(t *testing.T) {
	geom := Geometry{PageWidth: 100, PageHeight: 100, Margin: 0, HeaderHeight: 40, TableHeadHeight: 10, RowHeight: 10, FooterHeight: 20}
	doc := Layout(resultWithItems(5), Meta{}, geom)
	// 40+10 leaves room for 5 rows exactly; the footer moves on.
	if len(doc.Pages) != 2 || len(doc.Pages[0].Rows) != 5 || len(doc.Pages[1].Rows) != 0 {
		t.Fatalf("unexpected pagination: %+v", doc.Pages)
	}
	doc = Layout(resultWithItems(6), Meta{}, geom)
	if len(doc.Pages) != 2 || len(doc.Pages[1].Rows) != 1 || !doc.Pages[1].Footer {
		t.Fatalf("unexpected pagination: %+v", doc.Pages)
	}
}

func TestLayoutInvalidGeometryFallsBack(t *testing.T) {
	doc := Layout(resultWithItems(1), Meta{}, Geometry{PageHeight: 50, PageWidth: 50, RowHeight: 30, HeaderHeight: 40})
	if doc.Geometry != A4() {
		t.Fatalf("expected A4 fallback, got %+v", doc.Geometry)
	}
}

func TestLayoutNarrativeFollowsFindings(t *testing.T) {
	result := resultWithItems(3)
	result.Summary = "Counted."
	result.Details = "Two pallets were hidden behind the racking."
	result.Notes = "Recount aisle 4."

	doc := Layout(result, Meta{}, A4())
	if len(doc.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(doc.Pages))
	}
	sections := doc.Pages[0].Sections
	var titles []string
	for _, section := range sections {
		titles = append(titles, section.Title)
		if section.Continued || len(section.Lines) != 1 {
			t.Fatalf("unexpected section %+v", section)
		}
	}
	if strings.Join(titles, ",") != "Summary,Details,Notes" {
		t.Fatalf("section order = %v", titles)
	}
	if sections[1].Lines[0] != result.Details {
		t.Fatalf("details line = %q", sections[1].Lines[0])
	}
	// header + table head + 3 rows + 3 headed lines + footer
	if want := 82.0 + 10 + 27 + 3*(9+5) + 36; doc.Pages[0].Used != want {
		t.Fatalf("used = %.1f, want %.1f", doc.Pages[0].Used, want)
	}
}

func TestLayoutNarrativePagination(t *testing.T) {
	var details []string
	for i := range 60 {
		details = append(details, fmt.Sprintf("observation %02d", i+1))
	}
	result := resultWithItems(19)
	result.Details = strings.Join(details, "\n")

	doc := Layout(result, Meta{}, A4())
	// the full first page cannot take a heading; 51 lines fit under the
	// heading on page two and the rest continue on page three
	if len(doc.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(doc.Pages))
	}
	second, third := doc.Pages[1], doc.Pages[2]
	if len(doc.Pages[0].Sections) != 0 || second.Table || third.Table {
		t.Fatalf("unexpected page contents %+v", doc.Pages)
	}
	if len(second.Sections) != 1 || second.Sections[0].Continued || len(second.Sections[0].Lines) != 51 {
		t.Fatalf("unexpected second page %+v", second.Sections)
	}
	if len(third.Sections) != 1 || !third.Sections[0].Continued || third.Sections[0].Title != "Details" {
		t.Fatalf("unexpected third page %+v", third.Sections)
	}
	if !third.Footer {
		t.Fatal("footer should follow the narrative")
	}

	var got []string
	usable := doc.Geometry.Usable()
	for _, p := range doc.Pages {
		if p.Used > usable {
			t.Errorf("page %d overflows: %.1f > %.1f", p.Number, p.Used, usable)
		}
		for _, section := range p.Sections {
			got = append(got, section.Lines...)
		}
	}
	if strings.Join(got, "|") != strings.Join(details, "|") {
		t.Fatalf("narrative lines lost or reordered: %v", got)
	}
}

func TestLayoutNarrativePushesFooter(t *testing.T) {
	result := resultWithItems(15)
	result.Summary = "Counted."

	doc := Layout(result, Meta{}, A4())
	if len(doc.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(doc.Pages))
	}
	if len(doc.Pages[0].Sections) != 1 || doc.Pages[0].Footer {
		t.Fatalf("summary should stay with the findings: %+v", doc.Pages[0])
	}
	if !doc.Pages[1].Footer || len(doc.Pages[1].Sections) != 0 {
		t.Fatalf("expected footer-only last page, got %+v", doc.Pages[1])
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{name: "empty", text: "  ", width: 10, want: nil},
		{name: "word boundaries", text: "a b c", width: 3, want: []string{"a b", "c"}},
		{name: "long word split", text: "abcdefgh", width: 3, want: []string{"abc", "def", "gh"}},
		{name: "long word after short", text: "xy abcdefg", width: 3, want: []string{"xy", "abc", "def", "g"}},
		{name: "line breaks kept", text: "one\n\ntwo", width: 10, want: []string{"one", "two"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := wrapText(tc.text, tc.width)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("wrapText(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
			}
		})
	}
}

func TestRenderHTMLIncludesNarrative(t *testing.T) {
	result := resultWithItems(2)
	result.Summary = "Copper pipe is short."
	result.Details = "Only eighteen lengths were visible on the rack."
	result.Notes = "Second bay was not filmed."

	out, err := RenderHTML(Layout(result, Meta{AuditID: "0123456789abcdef"}, A4()))
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	html := string(out)
	for _, want := range []string{
		"<h2>Summary</h2>", result.Summary,
		"<h2>Details</h2>", result.Details,
		"<h2>Notes</h2>", result.Notes,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("certificate missing %q", want)
		}
	}
	if strings.Contains(html, "max-height") {
		t.Error("narrative should not be clipped")
	}
}
