package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"tally/internal/audit"
	"tally/internal/session"
)

const (
	barWidth      = 30
	labelWidth    = 18
	mismatchMark  = "✗"
	matchMark     = "✓"
	sectionIndent = "  "
)

// TerminalOptions controls terminal output.
type TerminalOptions struct {
	Colorize bool
	// HideLogs omits the pipeline log section.
	HideLogs bool
}

// ShouldColorize reports whether w is an interactive terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Terminal writes a human-readable audit report.
func Terminal(w io.Writer, view View, opts TerminalOptions) error {
	var b strings.Builder
	paint := func(colors text.Colors, s string) string {
		if !opts.Colorize {
			return s
		}
		return colors.Sprint(s)
	}

	writeSection(&b, "Audit", paint)
	if view.AuditID != "" {
		writeField(&b, "Audit ID", ShortID(view.AuditID))
	}
	writeField(&b, "Status", string(view.Status))
	if view.LedgerName != "" {
		writeField(&b, "Ledger", fmt.Sprintf("%s (%d rows)", view.LedgerName, view.LedgerRows))
	}
	if view.VideoName != "" {
		writeField(&b, "Video", view.VideoName)
	}
	if view.Error != "" {
		writeField(&b, "Error", paint(text.Colors{text.FgRed}, view.Error))
	}

	if result := view.Result; result != nil {
		writeField(&b, "Risk level", paint(riskColors(result.RiskLevel), string(result.RiskLevel)))
		writeField(&b, "Financial impact", result.FinancialImpact)
		verdict := result.Verdict()
		if result.DiscrepancyFound {
			verdict = paint(text.Colors{text.FgRed, text.Bold}, verdict+" (discrepancy found)")
		} else {
			verdict = paint(text.Colors{text.FgGreen}, verdict)
		}
		writeField(&b, "Verdict", verdict)
		if result.Confidence != nil {
			writeField(&b, "Confidence", ConfidenceLabel(result))
		}

		b.WriteByte('\n')
		writeSection(&b, "Findings", paint)
		b.WriteString(findingsTable(result, paint))
		b.WriteString("\n\n")

		if rows := ChartRows(result); len(rows) > 0 {
			writeSection(&b, "Claimed vs actual", paint)
			writeChart(&b, rows, paint)
			b.WriteByte('\n')
		}

		writeSection(&b, "Summary", paint)
		writeParagraph(&b, result.Summary)
		if result.Details != "" {
			writeParagraph(&b, "Details: "+result.Details)
		}
		if result.Notes != "" {
			writeParagraph(&b, "Notes: "+result.Notes)
		}
	}

	if !opts.HideLogs && len(view.Logs) > 0 {
		b.WriteByte('\n')
		writeSection(&b, "Pipeline log", paint)
		for _, entry := range view.Logs {
			line := fmt.Sprintf("%s%s %-7s %s", sectionIndent, entry.Time.Local().Format("15:04:05"), strings.ToUpper(string(entry.Severity)), entry.Message)
			b.WriteString(paint(severityColors(entry.Severity), line))
			b.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func findingsTable(result *audit.Result, paint func(text.Colors, string) string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Item", "Claimed", "Actual", "Unit", "Status"})
	if len(result.Items) == 0 {
		tw.AppendRow(table.Row{"", "No itemised findings", "", "", "", ""})
	}
	for i, item := range result.Items {
		status := matchMark + " " + string(item.Status)
		colors := text.Colors{text.FgGreen}
		if item.Mismatch() {
			status = mismatchMark + " " + string(item.Status)
			colors = text.Colors{text.FgRed}
		}
		tw.AppendRow(table.Row{
			i + 1,
			ItemLabel(item.Name),
			item.Claimed.String(),
			item.Actual.String(),
			item.Unit,
			paint(colors, status),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}

func writeChart(b *strings.Builder, rows []ChartRow, paint func(text.Colors, string) string) {
	nameWidth := 0
	for _, row := range rows {
		nameWidth = max(nameWidth, text.RuneWidthWithoutEscSequences(row.Name)+2)
	}
	for _, row := range rows {
		marker := "  "
		actualColors := text.Colors{text.FgGreen}
		if row.Mismatch {
			marker = " " + mismatchMark
			actualColors = text.Colors{text.FgRed}
		}
		name := text.Pad(row.Name+marker, nameWidth, ' ')
		fmt.Fprintf(b, "%s%s claimed %s %s\n", sectionIndent, name, bar(row.ClaimedPct), row.Claimed)
		fmt.Fprintf(b, "%s%s actual  %s %s\n", sectionIndent, strings.Repeat(" ", nameWidth), paint(actualColors, bar(row.ActualPct)), row.Actual)
	}
}

func bar(pct float64) string {
	n := int(pct / 100 * barWidth)
	if pct > 0 && n == 0 {
		n = 1
	}
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}

func writeSection(b *strings.Builder, title string, paint func(text.Colors, string) string) {
	line := fmt.Sprintf("== %s ==", title)
	b.WriteString(paint(text.Colors{text.FgBlue, text.Bold}, line))
	b.WriteByte('\n')
}

func writeField(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s%-*s %s\n", sectionIndent, labelWidth, label+":", value)
}

func writeParagraph(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	b.WriteString(text.WrapSoft(sectionIndent+s, 100))
	b.WriteByte('\n')
}

func riskColors(level audit.RiskLevel) text.Colors {
	switch level {
	case audit.RiskCritical:
		return text.Colors{text.FgHiRed, text.Bold}
	case audit.RiskHigh:
		return text.Colors{text.FgRed}
	case audit.RiskMedium:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgGreen}
	}
}

func severityColors(sev session.Severity) text.Colors {
	switch sev {
	case session.SeverityError:
		return text.Colors{text.FgRed}
	case session.SeverityWarn:
		return text.Colors{text.FgYellow}
	case session.SeveritySuccess:
		return text.Colors{text.FgGreen}
	default:
		return text.Colors{}
	}
}
