package render

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tally/internal/audit"
)

// ChartRow is one item of the claimed-versus-actual chart. Percentages are
// relative to the largest known quantity in the result.
type ChartRow struct {
	Name       string
	Unit       string
	Claimed    audit.Quantity
	Actual     audit.Quantity
	ClaimedPct float64
	ActualPct  float64
	Mismatch   bool
}

// ChartRows builds the chart model for result in item order.
func ChartRows(result *audit.Result) []ChartRow {
	if result == nil {
		return nil
	}
	peak := 0.0
	for _, item := range result.Items {
		for _, q := range []audit.Quantity{item.Claimed, item.Actual} {
			if q.Known && math.Abs(q.Value) > peak {
				peak = math.Abs(q.Value)
			}
		}
	}
	rows := make([]ChartRow, 0, len(result.Items))
	for _, item := range result.Items {
		rows = append(rows, ChartRow{
			Name:       ItemLabel(item.Name),
			Unit:       item.Unit,
			Claimed:    item.Claimed,
			Actual:     item.Actual,
			ClaimedPct: percentOf(item.Claimed, peak),
			ActualPct:  percentOf(item.Actual, peak),
			Mismatch:   item.Mismatch(),
		})
	}
	return rows
}

func percentOf(q audit.Quantity, peak float64) float64 {
	if !q.Known || peak == 0 {
		return 0
	}
	return math.Round(math.Abs(q.Value)/peak*1000) / 10
}

var titleCaser = cases.Title(language.English)

// ItemLabel title-cases names the model returned entirely in lower case and
// leaves anything with deliberate capitalisation (SKUs, brand names) alone.
func ItemLabel(name string) string {
	name = strings.TrimSpace(name)
	for _, r := range name {
		if unicode.IsUpper(r) {
			return name
		}
	}
	return titleCaser.String(name)
}
