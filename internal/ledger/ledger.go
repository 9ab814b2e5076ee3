package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"tally/internal/services"
)

const stageIntake = "intake"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidate delimiters in preference order when counts tie
var delimiters = []rune{',', ';', '\t', '|'}

// Row maps a header column to its cell value.
type Row map[string]string

// Ledger is an ordered, header-keyed view of an inventory file.
type Ledger struct {
	columns   []string
	rows      []Row
	delimiter rune
}

// Parse reads delimited text with a header row. Every data line becomes one
// Row keyed by the header columns, in file order, including lines whose cells
// are all empty. Blank and whitespace-only lines are skipped. Short lines
// yield empty strings for the missing columns; surplus cells are dropped.
func Parse(r io.Reader) (*Ledger, error) {
	if r == nil {
		return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "no input", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "read input", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "file is empty", nil)
	}

	delim := sniffDelimiter(firstLine(data))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "read header", err)
	}
	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "invalid header", err)
	}

	out := &Ledger{columns: columns, delimiter: delim}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrParse, stageIntake, "parse ledger", "read row", err)
		}
		if blankLine(record) {
			continue
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i+1)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("column %q appears at positions %d and %d", name, prev+1, i+1)
		}
		seen[name] = i
		columns[i] = name
	}
	return columns, nil
}

// blankLine reports a line with no delimiter and nothing but whitespace.
// encoding/csv already drops empty lines; "," is a row of empty cells.
func blankLine(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

func firstLine(data []byte) []byte {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			return line
		}
	}
	return nil
}

// sniffDelimiter picks the candidate that occurs most often outside quotes
// on the header line. Comma wins ties and the no-delimiter case.
func sniffDelimiter(line []byte) rune {
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, d := range delimiters {
			if r == d {
				counts[d]++
			}
		}
	}
	best := ','
	for _, d := range delimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// Len reports the number of data rows.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rows)
}

// Columns returns the header columns in file order.
func (l *Ledger) Columns() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.columns...)
}

// Delimiter returns the separator detected while parsing.
func (l *Ledger) Delimiter() rune {
	if l == nil {
		return ','
	}
	return l.delimiter
}

// Rows returns copies of every row.
func (l *Ledger) Rows() []Row {
	return l.Head(l.Len())
}

// Head returns copies of the first n rows.
func (l *Ledger) Head(n int) []Row {
	if l == nil || n <= 0 {
		return nil
	}
	if n > len(l.rows) {
		n = len(l.rows)
	}
	out := make([]Row, n)
	for i := 0; i < n; i++ {
		row := make(Row, len(l.rows[i]))
		for k, v := range l.rows[i] {
			row[k] = v
		}
		out[i] = row
	}
	return out
}

// Excerpt serializes the first n rows as a JSON array of objects whose keys
// follow header order.
func (l *Ledger) Excerpt(n int) (string, error) {
	rows := l.Head(n)
	if len(rows) == 0 {
		return "", services.Wrap(services.ErrInput, stageIntake, "ledger excerpt", "ledger has no rows", nil)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range l.columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return "", fmt.Errorf("ledger excerpt: encode key: %w", err)
			}
			value, err := json.Marshal(row[col])
			if err != nil {
				return "", fmt.Errorf("ledger excerpt: encode value: %w", err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}
