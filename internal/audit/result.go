package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RiskLevel is the model's overall risk classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ParseRiskLevel matches value case-insensitively against the known levels.
func ParseRiskLevel(value string) (RiskLevel, error) {
	switch level := RiskLevel(strings.ToUpper(strings.TrimSpace(value))); level {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return level, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", value)
	}
}

// Status is the per-item comparison outcome.
type Status string

const (
	StatusMatch       Status = "MATCH"
	StatusDiscrepancy Status = "DISCREPANCY"
)

// Quantity is a count reported by the model. It decodes from JSON numbers and
// from strings with a leading number such as "1,200" or "12 units".
type Quantity struct {
	Value float64
	Known bool
}

// Q returns a known quantity.
func Q(v float64) Quantity {
	return Quantity{Value: v, Known: true}
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = Quantity{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := leadingNumber(s)
		if !ok {
			*q = Quantity{}
			return nil
		}
		*q = Q(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	*q = Q(v)
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if !q.Known {
		return []byte("null"), nil
	}
	return json.Marshal(q.Value)
}

func (q Quantity) String() string {
	if !q.Known {
		return "n/a"
	}
	return strconv.FormatFloat(q.Value, 'f', -1, 64)
}

// Equal reports whether both quantities are known and the same.
func (q Quantity) Equal(other Quantity) bool {
	return q.Known && other.Known && math.Abs(q.Value-other.Value) < 1e-9
}

func leadingNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Item compares one ledger line against what the frames show.
type Item struct {
	Name    string   `json:"name"`
	Claimed Quantity `json:"claimed"`
	Actual  Quantity `json:"actual"`
	Unit    string   `json:"unit,omitempty"`
	Status  Status   `json:"status"`
}

// Mismatch reports whether the item is a discrepancy.
func (i Item) Mismatch() bool {
	return i.Status != StatusMatch
}

// Result is the parsed verdict for one audit. It is never modified after
// ParseResult returns; callers that need to change it should Clone first.
type Result struct {
	RiskLevel        RiskLevel `json:"riskLevel"`
	DiscrepancyFound bool      `json:"discrepancyFound"`
	FinancialImpact  string    `json:"financialImpact"`
	Confidence       *float64  `json:"confidence,omitempty"`
	Summary          string    `json:"summary"`
	Details          string    `json:"details,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	Items            []Item    `json:"items"`
}

// Verdict is "FAIL" when a discrepancy was found and "PASS" otherwise.
func (r *Result) Verdict() string {
	if r == nil || r.DiscrepancyFound {
		return "FAIL"
	}
	return "PASS"
}

// Mismatches counts items whose status is DISCREPANCY.
func (r *Result) Mismatches() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, item := range r.Items {
		if item.Mismatch() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	out.Items = append([]Item(nil), r.Items...)
	return &out
}
