package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tally/internal/services"
	"tally/internal/services/llm"
)

const stageRequesting = "requesting"

// wireResult accepts the field spellings models commonly produce.
type wireResult struct {
	RiskLevel        string      `json:"riskLevel"`
	RiskLevelSnake   string      `json:"risk_level"`
	DiscrepancyFound *bool       `json:"discrepancyFound"`
	DiscrepancySnake *bool       `json:"discrepancy_found"`
	Passed           *bool       `json:"passed"`
	FinancialImpact  flexString  `json:"financialImpact"`
	FinancialSnake   flexString  `json:"financial_impact"`
	Confidence       *flexNumber `json:"confidence"`
	Summary          string      `json:"summary"`
	Details          string      `json:"details"`
	Notes            string      `json:"notes"`
	Items            []wireItem  `json:"items"`
	Comparisons      []wireItem  `json:"comparisons"`
}

type wireItem struct {
	Name     string   `json:"name"`
	Item     string   `json:"item"`
	Claimed  Quantity `json:"claimed"`
	ClaimedQ Quantity `json:"claimedQty"`
	Actual   Quantity `json:"actual"`
	Observed Quantity `json:"observed"`
	ActualQ  Quantity `json:"actualQty"`
	Unit     string   `json:"unit"`
}

// flexString decodes a JSON string or number into text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexNumber decodes a JSON number or numeric string such as "85%".
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	var q Quantity
	if err := q.UnmarshalJSON(data); err != nil {
		return err
	}
	if !q.Known {
		return errors.New("confidence is not numeric")
	}
	*f = flexNumber(q.Value)
	return nil
}

// ParseResult decodes a model response into a Result. Code fences around the
// payload are tolerated. Any structural problem yields an ErrParse error and
// no result.
func ParseResult(content string) (*Result, error) {
	var wire wireResult
	if err := llm.DecodeLLMJSON(content, &wire); err != nil {
		return nil, parseError("response is not valid JSON", err)
	}

	level, err := ParseRiskLevel(firstNonEmpty(wire.RiskLevel, wire.RiskLevelSnake))
	if err != nil {
		return nil, parseError("invalid riskLevel", err)
	}

	result := &Result{
		RiskLevel:       level,
		FinancialImpact: firstNonEmpty(string(wire.FinancialImpact), string(wire.FinancialSnake)),
		Summary:         strings.TrimSpace(wire.Summary),
		Details:         strings.TrimSpace(wire.Details),
		Notes:           strings.TrimSpace(wire.Notes),
	}

	rawItems := wire.Items
	if len(rawItems) == 0 {
		rawItems = wire.Comparisons
	}
	result.Items = make([]Item, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := raw.toItem()
		if err != nil {
			return nil, parseError(fmt.Sprintf("item %d", i+1), err)
		}
		result.Items = append(result.Items, item)
	}

	if wire.Confidence != nil {
		c, err := normalizeConfidence(float64(*wire.Confidence))
		if err != nil {
			return nil, parseError("invalid confidence", err)
		}
		result.Confidence = &c
	}

	switch {
	case wire.DiscrepancyFound != nil:
		result.DiscrepancyFound = *wire.DiscrepancyFound
	case wire.DiscrepancySnake != nil:
		result.DiscrepancyFound = *wire.DiscrepancySnake
	case wire.Passed != nil:
		result.DiscrepancyFound = !*wire.Passed
	default:
		result.DiscrepancyFound = result.Mismatches() > 0
	}

	if result.Summary == "" && len(result.Items) == 0 {
		return nil, parseError("response has neither summary nor items", nil)
	}
	if result.FinancialImpact == "" {
		result.FinancialImpact = "Not assessed"
	}
	return result, nil
}

func (w wireItem) toItem() (Item, error) {
	name := firstNonEmpty(w.Name, w.Item)
	if name == "" {
		return Item{}, errors.New("missing name")
	}
	item := Item{
		Name:    name,
		Claimed: firstKnown(w.Claimed, w.ClaimedQ),
		Actual:  firstKnown(w.Actual, w.ActualQ, w.Observed),
		Unit:    strings.TrimSpace(w.Unit),
	}
	item.Status = StatusDiscrepancy
	if item.Claimed.Equal(item.Actual) {
		item.Status = StatusMatch
	}
	return item, nil
}

// normalizeConfidence maps 0–1 through unchanged and rescales 1–100.
func normalizeConfidence(v float64) (float64, error) {
	switch {
	case v < 0 || v > 100:
		return 0, fmt.Errorf("%s is outside 0-100", strconv.FormatFloat(v, 'f', -1, 64))
	case v > 1:
		return v / 100, nil
	default:
		return v, nil
	}
}

func firstKnown(values ...Quantity) Quantity {
	for _, v := range values {
		if v.Known {
			return v
		}
	}
	return Quantity{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func parseError(message string, err error) error {
	return services.Wrap(services.ErrParse, stageRequesting, "parse audit response", message, err)
}
