package forms

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Field is a form input as typed. JSON strings and numbers both decode into
// it, so API clients may send either.
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = Field(n.String())
		return nil
	}
}

// FormatNumber renders a stored number back into a form field.
func FormatNumber(v float64) Field {
	return Field(strconv.FormatFloat(v, 'f', -1, 64))
}

// FormatInt renders a stored integer back into a form field.
func FormatInt(v int) Field {
	return Field(strconv.Itoa(v))
}

// ParseNumber reads a non-negative decimal. Empty input is a valid zero; a
// comma is accepted as the decimal separator.
func ParseNumber(s Field) (float64, bool) {
	text := strings.TrimSpace(string(s))
	if text == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseInteger is ParseNumber restricted to whole numbers.
func ParseInteger(s Field) (int, bool) {
	v, ok := ParseNumber(s)
	if !ok || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// numbers collects parse failures by field name.
type numbers struct {
	bad []string
}

func (n *numbers) float(name string, s Field) float64 {
	v, ok := ParseNumber(s)
	if !ok {
		n.bad = append(n.bad, name)
	}
	return v
}

func (n *numbers) int(name string, s Field) int {
	v, ok := ParseInteger(s)
	if !ok {
		n.bad = append(n.bad, name)
	}
	return v
}

func (n *numbers) err() error {
	if len(n.bad) == 0 {
		return nil
	}
	return &ValidationError{Fields: n.bad}
}
