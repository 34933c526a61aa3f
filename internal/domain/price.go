package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price keeps the backend's price exactly as sent. The backend emits it
// either as a JSON number or as a string, so it is parsed on use.
type Price string

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	*p = Price(b)
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	if v, err := p.Amount(); err == nil {
		return json.Marshal(v)
	}
	return json.Marshal(string(p))
}

// Amount parses the price. It fails unless the value is a finite number
// greater than zero.
func (p Price) Amount() (float64, error) {
	return ParseAmount(string(p))
}

func (p Price) Valid() bool {
	_, err := p.Amount()
	return err == nil
}

// ParseAmount parses a user or backend supplied amount ("49.99", "$49.99",
// "1,299").
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	return v, nil
}

// FormatAmount renders an amount the way prices are shown to users.
func FormatAmount(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
