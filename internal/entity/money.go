package entity

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a nullable amount held at two decimal places. It renders as a bare
// JSON number ("116.00") or null.
type Money struct {
	d     decimal.Decimal
	valid bool
}

// NewMoney rounds d half away from zero to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(2), valid: true}
}

// ParseMoney parses a plain decimal string such as "4139.19".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(d), nil
}

// Valid reports whether the amount is known.
func (m Money) Valid() bool { return m.valid }

// Decimal returns the amount, or zero when unknown.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String renders two decimals, or "" when unknown.
func (m Money) String() string {
	if !m.valid {
		return ""
	}
	return m.d.StringFixed(2)
}

// Equal compares two amounts including validity.
func (m Money) Equal(o Money) bool {
	if m.valid != o.valid {
		return false
	}
	return !m.valid || m.d.Equal(o.d)
}

func (m Money) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return []byte("null"), nil
	}
	return []byte(m.d.StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	b = bytes.Trim(b, `"`)
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = NewMoney(d)
	return nil
}
