package internal

import (
	"github.com/shopspring/decimal"
)

const amountPlaces = 2

// maxAmount bounds a single payment so cent totals stay well inside int64.
var maxAmount = decimal.New(1, 9)

// Amount is a money value with two fractional digits.
type Amount struct {
	d decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{d: d.Round(amountPlaces)}
}

func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return NewAmount(d), nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func AmountFromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -amountPlaces)}
}

// Round rounds half away from zero, which is half-up for the positive
// values the relay accepts.
func (a Amount) Round() Amount {
	return Amount{d: a.d.Round(amountPlaces)}
}

func (a Amount) Cents() int64 {
	return a.d.Round(amountPlaces).Shift(amountPlaces).IntPart()
}

func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// Valid reports whether a is positive and no larger than maxAmount.
func (a Amount) Valid() bool {
	return a.d.IsPositive() && a.d.LessThanOrEqual(maxAmount)
}

func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

func (a Amount) Equal(o Amount) bool {
	return a.d.Equal(o.d)
}

func (a Amount) String() string {
	return a.d.StringFixed(amountPlaces)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = NewAmount(d)
	return nil
}
