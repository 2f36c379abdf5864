package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var ErrUnknownCurrency = errors.New("unknown currency")

type Converter interface {
	FromMinorUnits(code string, amount int64) (decimal.Decimal, error)
	ToMinorUnits(code string, amount decimal.Decimal) (int64, error)
	Equal(code string, a, b decimal.Decimal) (bool, error)
}

type converter struct{}

func NewConverter() Converter {
	return converter{}
}

// Scale - количество знаков после запятой для валюты (USD 2, JPY 0, KWD 3)
func Scale(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

func (converter) FromMinorUnits(code string, amount int64) (decimal.Decimal, error) {
	scale, err := Scale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(amount, -scale), nil
}

func (converter) ToMinorUnits(code string, amount decimal.Decimal) (int64, error) {
	scale, err := Scale(code)
	if err != nil {
		return 0, err
	}
	return amount.Shift(scale).Round(0).IntPart(), nil
}

// Equal сравнивает суммы с точностью валюты
func (c converter) Equal(code string, a, b decimal.Decimal) (bool, error) {
	minorA, err := c.ToMinorUnits(code, a)
	if err != nil {
		return false, err
	}
	minorB, err := c.ToMinorUnits(code, b)
	if err != nil {
		return false, err
	}
	return minorA == minorB, nil
}
