package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNoBaseCurrency       = errors.New("no base currency configured")
	ErrMultipleBaseCurrency = errors.New("more than one base currency configured")
)

// CurrencyTable converts amounts between currencies. Every conversion routes
// through the base currency's rate.
type CurrencyTable struct {
	base   Currency
	byCode map[string]Currency
	byID   map[string]Currency
}

// NewCurrencyTable builds a table from a currency list. Exactly one currency must
// carry the base flag and every rate must be positive.
func NewCurrencyTable(currencies []Currency) (*CurrencyTable, error) {
	t := &CurrencyTable{
		byCode: make(map[string]Currency, len(currencies)),
		byID:   make(map[string]Currency, len(currencies)),
	}
	bases := 0
	for _, c := range currencies {
		if !c.ExchangeRate.IsPositive() {
			return nil, fmt.Errorf("currency %s: exchange rate must be positive, got %s", c.Code, c.ExchangeRate)
		}
		if c.IsBase {
			bases++
			t.base = c
		}
		t.byCode[strings.ToUpper(c.Code)] = c
		if c.ID != "" {
			t.byID[c.ID] = c
		}
	}
	switch {
	case bases == 0:
		return nil, ErrNoBaseCurrency
	case bases > 1:
		return nil, ErrMultipleBaseCurrency
	}
	return t, nil
}

// Base returns the base currency.
func (t *CurrencyTable) Base() Currency { return t.base }

// Lookup finds a currency by code (case-insensitive) or by ID.
func (t *CurrencyTable) Lookup(ref string) (Currency, error) {
	if c, ok := t.byCode[strings.ToUpper(ref)]; ok {
		return c, nil
	}
	if c, ok := t.byID[ref]; ok {
		return c, nil
	}
	return Currency{}, fmt.Errorf("currency %q not found", ref)
}

// ToBase converts amount expressed in currency ref into the base currency.
func (t *CurrencyTable) ToBase(amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	c, err := t.Lookup(ref)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(c.ExchangeRate), nil
}

// FromBase converts a base-currency amount into currency ref.
func (t *CurrencyTable) FromBase(amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	c, err := t.Lookup(ref)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(c.ExchangeRate), nil
}

// Convert moves amount from one currency to another through the base currency.
func (t *CurrencyTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	inBase, err := t.ToBase(amount, from)
	if err != nil {
		return decimal.Zero, err
	}
	return t.FromBase(inBase, to)
}

// ToBaseOrSelf converts amount to base when ref is set, and returns it unchanged
// when ref is empty (entities without a currency are priced in base).
func (t *CurrencyTable) ToBaseOrSelf(amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if ref == "" {
		return amount, nil
	}
	return t.ToBase(amount, ref)
}
