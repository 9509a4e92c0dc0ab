package core_test

import (
	"errors"
	"testing"

	"inventory-admin/internal/core"

	"github.com/shopspring/decimal"
)

func currencies() []core.Currency {
	return []core.Currency{
		{Base: core.Base{ID: "c-usd"}, Code: "USD", Name: "US Dollar", ExchangeRate: decimal.NewFromInt(1), IsBase: true},
		{Base: core.Base{ID: "c-sar"}, Code: "SAR", Name: "Saudi Riyal", ExchangeRate: decimal.RequireFromString("3.75")},
		{Base: core.Base{ID: "c-eur"}, Code: "EUR", Name: "Euro", ExchangeRate: decimal.RequireFromString("0.5")},
	}
}

func TestCurrencyTable_Conversion(t *testing.T) {
	table, err := core.NewCurrencyTable(currencies())
	if err != nil {
		t.Fatalf("NewCurrencyTable: %v", err)
	}
	hundred := decimal.NewFromInt(100)

	t.Run("ToBase", func(t *testing.T) {
		got, err := table.ToBase(hundred, "SAR")
		if err != nil {
			t.Fatalf("ToBase: %v", err)
		}
		if got.StringFixed(4) != "26.6667" {
			t.Errorf("expected 100 SAR ≈ 26.6667 USD, got %s", got)
		}
	})

	t.Run("FromBase", func(t *testing.T) {
		got, err := table.FromBase(hundred, "sar")
		if err != nil {
			t.Fatalf("FromBase: %v", err)
		}
		if !got.Equal(decimal.NewFromInt(375)) {
			t.Errorf("expected 375 SAR, got %s", got)
		}
	})

	t.Run("ConvertByID", func(t *testing.T) {
		got, err := table.Convert(hundred, "c-eur", "c-sar")
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		if !got.Equal(decimal.NewFromInt(750)) {
			t.Errorf("expected 100 EUR = 750 SAR, got %s", got)
		}
	})

	t.Run("UnknownCurrency", func(t *testing.T) {
		if _, err := table.ToBase(hundred, "XYZ"); err == nil {
			t.Error("expected error for unknown currency")
		}
	})

	t.Run("ToBaseOrSelf_NoCurrency", func(t *testing.T) {
		got, _ := table.ToBaseOrSelf(hundred, "")
		if !got.Equal(hundred) {
			t.Errorf("expected amount unchanged, got %s", got)
		}
	})

	if table.Base().Code != "USD" {
		t.Errorf("expected USD base, got %s", table.Base().Code)
	}
}

func TestNewCurrencyTable_BaseInvariant(t *testing.T) {
	none := currencies()
	none[0].IsBase = false
	if _, err := core.NewCurrencyTable(none); !errors.Is(err, core.ErrNoBaseCurrency) {
		t.Errorf("expected ErrNoBaseCurrency, got %v", err)
	}

	two := currencies()
	two[1].IsBase = true
	if _, err := core.NewCurrencyTable(two); !errors.Is(err, core.ErrMultipleBaseCurrency) {
		t.Errorf("expected ErrMultipleBaseCurrency, got %v", err)
	}

	zero := currencies()
	zero[2].ExchangeRate = decimal.Zero
	if _, err := core.NewCurrencyTable(zero); err == nil {
		t.Error("expected error for zero exchange rate")
	}
}
