package core

import "github.com/shopspring/decimal"

// Currency is expressed relative to the single base currency: one unit of base
// buys ExchangeRate units of this currency. The base currency has rate 1.
type Currency struct {
	Base
	Code         string          `json:"code" validate:"required,len=3"`
	Name         string          `json:"name" validate:"required"`
	Symbol       string          `json:"symbol"`
	ExchangeRate decimal.Decimal `json:"exchangeRate" validate:"decgt0"`
	IsBase       bool            `json:"isBase"`
}
