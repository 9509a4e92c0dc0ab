package core

import "github.com/shopspring/decimal"

// Item is a stocked product. SupplierID, LocationID and CurrencyID are weak
// references resolved at render time; they are never enforced as foreign keys.
type Item struct {
	Base
	Name       string          `json:"name" validate:"required"`
	Reference  string          `json:"reference" validate:"required"`
	Type       string          `json:"type"`
	UnitPrice  decimal.Decimal `json:"unitPrice" validate:"decgte0"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
	Unit       string          `json:"unit" validate:"required"`
	SupplierID string          `json:"supplierId" validate:"required"`
	LocationID string          `json:"locationId" validate:"required"`
	CurrencyID string          `json:"currencyId,omitempty"`
}

// StockValue is quantity on hand times unit price, in the item's own currency.
func (i Item) StockValue() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
